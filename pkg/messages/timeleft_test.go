package messages

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeLeftMarshalsSecondsOrSentinel(t *testing.T) {
	b, err := json.Marshal(FromDuration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "90", string(b))

	b, err = json.Marshal(UnlimitedTime())
	require.NoError(t, err)
	assert.Equal(t, `"unlimited"`, string(b))
}

func TestTimeLeftUnmarshal(t *testing.T) {
	var tl TimeLeft
	require.NoError(t, json.Unmarshal([]byte("12.5"), &tl))
	assert.False(t, tl.Unlimited)
	assert.Equal(t, 12500*time.Millisecond, tl.Duration())

	require.NoError(t, json.Unmarshal([]byte(`"unlimited"`), &tl))
	assert.True(t, tl.Unlimited)

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &tl))
	assert.Error(t, json.Unmarshal([]byte(`{}`), &tl))
}
