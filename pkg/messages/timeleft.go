package messages

import (
	"encoding/json"
	"errors"
	"time"
)

// TimeLeft is a clock value on the wire: either a number of seconds or the
// string "unlimited".
type TimeLeft struct {
	Unlimited bool
	Seconds   float64
}

// FromDuration builds a limited TimeLeft.
func FromDuration(d time.Duration) TimeLeft {
	if d < 0 {
		d = 0
	}
	return TimeLeft{Seconds: d.Seconds()}
}

// UnlimitedTime is the non-expiring sentinel value.
func UnlimitedTime() TimeLeft {
	return TimeLeft{Unlimited: true}
}

// Duration converts a limited TimeLeft back to a duration.
func (t TimeLeft) Duration() time.Duration {
	return time.Duration(t.Seconds * float64(time.Second))
}

// MarshalJSON encodes either the number of seconds or "unlimited".
func (t TimeLeft) MarshalJSON() ([]byte, error) {
	if t.Unlimited {
		return json.Marshal("unlimited")
	}
	return json.Marshal(t.Seconds)
}

// UnmarshalJSON accepts a number or the string "unlimited"; anything else
// is a malformed payload.
func (t *TimeLeft) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*t = TimeLeft{Seconds: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s == "unlimited" {
		*t = TimeLeft{Unlimited: true}
		return nil
	}
	return errors.New("invalid time value")
}
