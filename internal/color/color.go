// Package color provides basic color definitions for a chess game
package color

// Color represent a chess color
type Color string

// Possible color variations in a chess game
const (
	White Color = "white"
	Black Color = "black"
)

// Opp returns the opposite color for the given color.
func (c Color) Opp() Color {
	if c == White {
		return Black
	}

	return White
}

// Parse maps a client-supplied value to a Color. The second return value
// is false for anything that is not exactly "white" or "black".
func Parse(s string) (Color, bool) {
	switch Color(s) {
	case White:
		return White, true
	case Black:
		return Black, true
	}
	return "", false
}
