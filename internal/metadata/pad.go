package metadata

// Ellipsis is appended to strings cut by PadString.
const Ellipsis = "…"

// PadString returns s unchanged when it fits in maxLength runes, otherwise
// the first maxLength-len(Ellipsis) runes followed by Ellipsis.
func PadString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	keep := maxLength - len([]rune(Ellipsis))
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + Ellipsis
}
