package utils

// Truncate shortens s to at most maxLen characters and appends "..." when
// anything was cut. It counts runes so multi-byte text is never split.
func Truncate(s string, maxLen int) string {
	if maxLen < 0 {
		maxLen = 0
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
