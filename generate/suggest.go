package generate

import "strings"

// quoteChars are stripped from both ends of model output.
const quoteChars = "\"'`"

// CleanSuggestion turns raw model output into insertable text, or "" when
// nothing usable remains. textBeforeCursor is the part of the cursor line the
// user has already typed; an echo of it is removed from the suggestion.
//
// The cleaning pass is repeated until it no longer changes the text, so
// CleanSuggestion(CleanSuggestion(x, p), p) == CleanSuggestion(x, p).
func CleanSuggestion(raw, textBeforeCursor string) string {
	s := raw
	for {
		next := cleanOnce(s, textBeforeCursor)
		if next == s {
			return s
		}
		s = next
	}
}

func cleanOnce(s, before string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, quoteChars)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = stripEcho(s, before)
	return strings.TrimSpace(s)
}

// stripEcho removes the already-typed prefix when the model repeated it.
// Models usually drop indentation, so the unindented prefix is tried too.
func stripEcho(s, before string) string {
	if before == "" {
		return s
	}
	if strings.HasPrefix(s, before) {
		return s[len(before):]
	}
	if trimmed := strings.TrimLeft(before, " \t"); trimmed != "" && trimmed != before && strings.HasPrefix(s, trimmed) {
		return s[len(trimmed):]
	}
	return s
}
