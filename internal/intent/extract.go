package intent

import "strings"

var (
	searchDelimiters  = []string{"search for", "search", "google", "find"}
	videoDelimiters   = []string{"play", "video", "youtube"}
	contactDelimiters = []string{"call", "phone", "message", "text", "sms"}
)

// afterFirst returns the trimmed text following the first delimiter, in
// delimiter order, found in input.
func afterFirst(input string, delimiters []string) (string, bool) {
	for _, d := range delimiters {
		if i := strings.Index(input, d); i != -1 {
			return strings.TrimSpace(input[i+len(d):]), true
		}
	}
	return "", false
}

// SearchQuery extracts a web search query. Without a delimiter the whole
// input is the query.
func SearchQuery(input string) (string, bool) {
	if q, ok := afterFirst(input, searchDelimiters); ok {
		return q, true
	}
	return input, true
}

// VideoQuery extracts a video search query. Without a delimiter the whole
// input is the query.
func VideoQuery(input string) (string, bool) {
	if q, ok := afterFirst(input, videoDelimiters); ok {
		return q, true
	}
	return input, true
}

// ContactName extracts the recipient of a call or message.
func ContactName(input string) (string, bool) {
	name, ok := afterFirst(input, contactDelimiters)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// AlarmTime returns the first token that looks like a time ("7:30") or a
// bare number ("7").
func AlarmTime(input string) (string, bool) {
	for _, word := range strings.Split(input, " ") {
		if strings.Contains(word, ":") || isDigits(word) {
			return word, true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
