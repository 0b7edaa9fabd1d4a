package perplexity

import (
	"regexp"
	"strings"
)

// suggestionCap bounds how many names one completion may yield.
const suggestionCap = 30

// enumMarkers matches leading enumeration noise: numbers, bullets, dashes.
var enumMarkers = regexp.MustCompile(`^[\d\-\*\.\s]+`)

// boilerplate tokens mark lines that are explanation rather than a name.
var boilerplate = []string{
	"artist", "similar", "genre", "music",
	"here are", "here is", "some", "list of",
}

// parseNames extracts artist names from completion text: one name per line,
// enumeration markers and trailing punctuation stripped, explanatory lines
// dropped, capped at suggestionCap entries.
func parseNames(content string) []string {
	var names []string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 2 {
			continue
		}

		lower := strings.ToLower(line)
		if isBoilerplate(lower) {
			continue
		}

		name := enumMarkers.ReplaceAllString(line, "")
		name = strings.TrimRight(name, ".,;:")
		if len(name) > 1 {
			names = append(names, name)
		}
		if len(names) == suggestionCap {
			break
		}
	}

	return names
}

func isBoilerplate(lower string) bool {
	for _, token := range boilerplate {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
