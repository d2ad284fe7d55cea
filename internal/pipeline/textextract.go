package pipeline

import "regexp"

// Fallback extraction patterns applied to the document's raw text when the
// structured parser is unavailable. They recover the identifiers a reviewer
// needs even from a plain text dump.
var extractionPatterns = map[string]*regexp.Regexp{
	"member_ids":  regexp.MustCompile(`[A-Z]{2,3}\d{6,9}`),
	"dates":       regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
	"medications": regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+\d+(?:\.\d+)?\s*(?:mg|ml|g)`),
}

const maxPatternMatches = 20

// scanPatterns runs the fallback patterns over the text and returns
// deduplicated matches per pattern name.
func scanPatterns(text string) map[string][]string {
	found := map[string][]string{}
	for name, pattern := range extractionPatterns {
		matches := pattern.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		seen := map[string]bool{}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			seen[match] = true
			found[name] = append(found[name], match)
			if len(found[name]) >= maxPatternMatches {
				break
			}
		}
	}
	return found
}
