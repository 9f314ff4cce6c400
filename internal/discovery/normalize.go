package discovery

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// persianFold maps the Arabic code points that Persian keyboards and pasted
// text mix in to the Persian forms the client displays.
var persianFold = strings.NewReplacer(
	"ي", "ی", // Arabic yeh -> Farsi yeh
	"ى", "ی", // alef maksura -> Farsi yeh
	"ك", "ک", // Arabic kaf -> keheh
	"ة", "ه", // teh marbuta -> heh
)

// Normalize folds Arabic letter variants to Persian and applies NFKC.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return norm.NFKC.String(persianFold.Replace(s))
}

var usernamePattern = regexp.MustCompile(`@[\p{L}\p{N}_]+`)

// ExtractUsernames returns the @handles in text in first-seen order without
// repeats.
func ExtractUsernames(text string) []string {
	matches := usernamePattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
