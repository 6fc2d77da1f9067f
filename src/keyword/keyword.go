// Package keyword decides which configured keywords appear in recognized text.
package keyword

import "strings"

// Match returns the keywords contained, as exact case-sensitive substrings,
// in at least one fragment. Each keyword appears at most once, in the order
// of keywords. No fragments or no hits yields nil.
func Match(fragments, keywords []string) []string {
	if len(fragments) == 0 || len(keywords) == 0 {
		return nil
	}

	var found []string
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		if kw == "" || seen[kw] {
			continue
		}
		for _, frag := range fragments {
			if strings.Contains(frag, kw) {
				seen[kw] = true
				found = append(found, kw)
				break
			}
		}
	}
	return found
}
