package domain

import "regexp"

// LinkFacet marks a URL inside post text. ByteStart and ByteEnd index the
// UTF-8 encoding of the text, end exclusive.
type LinkFacet struct {
	ByteStart int
	ByteEnd   int
	URI       string
}

// urlPattern is deliberately permissive. The last character class leaves out
// sentence punctuation so "see https://x.org." does not swallow the period.
var urlPattern = regexp.MustCompile(
	`(?:^|\W)(https?://(?:www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b(?:[-a-zA-Z0-9()@:%_+.~#?&/=]*[-a-zA-Z0-9@%_+~#/=])?)`,
)

// ExtractLinkFacets returns a facet for every http(s) URL in text.
func ExtractLinkFacets(text string) []LinkFacet {
	raw := []byte(text)

	var facets []LinkFacet
	for _, m := range urlPattern.FindAllSubmatchIndex(raw, -1) {
		start, end := m[2], m[3]
		if start < 0 {
			continue
		}
		facets = append(facets, LinkFacet{
			ByteStart: start,
			ByteEnd:   end,
			URI:       string(raw[start:end]),
		})
	}
	return facets
}
