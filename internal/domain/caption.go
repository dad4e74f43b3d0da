package domain

import (
	"fmt"
	"strings"
)

const (
	maxCommonNameRunes = 45
	truncatedNameRunes = 40
	ellipsis           = "..."
)

// ComposeCaption renders the daily post text for a species. It is a pure
// function of its inputs.
//
//	#7 Today species Rana temporaria, commonly called Common frog, is considered LC by IUCN. For more, check http://example.org/rana
func ComposeCaption(species Species, sequence int64, attribution string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "#%d Today species %s", sequence, species.ScientificName())

	if common := strings.TrimSpace(species.CommonName); common != "" {
		fmt.Fprintf(&b, ", commonly called %s,", truncateCommonName(common))
	}

	if status := strings.TrimSpace(species.IUCNStatus); status != "" {
		fmt.Fprintf(&b, " is considered %s by IUCN.", status)
	} else {
		b.WriteString(" is currently not evaluated by IUCN.")
	}

	fmt.Fprintf(&b, " For more, check %s", species.ProfileURL)

	if attribution = strings.TrimSpace(attribution); attribution != "" {
		fmt.Fprintf(&b, " Copyright:%s", attribution)
	}

	return b.String()
}

func truncateCommonName(name string) string {
	runes := []rune(name)
	if len(runes) <= maxCommonNameRunes {
		return name
	}
	return string(runes[:truncatedNameRunes]) + ellipsis
}
