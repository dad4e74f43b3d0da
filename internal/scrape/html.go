package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const copyrightGlyph = "©"

// findImage returns the first img whose alt equals name, falling back to the
// first whose alt contains it. Both comparisons are case-sensitive.
func findImage(doc *goquery.Document, name string) *goquery.Selection {
	imgs := doc.Find("img[alt]")

	exact := imgs.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.AttrOr("alt", "")) == name
	}).First()
	if exact.Length() > 0 {
		return exact
	}

	return imgs.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.AttrOr("alt", ""), name)
	}).First()
}

// enclosingLink returns the href of the nearest <a> around sel.
func enclosingLink(sel *goquery.Selection) (string, bool) {
	href, ok := sel.Closest("a[href]").Attr("href")
	href = strings.TrimSpace(href)
	return href, ok && href != ""
}

// attribution returns the whitespace-normalised text of the innermost table
// cell that carries a copyright glyph.
func attribution(doc *goquery.Document) (string, bool) {
	hasGlyph := func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), copyrightGlyph)
	}
	cell := doc.Find("td").FilterFunction(func(i int, s *goquery.Selection) bool {
		return hasGlyph(i, s) && s.Find("td").FilterFunction(hasGlyph).Length() == 0
	}).First()
	if cell.Length() == 0 {
		return "", false
	}
	return strings.Join(strings.Fields(cell.Text()), " "), true
}

// resolve makes ref absolute against the page it was found on.
func resolve(doc *goquery.Document, ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	if doc.Url == nil {
		return u.String(), nil
	}
	return doc.Url.ResolveReference(u).String(), nil
}
