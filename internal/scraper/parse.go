package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// cleanText collapses runs of whitespace into single spaces
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseDate tries each layout in turn and returns the date at UTC midnight
func parseDate(raw string, layouts ...string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse date %q", raw)
}

// resolveURL makes href absolute relative to base
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

func isTextNode(s *goquery.Selection) bool {
	return goquery.NodeName(s) == "#text"
}

// hasOwnText reports whether one of the element's direct text nodes contains substr
func hasOwnText(s *goquery.Selection, substr string) bool {
	found := false
	s.Contents().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if isTextNode(c) && strings.Contains(c.Text(), substr) {
			found = true
			return false
		}
		return true
	})
	return found
}

// findLabel returns the first element, in document order, whose own text contains label
func findLabel(doc *goquery.Document, label string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if hasOwnText(s, label) {
			found = s
			return false
		}
		return true
	})
	return found
}

// labelledValue returns the element following the label's element, or nil
func labelledValue(doc *goquery.Document, label string) *goquery.Selection {
	el := findLabel(doc, label)
	if el == nil {
		return nil
	}
	next := el.Next()
	if next.Length() == 0 {
		return nil
	}
	return next
}

// textLines returns every non-blank descendant text node, trimmed, in document order
func textLines(sel *goquery.Selection) []string {
	var lines []string
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if isTextNode(c) {
			if t := strings.TrimSpace(c.Text()); t != "" {
				lines = append(lines, t)
			}
			return
		}
		lines = append(lines, textLines(c)...)
	})
	return lines
}

// compactText joins the trimmed text nodes with no separator
func compactText(sel *goquery.Selection) string {
	return strings.Join(textLines(sel), "")
}

// multilineText joins the trimmed text nodes with newlines
func multilineText(sel *goquery.Selection) string {
	return strings.Join(textLines(sel), "\n")
}

// linkList formats anchors as "text (href)" joined by ", "
func linkList(links *goquery.Selection, keep func(text, href string) bool) string {
	var parts []string
	links.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		text := compactText(a)
		if keep != nil && !keep(text, href) {
			return
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", text, href))
	})
	return strings.Join(parts, ", ")
}
