// Package extractor derives a page's last-modified date from its body markup,
// body text and the Last-Modified response header.
package extractor

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/competitor-url-checker/internal/checker"
	"github.com/JakeFAU/competitor-url-checker/internal/metrics"
)

// Candidate scores; higher wins.
const (
	scoreFreeText      = 1
	scoreTimeElement   = 2
	scorePublishMarker = 3
	scoreUpdateMarker  = 4
	scoreDateModified  = 5
)

const maxMarkerTextLen = 200

var (
	// updateWords scores free text preceding a date.
	updateWords = regexp.MustCompile(`(?i)\b(?:updated|modified|last-?mod|revised|reviewed)\b`)
	// hintToken splits class and id values into words, including camelCase parts.
	hintToken = regexp.MustCompile(`[A-Z]?[a-z]+|[A-Z]+|[0-9]+`)

	updateTokens = map[string]bool{
		"updated": true, "modified": true, "lastmod": true, "revised": true, "reviewed": true,
	}
	publishTokens = map[string]bool{
		"publish": true, "published": true, "posted": true, "created": true,
		"date": true, "pubdate": true, "byline": true, "timestamp": true,
	}

	monthName = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\.?`
	textDate  = regexp.MustCompile(
		`\b(?:19|20)\d{2}-\d{1,2}-\d{1,2}(?:T\d{2}:\d{2}(?::\d{2})?(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)?\b` +
			`|\b\d{1,2}(?:st|nd|rd|th)?\s+` + monthName + `,?\s+(?:19|20)\d{2}\b` +
			`|\b` + monthName + `\s+\d{1,2}(?:st|nd|rd|th)?,?\s+(?:19|20)\d{2}\b` +
			`|\b\d{1,2}[/.]\d{1,2}[/.](?:19|20)\d{2}\b`,
	)
)

var minPlausibleDate = time.Date(1995, time.January, 1, 0, 0, 0, 0, time.UTC)

// Extractor implements checker.DateExtractor. It is stateless apart from the
// clock used to reject future dates.
type Extractor struct {
	now func() time.Time
}

var _ checker.DateExtractor = (*Extractor)(nil)

// New builds an Extractor.
func New() *Extractor {
	return &Extractor{now: time.Now}
}

type candidate struct {
	day   time.Time
	score int
}

// Extract returns the best date for the page. Absence of a date is not an error.
func (e *Extractor) Extract(body []byte, lastModified string) checker.ExtractionResult {
	result := e.extract(body, lastModified)
	metrics.ObserveExtraction(string(result.Source))
	return result
}

func (e *Extractor) extract(body []byte, lastModified string) checker.ExtractionResult {
	var hint *time.Time
	if t, ok := parseHeaderDate(lastModified); ok && e.plausible(calendarDay(t)) {
		day := calendarDay(t)
		hint = &day
	}

	candidates := e.collect(body)
	if len(candidates) == 0 {
		if hint != nil {
			return checker.ExtractionResult{Date: hint, Source: checker.SourceHeader}
		}
		return checker.ExtractionResult{Source: checker.SourceNone}
	}

	best := pick(candidates, hint)
	return checker.ExtractionResult{Date: &best, Source: checker.SourceBody}
}

// pick chooses among the top-scored candidates: the one matching the header
// hint if any, otherwise the most recent.
func pick(candidates []candidate, hint *time.Time) time.Time {
	top := 0
	for _, c := range candidates {
		if c.score > top {
			top = c.score
		}
	}
	var latest time.Time
	for _, c := range candidates {
		if c.score != top {
			continue
		}
		if hint != nil && c.day.Equal(*hint) {
			return c.day
		}
		if c.day.After(latest) {
			latest = c.day
		}
	}
	return latest
}

func (e *Extractor) collect(body []byte) []candidate {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	root.Find("script, style, noscript, template, nav").Remove()

	var out []candidate
	add := func(raw string, score int) bool {
		t, ok := parseDate(raw)
		if !ok {
			return false
		}
		day := calendarDay(t)
		if !e.plausible(day) {
			return false
		}
		out = append(out, candidate{day: day, score: score})
		return true
	}

	root.Find(`[itemprop="dateModified"]`).Each(func(_ int, s *goquery.Selection) {
		add(markupValue(s), scoreDateModified)
	})
	root.Find(`[itemprop="datePublished"], [itemprop="dateCreated"]`).Each(func(_ int, s *goquery.Selection) {
		add(markupValue(s), scorePublishMarker)
	})
	root.Find("time").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("itemprop"); ok {
			return
		}
		add(markupValue(s), timeScore(s))
	})
	root.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "time" {
			return
		}
		if _, ok := s.Attr("itemprop"); ok {
			return
		}
		score := markerScore(s)
		if score == 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" || len(text) > maxMarkerTextLen {
			return
		}
		if m := textDate.FindString(text); m != "" {
			add(m, score)
		}
	})

	text := visibleText(root)
	for _, loc := range textDate.FindAllStringIndex(text, -1) {
		add(text[loc[0]:loc[1]], textScore(text[:loc[0]]))
	}
	return out
}

func (e *Extractor) plausible(day time.Time) bool {
	if day.Before(minPlausibleDate) {
		return false
	}
	return !day.After(e.now().UTC().Add(24 * time.Hour))
}

// markupValue prefers machine-readable attributes over element text.
func markupValue(s *goquery.Selection) string {
	for _, attr := range []string{"datetime", "content", "title"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return s.Text()
}

func timeScore(s *goquery.Selection) int {
	switch markerScore(s) {
	case scoreUpdateMarker:
		return scoreUpdateMarker
	case scorePublishMarker:
		return scorePublishMarker
	}
	if parent := s.Parent(); parent.Length() > 0 && hasToken(attrHints(parent), updateTokens) {
		return scoreUpdateMarker
	}
	return scoreTimeElement
}

func markerScore(s *goquery.Selection) int {
	hints := attrHints(s)
	switch {
	case hints == "":
		return 0
	case hasToken(hints, updateTokens):
		return scoreUpdateMarker
	case hasToken(hints, publishTokens):
		return scorePublishMarker
	default:
		return 0
	}
}

func attrHints(s *goquery.Selection) string {
	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	return strings.TrimSpace(class + " " + id)
}

// hasToken reports whether any whole word of hints is in words. "post-date"
// and "dateModified" match, "form-validate" does not.
func hasToken(hints string, words map[string]bool) bool {
	for _, tok := range hintToken.FindAllString(hints, -1) {
		if words[strings.ToLower(tok)] {
			return true
		}
	}
	return false
}

// textScore looks at the words just before a free-text date.
func textScore(preceding string) int {
	if len(preceding) > 40 {
		preceding = preceding[len(preceding)-40:]
	}
	switch {
	case updateWords.MatchString(preceding):
		return scoreUpdateMarker
	case strings.Contains(strings.ToLower(preceding), "publish"),
		strings.Contains(strings.ToLower(preceding), "posted"):
		return scorePublishMarker
	default:
		return scoreFreeText
	}
}

// visibleText joins text nodes with newlines so adjacent elements do not run
// together.
func visibleText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, child *goquery.Selection) {
			if goquery.NodeName(child) == "#text" {
				if t := strings.TrimSpace(child.Text()); t != "" {
					b.WriteString(t)
					b.WriteByte('\n')
				}
				return
			}
			walk(child)
		})
	}
	walk(s)
	return b.String()
}
