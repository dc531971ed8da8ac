// Package extractor strips markup and boilerplate from fetched documents,
// yielding plain text plus a title.
package extractor

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Result is the extracted content of a single document.
type Result struct {
	Text  string
	Title string
}

// contentSelectors are tried in order to isolate the main content region
// of an HTML page.
var contentSelectors = []string{
	"main",
	"article",
	`[role="main"]`,
	"#content",
	".content",
	"#main",
}

// boilerplateSelector matches elements stripped in the whole-document
// fallback when no content selector produces a match.
const boilerplateSelector = "script, style, nav, footer, header, aside"

// Extractor converts raw fetched documents into plain text.
type Extractor struct{}

// New creates a new Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract isolates the main content of a document and returns it as
// whitespace-normalized plain text with a title. Markdown and plain-text
// documents pass through with normalization only; HTML documents have
// their main content region converted to markdown-style text.
func (e *Extractor) Extract(pageURL, contentType, body string) (*Result, error) {
	if isMarkdown(pageURL, contentType, body) {
		text := normalizeWhitespace(body)
		return &Result{Text: text, Title: markdownTitle(text)}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	title := htmlTitle(body)

	region := mainContent(doc)
	regionHTML, err := goquery.OuterHtml(region)
	if err != nil {
		return nil, fmt.Errorf("failed to render content region: %w", err)
	}

	text, err := htmltomarkdown.ConvertString(regionHTML)
	if err != nil {
		// Conversion failures degrade to the region's raw text.
		text = region.Text()
	}

	text = normalizeWhitespace(text)
	if title == "" {
		title = markdownTitle(text)
	}

	return &Result{Text: text, Title: title}, nil
}

// mainContent returns the first matching candidate content region, or the
// whole document with boilerplate elements removed if none match.
func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 && strings.TrimSpace(sel.Text()) != "" {
			return sel
		}
	}

	doc.Find(boilerplateSelector).Remove()
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

// htmlTitle extracts the <title> content from an HTML document.
func htmlTitle(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var title string
	var findTitle func(*html.Node)
	findTitle = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil {
				title = n.FirstChild.Data
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			findTitle(c)
		}
	}
	findTitle(doc)

	return strings.TrimSpace(title)
}

// markdownTitle extracts the first H1 heading from markdown text.
func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimPrefix(line, "# ")
		}
	}
	return ""
}

var (
	blankLineRuns = regexp.MustCompile(`\n{3,}`)
	spaceRuns     = regexp.MustCompile(`[ \t]{2,}`)
)

// normalizeWhitespace collapses runs of blank lines and internal space
// runs without otherwise rewriting the text.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// isMarkdown reports whether a document is already markdown or plain text,
// checked in order: Content-Type, URL extension, then content heuristics.
func isMarkdown(url, contentType, content string) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "text/markdown") || strings.HasPrefix(ct, "text/x-markdown") ||
		strings.HasPrefix(ct, "text/plain") {
		return true
	}

	lower := strings.ToLower(url)
	if strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown") ||
		strings.HasSuffix(lower, ".txt") {
		return true
	}

	return isMarkdownContent(content)
}

// isMarkdownContent uses heuristics to detect markdown without markup.
func isMarkdownContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}
	if looksLikeHTML(trimmed) {
		return false
	}
	return hasMarkdownPatterns(trimmed)
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.HasPrefix(lower, "<!doctype") ||
		strings.HasPrefix(lower, "<html") ||
		strings.HasPrefix(lower, "<head") ||
		strings.HasPrefix(lower, "<body")
}

var (
	mdHeading = regexp.MustCompile(`^#{1,6}\s+\S`)
	mdList    = regexp.MustCompile(`(?m)^[\-\*]\s+\S`)
	mdLink    = regexp.MustCompile(`\[.+?\]\(.+?\)`)
)

func hasMarkdownPatterns(content string) bool {
	return mdHeading.MatchString(content) ||
		mdList.MatchString(content) ||
		mdLink.MatchString(content)
}
