// Package extract turns fetched HTML into visible text, a title, and outbound links.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// hiddenSelector lists elements whose text is never shown to a reader.
const hiddenSelector = "style, script, head, title, meta, noscript, template"

// foreignTitleSelector matches <title> elements that label embedded graphics.
const foreignTitleSelector = "svg title, math title"

// Document is the extracted view of one page.
type Document struct {
	Title string
	Text  string
	// Hrefs are raw href attribute values in document order.
	Hrefs []string
}

// Extract parses raw HTML. The title falls back to pageURL when the page has
// no non-empty document <title>; titles inside inline SVG or MathML are ignored.
func Extract(raw []byte, pageURL string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return Document{}, fmt.Errorf("parse html %s: %w", pageURL, err)
	}

	title := strings.TrimSpace(doc.Find("title").Not(foreignTitleSelector).First().Text())
	if title == "" {
		title = pageURL
	}

	doc.Find(hiddenSelector).Remove()

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})

	return Document{
		Title: title,
		Text:  visibleText(doc.Selection),
		Hrefs: hrefs,
	}, nil
}

// visibleText joins every non-blank text node, each trimmed, with single spaces.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

// ResolveLinks joins each href against base. The result has one entry per
// href, in order, duplicates included. An href that does not parse as a URL
// is kept as its trimmed raw text.
func ResolveLinks(base string, hrefs []string) []string {
	if len(hrefs) == 0 {
		return []string{}
	}
	baseURL, baseErr := url.Parse(base)
	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		ref, err := url.Parse(href)
		if err != nil || baseErr != nil {
			links = append(links, href)
			continue
		}
		links = append(links, baseURL.ResolveReference(ref).String())
	}
	return links
}
