package crawler

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Page holds the parts of an HTML document that end up in a crawl result.
type Page struct {
	Title       string
	Description string
	Text        string
}

// Extract tokenizes an HTML document. The og:description meta tag wins over
// meta[name=description]. Text inside script, noscript and style is skipped,
// and the remaining text is lowercased with whitespace collapsed.
func Extract(r io.Reader) Page {
	var (
		page    Page
		ogDesc  string
		text    strings.Builder
		skipTag string
	)

	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		if skipTag != "" {
			if tt == html.EndTagToken {
				if name, _ := z.TagName(); string(name) == skipTag {
					skipTag = ""
				}
			}
			continue
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "title":
				if page.Title == "" && z.Next() == html.TextToken {
					page.Title = strings.TrimSpace(string(z.Text()))
				}
			case "meta":
				switch {
				case attr(tok, "property") == "og:description":
					ogDesc = attr(tok, "content")
				case attr(tok, "name") == "description":
					page.Description = attr(tok, "content")
				}
			case "script", "noscript", "style":
				if tt == html.StartTagToken {
					skipTag = tok.Data
				}
			default:
				text.WriteByte(' ')
			}
		case html.TextToken:
			text.Write(z.Text())
			text.WriteByte(' ')
		}
	}

	if ogDesc != "" {
		page.Description = ogDesc
	}
	page.Description = strings.TrimSpace(page.Description)
	page.Text = normalizeWhitespace(text.String())
	return page
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// normalizeWhitespace lowercases s and collapses every whitespace run into a
// single space.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
