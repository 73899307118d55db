package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	maxFetchBytes = 5 << 20 // 5MB per page
	defaultUserAgent = "ragcore-crawler/1.0"
)

// Page is the result of fetching a single URL: its raw content, a best
// effort title, and the links discovered on it (already resolved to
// absolute form against url).
type Page struct {
	URL     string
	Title   string
	Content string
	Links   []string
}

// Fetcher retrieves pages over HTTP. It is deliberately thin — HTML is
// reduced to title/text/links, not reflowed into markdown; matching the
// spec's non-goal of pixel-perfect HTML-to-markdown conversion.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher returns a Fetcher with a bounded-timeout HTTP client.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: defaultUserAgent,
	}
}

// Fetch retrieves url and, for HTML content, extracts title/text/links.
// Plain-text and markdown resources are returned with Content set to
// the raw body and Links extracted from it by ExtractMarkdownLinks.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crawl: fetch %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if IsMarkdown(url) || IsTxt(url) || strings.Contains(contentType, "text/plain") || strings.Contains(contentType, "text/markdown") {
		text := string(body)
		return &Page{URL: url, Content: text, Links: ExtractMarkdownLinks(text, url)}, nil
	}

	return parseHTMLPage(url, body)
}

func parseHTMLPage(pageURL string, body []byte) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	page := &Page{URL: pageURL}
	var links []string
	seen := make(map[string]bool)

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil && page.Title == "" {
					page.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "script", "style", "nav", "footer":
				return // skip subtree: no text, no links
			case "a":
				for _, attr := range n.Attr {
					if attr.Key == "href" && attr.Val != "" {
						resolved := cleanExtractedLink(attr.Val, pageURL)
						if resolved != "" && !seen[resolved] {
							seen[resolved] = true
							links = append(links, resolved)
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	var sb strings.Builder
	var collectText func(*html.Node)
	collectText = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "nav" || n.Data == "footer") {
			return
		}
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				sb.WriteString(t)
				sb.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collectText(c)
		}
	}
	collectText(doc)

	page.Content = sb.String()
	page.Links = links
	return page, nil
}
