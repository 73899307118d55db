package crawl

import (
	"net/url"
	"regexp"
	"strings"
)

// Five link forms recognized inside markdown/text content: markdown
// links, autolinks, protocol-relative (//host) links, raw protocol links,
// and www.-prefixed links without a protocol.
var (
	mdLinkRe       = regexp.MustCompile(`\[[^\]]*\]\(([^\s)]+)\)`)
	autoLinkRe     = regexp.MustCompile(`<(https?://[^\s>]+)>`)
	protoRelRe     = regexp.MustCompile(`(?:^|[\s(])(//[a-zA-Z0-9][^\s<>\[\]"')]*)`)
	rawProtocolRe  = regexp.MustCompile(`https?://[^\s<>\[\]"']+`)
	wwwRe          = regexp.MustCompile(`(?:^|[\s(])((?:www\.)[^\s<>\[\]"')]+\.[a-zA-Z]{2,}[^\s<>\[\]"')]*)`)
	trailingPunctRe = regexp.MustCompile(`[).,;:!?'"]+$`)
)

// ExtractMarkdownLinks pulls every URL referenced by content, covering
// markdown-style [text](url) links, HTML <url> autolinks, bare
// https?:// links, protocol-relative //host links (given an https:
// scheme), and www.-prefixed host references. Relative or
// protocol-less www. links are resolved against baseURL when supplied.
// Trailing punctuation and balanced closing brackets left over from
// enclosing prose are stripped, and the result is deduplicated while
// preserving first-seen order.
func ExtractMarkdownLinks(content string, baseURL string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(raw string) {
		cleaned := cleanExtractedLink(raw, baseURL)
		if cleaned == "" || seen[cleaned] {
			return
		}
		seen[cleaned] = true
		out = append(out, cleaned)
	}

	for _, m := range mdLinkRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range autoLinkRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range protoRelRe.FindAllStringSubmatch(content, -1) {
		add("https:" + m[1])
	}
	for _, m := range rawProtocolRe.FindAllString(content, -1) {
		add(m)
	}
	for _, m := range wwwRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}

	return out
}

// cleanExtractedLink mirrors _clean_url: trims trailing sentence
// punctuation and stray closing delimiters that regex extraction
// tends to sweep in, then resolves the result against baseURL if it
// isn't already absolute.
func cleanExtractedLink(raw string, baseURL string) string {
	link := strings.TrimSpace(raw)
	link = strings.TrimRightFunc(link, func(r rune) bool {
		return r == 0x200B || r == 0xFEFF // zero-width space, byte order mark
	})

	for {
		trimmed := trailingPunctRe.ReplaceAllString(link, "")
		if trimmed == link {
			break
		}
		link = trimmed
	}
	for strings.HasSuffix(link, ")") && strings.Count(link, "(") < strings.Count(link, ")") {
		link = link[:len(link)-1]
	}

	if link == "" {
		return ""
	}

	if strings.HasPrefix(link, "www.") {
		link = "https://" + link
	}

	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}

	if baseURL == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
