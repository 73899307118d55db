// Package crawl implements URL classification (C6) and the crawl
// strategies (C7) that turn a URL into one or more fetched pages.
package crawl

import (
	"path"
	"regexp"
	"strings"
)

// IsSitemap reports whether url looks like a sitemap resource.
func IsSitemap(url string) bool {
	u := strings.ToLower(url)
	p := strings.ToLower(urlPath(url))
	return strings.HasSuffix(p, "sitemap.xml") || strings.Contains(p, "sitemap") || strings.Contains(u, "sitemap")
}

// IsTxt reports whether url points at a plain-text resource.
func IsTxt(url string) bool {
	return strings.HasSuffix(strings.ToLower(urlPath(url)), ".txt")
}

// IsMarkdown reports whether url points at a markdown resource.
func IsMarkdown(url string) bool {
	p := strings.ToLower(urlPath(url))
	return strings.HasSuffix(p, ".md") || strings.HasSuffix(p, ".mdx") || strings.HasSuffix(p, ".markdown")
}

// binaryExtensions is a fixed denylist spanning archives, executables,
// documents, images, audio/video, data files, and developer binaries —
// anything a crawl strategy should skip rather than attempt to parse
// as markup.
var binaryExtensions = map[string]bool{
	// archives
	".zip": true, ".tar": true, ".gz": true, ".tgz": true, ".bz2": true,
	".7z": true, ".rar": true, ".xz": true,
	// executables
	".exe": true, ".msi": true, ".dmg": true, ".deb": true, ".rpm": true,
	".apk": true, ".app": true,
	// documents (decoding is out of scope; treat as binary for crawling)
	".pdf": true, ".doc": true, ".docx": true, ".ppt": true, ".pptx": true,
	".xls": true, ".xlsx": true, ".odt": true, ".ods": true, ".odp": true,
	// images
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".svg": true, ".webp": true, ".ico": true, ".tiff": true,
	// audio/video
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
	".mkv": true, ".flac": true, ".ogg": true, ".webm": true,
	// data files
	".csv": true, ".parquet": true, ".db": true, ".sqlite": true,
	".sqlite3": true,
	// binary/developer artifacts
	".wasm": true, ".pyc": true, ".class": true, ".jar": true, ".so": true,
	".dll": true, ".dylib": true, ".bin": true, ".o": true, ".a": true,
	".whl": true, ".egg": true,
}

// IsBinaryFile reports whether url's path extension is on the binary
// denylist, case-insensitively.
func IsBinaryFile(url string) bool {
	ext := strings.ToLower(path.Ext(stripQueryAndFragment(urlPath(url))))
	return binaryExtensions[ext]
}

var githubBlobRe = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/blob/([^/]+)/(.+)`)
var githubTreeRe = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/tree/([^/]+)`)

// TransformGithubURL rewrites a GitHub "blob" URL (a rendered file view)
// into its raw.githubusercontent.com equivalent so the crawler fetches
// the actual file content instead of GitHub's HTML chrome. Directory
// ("tree") URLs are left unchanged — there's no single raw file to
// fetch — detection only, no transform.
func TransformGithubURL(url string) string {
	if m := githubBlobRe.FindStringSubmatch(url); m != nil {
		owner, repo, branch, filePath := m[1], m[2], m[3], m[4]
		return "https://raw.githubusercontent.com/" + owner + "/" + repo + "/" + branch + "/" + filePath
	}
	return url
}

// IsGithubTreeURL reports whether url is a GitHub directory listing,
// which TransformGithubURL intentionally does not rewrite.
func IsGithubTreeURL(url string) bool {
	return githubTreeRe.MatchString(url)
}

var linkCollectionBaseNames = map[string]bool{
	"llms": true, "links": true, "resources": true, "references": true,
}
var linkCollectionExts = map[string]bool{
	".txt": true, ".md": true, ".mdx": true, ".markdown": true,
}

// IsLinkCollectionFile reports whether url's filename matches the
// {llms,links,resources,references}.{txt,md,mdx,markdown} pattern (and
// its "-full" siblings are explicitly excluded), or — when content is
// supplied — whether the page is link-dense enough to be treated as a
// collection of links rather than prose: more than 3 extracted links
// and a link-character density above 2% of content length.
func IsLinkCollectionFile(url string, content string) bool {
	base := strings.ToLower(path.Base(stripQueryAndFragment(urlPath(url))))
	ext := path.Ext(base)
	if linkCollectionExts[ext] {
		name := strings.TrimSuffix(base, ext)
		if strings.Contains(name, "full") {
			// "llms-full.txt" etc. are complete-content dumps, not link
			// collections, even though the base name matches.
		} else if linkCollectionBaseNames[name] || hasLinkCollectionPrefix(name) {
			return true
		}
	}

	if content == "" {
		return false
	}
	links := ExtractMarkdownLinks(content, "")
	if len(links) <= 3 {
		return false
	}
	density := 0.0
	if len(content) > 0 {
		linkChars := 0
		for _, l := range links {
			linkChars += len(l)
		}
		density = float64(linkChars) / float64(len(content))
	}
	return density > 0.02
}

func hasLinkCollectionPrefix(name string) bool {
	for base := range linkCollectionBaseNames {
		if strings.HasPrefix(name, base) {
			return true
		}
	}
	return false
}

// --- display name derivation ---

var knownProjects = map[string]string{
	"fastapi": "FastAPI", "pydantic": "Pydantic", "python": "Python",
	"django": "Django", "flask": "Flask", "numpy": "NumPy", "pandas": "Pandas",
}

// ExtractDisplayName derives a human-friendly name for a source from its
// URL, special-casing well-known hosting patterns before falling back to
// a title-cased, TLD-stripped domain name.
func ExtractDisplayName(rawURL string) string {
	host := strings.ToLower(urlHost(rawURL))
	p := urlPath(rawURL)

	if host == "github.com" {
		parts := strings.Split(strings.Trim(p, "/"), "/")
		if len(parts) >= 2 && parts[0] != "" && parts[1] != "" {
			return "GitHub - " + parts[0] + "/" + parts[1]
		}
	}

	if strings.HasPrefix(host, "docs.") {
		rest := strings.TrimPrefix(host, "docs.")
		serviceName := strings.SplitN(rest, ".", 2)[0]
		baseName := titleCaseDomain(serviceName) + " Docs"

		switch strings.ToLower(path.Base(stripQueryAndFragment(p))) {
		case "sitemap.xml":
			return baseName + " - Sitemap"
		case "llms.txt":
			return baseName + " - Llms.Txt"
		}
		return baseName
	}

	if strings.HasSuffix(host, ".readthedocs.io") {
		sub := strings.TrimSuffix(host, ".readthedocs.io")
		return titleCaseDomain(sub) + " (ReadTheDocs)"
	}

	domainRoot := strings.TrimPrefix(host, "www.")
	domainRoot = strings.SplitN(domainRoot, ".", 2)[0]
	if name, ok := knownProjects[domainRoot]; ok {
		return name + " Docs"
	}

	if strings.HasPrefix(host, "api.") {
		rest := strings.TrimPrefix(host, "api.")
		return titleCaseDomain(rest) + " API"
	}

	base := strings.ToLower(path.Base(stripQueryAndFragment(p)))
	if base == "sitemap.xml" {
		return titleCaseDomain(hostWithoutTLD(host)) + " - Sitemap"
	}
	if base == "llms.txt" {
		return titleCaseDomain(hostWithoutTLD(host)) + " - Llms.Txt"
	}

	name := titleCaseDomain(hostWithoutTLD(host))
	segs := strings.Split(strings.Trim(p, "/"), "/")
	if len(segs) > 0 && segs[0] != "" {
		name += " / " + titleCaseDomain(segs[0])
	}
	return name
}

func titleCaseDomain(s string) string {
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	parts := strings.Fields(s)
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func hostWithoutTLD(host string) string {
	host = strings.TrimPrefix(host, "www.")
	parts := strings.Split(host, ".")
	if len(parts) <= 1 {
		return host
	}
	return strings.Join(parts[:len(parts)-1], ".")
}
