package crawl

import "testing"

func TestIsSitemap(t *testing.T) {
	if !IsSitemap("https://example.com/sitemap.xml") {
		t.Fatal("expected sitemap.xml to be classified as sitemap")
	}
	if IsSitemap("https://example.com/docs/index.html") {
		t.Fatal("did not expect docs page to be classified as sitemap")
	}
}

func TestIsMarkdownAndTxt(t *testing.T) {
	if !IsMarkdown("https://example.com/readme.md") {
		t.Fatal("expected .md to be markdown")
	}
	if !IsTxt("https://example.com/llms.txt") {
		t.Fatal("expected .txt to be txt")
	}
	if IsMarkdown("https://example.com/readme.txt") {
		t.Fatal("did not expect .txt to be markdown")
	}
}

func TestIsBinaryFile(t *testing.T) {
	if !IsBinaryFile("https://example.com/archive.zip?x=1") {
		t.Fatal("expected .zip to be binary")
	}
	if IsBinaryFile("https://example.com/page") {
		t.Fatal("did not expect extensionless path to be binary")
	}
}

func TestTransformGithubURL(t *testing.T) {
	in := "https://github.com/owner/repo/blob/main/path/to/file.go"
	want := "https://raw.githubusercontent.com/owner/repo/main/path/to/file.go"
	if got := TransformGithubURL(in); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestIsGithubTreeURLNotTransformed(t *testing.T) {
	in := "https://github.com/owner/repo/tree/main/path"
	if !IsGithubTreeURL(in) {
		t.Fatal("expected tree URL to be detected")
	}
	if got := TransformGithubURL(in); got != in {
		t.Fatalf("tree URL should not be transformed, got %q", got)
	}
}

func TestSourceIDStableAcrossTrackingParamsAndCase(t *testing.T) {
	a := SourceID("https://www.Example.COM:443/Path/?utm_source=x&b=2#frag")
	b := SourceID("https://www.example.com/Path?b=2")
	if a != b {
		t.Fatalf("expected canonicalization to unify ids, got %q != %q", a, b)
	}
}

func TestSourceIDDiffersForDifferentPaths(t *testing.T) {
	a := SourceID("https://example.com/a")
	b := SourceID("https://example.com/b")
	if a == b {
		t.Fatal("expected different paths to produce different ids")
	}
}

func TestSourceIDNeverPanicsOnMalformedURL(t *testing.T) {
	id := SourceID("not a url at all ::::")
	if len(id) != 16 {
		t.Fatalf("expected a 16-char id even for a malformed URL, got %q", id)
	}
}

func TestExtractMarkdownLinks(t *testing.T) {
	content := "See [docs](https://example.com/docs) and <https://example.com/auto> and raw https://example.com/raw, also www.example.com/w."
	links := ExtractMarkdownLinks(content, "")
	want := map[string]bool{
		"https://example.com/docs": true,
		"https://example.com/auto": true,
		"https://example.com/raw":  true,
		"https://www.example.com/w": true,
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links, want %d: %v", len(links), len(want), links)
	}
	for _, l := range links {
		if !want[l] {
			t.Fatalf("unexpected link %q in %v", l, links)
		}
	}
}

func TestExtractMarkdownLinksResolvesRelative(t *testing.T) {
	links := ExtractMarkdownLinks("[rel](/docs/page)", "https://example.com/base/")
	if len(links) != 1 || links[0] != "https://example.com/docs/page" {
		t.Fatalf("unexpected resolution: %v", links)
	}
}

func TestIsLinkCollectionFileByName(t *testing.T) {
	if !IsLinkCollectionFile("https://example.com/llms.txt", "") {
		t.Fatal("expected llms.txt to be a link collection file")
	}
	if IsLinkCollectionFile("https://example.com/llms-full.txt", "") {
		t.Fatal("did not expect llms-full.txt to be a link collection file")
	}
}

func TestExtractDisplayNameGithub(t *testing.T) {
	got := ExtractDisplayName("https://github.com/golang/go")
	if got != "GitHub - golang/go" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractDisplayNameDocsPrefix(t *testing.T) {
	got := ExtractDisplayName("https://docs.python.org/3/")
	if got != "Python Docs" {
		t.Fatalf("got %q, want %q", got, "Python Docs")
	}
}

func TestExtractDisplayNameDocsPrefixLlmsTxt(t *testing.T) {
	got := ExtractDisplayName("https://docs.example.com/llms.txt")
	if got != "Example Docs - Llms.Txt" {
		t.Fatalf("got %q, want %q", got, "Example Docs - Llms.Txt")
	}
}
