package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleKB = `SpeedNet Khulna is a broadband provider.
---
## Packages
5 Mbps - 500 Tk
10 Mbps - 800 Tk
---
## Billing
Pay by bKash before the 10th.
---
## Office
KDA Avenue, Khulna.
`

func TestParseSections(t *testing.T) {
	b := Parse(sampleKB)

	want := []string{"general", "packages", "billing", "office"}
	got := b.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Names = %v, want %v", got, want)
	}

	pkg, ok := b.Section("Packages")
	if !ok {
		t.Fatal("packages section missing")
	}
	if !strings.Contains(pkg, "10 Mbps - 800 Tk") || !strings.HasPrefix(pkg, "## Packages") {
		t.Errorf("packages section = %q", pkg)
	}
	if strings.Contains(pkg, "bKash") {
		t.Error("packages section leaked into billing")
	}
}

func TestParseRepeatedHeadingAppends(t *testing.T) {
	b := Parse("## Billing\nfirst\n---\n## Billing\nsecond\n")
	s, _ := b.Section("billing")
	if !strings.Contains(s, "first") || !strings.Contains(s, "second") {
		t.Errorf("billing = %q", s)
	}
	if len(b.Names()) != 1 {
		t.Errorf("Names = %v", b.Names())
	}
}

func TestReadFileMissing(t *testing.T) {
	text, err := ReadFile(filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Fatal("expected error")
	}
	if text != Placeholder {
		t.Errorf("text = %q, want placeholder", text)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.txt")
	if err := os.WriteFile(path, []byte(sampleKB), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if text != sampleKB {
		t.Error("content mismatch")
	}
}

func TestCacheReparsesOnChange(t *testing.T) {
	c := NewCache()
	a := c.Get("page", sampleKB)
	if c.Get("page", sampleKB) != a {
		t.Error("same text should hit the cache")
	}
	b := c.Get("page", "## Office\nnew address")
	if b == a {
		t.Error("changed text should reparse")
	}
	if s, _ := b.Section("office"); s != "## Office\nnew address" {
		t.Errorf("office = %q", s)
	}
}

func TestHeadless(t *testing.T) {
	if Parse(sampleKB).Headless() {
		t.Error("sectioned knowledge base reported headless")
	}
	if !Parse("SpeedNet bill is paid by bKash.\nOffice: Khulna.").Headless() {
		t.Error("knowledge base without headings should be headless")
	}
}
