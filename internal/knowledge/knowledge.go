// Package knowledge splits a page's knowledge base into named sections and
// selects the sections relevant to a question.
package knowledge

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	// Delimiter separates documents in a knowledge base file. It must be on a
	// line of its own.
	Delimiter = "---"

	// HeadingMarker starts the line naming a section.
	HeadingMarker = "## "

	// GeneralSection holds text that appears before any heading.
	GeneralSection = "general"

	// Placeholder replaces a knowledge base that could not be read.
	Placeholder = "স্পিডনেট সম্পর্কিত তথ্য পাওয়া যায়নি।"
)

// Base is a parsed knowledge base.
type Base struct {
	raw      string
	sections map[string]string
	order    []string
}

// Parse splits text into sections. Section names are lower-cased; a repeated
// heading appends to the earlier section.
func Parse(text string) *Base {
	b := &Base{raw: text, sections: make(map[string]string)}

	for _, doc := range splitDocuments(text) {
		name := GeneralSection
		var body []string
		for _, line := range strings.Split(doc, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, HeadingMarker) {
				b.add(name, body)
				name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, HeadingMarker)))
				body = []string{trimmed}
				continue
			}
			body = append(body, line)
		}
		b.add(name, body)
	}

	return b
}

func splitDocuments(text string) []string {
	var docs []string
	var cur []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == Delimiter {
			docs = append(docs, strings.Join(cur, "\n"))
			cur = cur[:0]
			continue
		}
		cur = append(cur, line)
	}
	return append(docs, strings.Join(cur, "\n"))
}

func (b *Base) add(name string, lines []string) {
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" || name == "" {
		return
	}
	if existing, ok := b.sections[name]; ok {
		b.sections[name] = existing + "\n" + text
		return
	}
	b.sections[name] = text
	b.order = append(b.order, name)
}

// Section returns the named section.
func (b *Base) Section(name string) (string, bool) {
	s, ok := b.sections[strings.ToLower(name)]
	return s, ok
}

// Names returns section names in document order.
func (b *Base) Names() []string {
	return append([]string(nil), b.order...)
}

// Headless reports whether the base has no "## " headings, so all of its
// text sits in GeneralSection.
func (b *Base) Headless() bool {
	for _, name := range b.order {
		if name != GeneralSection {
			return false
		}
	}
	return true
}

// Raw returns the unparsed text.
func (b *Base) Raw() string {
	return b.raw
}

// ReadFile reads a knowledge base file. When the file cannot be read it
// returns Placeholder together with the error so callers can log and carry on.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Placeholder, fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}
	return string(data), nil
}

// Cache keeps the parsed knowledge base of each page and reparses only when
// the page's text changes.
type Cache struct {
	mu    sync.Mutex
	bases map[string]*Base
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{bases: make(map[string]*Base)}
}

// Get returns the parsed base for a page.
func (c *Cache) Get(pageID, text string) *Base {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.bases[pageID]; ok && b.raw == text {
		return b
	}
	b := Parse(text)
	c.bases[pageID] = b
	return b
}
