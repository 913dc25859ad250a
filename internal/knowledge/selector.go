package knowledge

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Separator joins selected sections.
const Separator = "\n\n"

// Trigger maps a section to the substrings that pull it into the context.
type Trigger struct {
	Section  string   `yaml:"section"`
	Keywords []string `yaml:"keywords"`
}

// DefaultTriggers is the built-in table. Order matters: selected sections
// appear in this order.
var DefaultTriggers = []Trigger{
	{Section: "packages", Keywords: []string{"package", "প্যাকেজ", "price", "দাম", "mbps", "এমবিপিএস", "speed plan"}},
	{Section: "billing", Keywords: []string{"bill", "বিল", "payment", "পেমেন্ট", "bkash", "বিকাশ", "nagad", "নগদ", "due", "বকেয়া"}},
	{Section: "connection", Keywords: []string{"new connection", "নতুন সংযোগ", "নতুন লাইন", "install", "ইনস্টল", "setup"}},
	{Section: "coverage", Keywords: []string{"area", "এলাকা", "coverage", "কভারেজ", "zone", "location"}},
	{Section: "troubleshooting", Keywords: []string{"slow", "স্লো", "disconnect", "problem", "সমস্যা", "নেট নাই", "no internet", "router", "রাউটার", "ping"}},
	{Section: "office", Keywords: []string{"office", "অফিস", "address", "ঠিকানা", "hotline", "হটলাইন", "contact", "যোগাযোগ"}},
}

// LoadTriggers reads a YAML trigger table:
//
//   - section: packages
//     keywords: [package, দাম]
//   - section: general
//     keywords: [speednet, স্পিডনেট]
//
// Text before the first heading lives in the "general" section, which no
// default trigger selects; a row naming it pulls that text in.
func LoadTriggers(path string) ([]Trigger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger table: %w", err)
	}
	var table []Trigger
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse trigger table: %w", err)
	}
	for i, t := range table {
		if t.Section == "" || len(t.Keywords) == 0 {
			return nil, fmt.Errorf("trigger %d: section and keywords are required", i)
		}
	}
	return table, nil
}

// Selector picks knowledge sections for a question by keyword.
type Selector struct {
	table    []Trigger
	fallback string
}

// NewSelector creates a selector over table. fallback is returned when no
// section matches.
func NewSelector(table []Trigger, fallback string) *Selector {
	lowered := make([]Trigger, len(table))
	for i, t := range table {
		kws := make([]string, len(t.Keywords))
		for j, k := range t.Keywords {
			kws[j] = strings.ToLower(k)
		}
		lowered[i] = Trigger{Section: strings.ToLower(t.Section), Keywords: kws}
	}
	return &Selector{table: lowered, fallback: fallback}
}

// Matches returns the names of the sections of base triggered by question,
// in table order and without duplicates.
func (s *Selector) Matches(base *Base, question string) []string {
	q := strings.ToLower(question)
	seen := make(map[string]bool)
	var names []string
	for _, t := range s.table {
		if seen[t.Section] {
			continue
		}
		if _, ok := base.Section(t.Section); !ok {
			continue
		}
		for _, kw := range t.Keywords {
			if kw != "" && strings.Contains(q, kw) {
				seen[t.Section] = true
				names = append(names, t.Section)
				break
			}
		}
	}
	return names
}

// Select returns the context text for question: the matching sections joined
// by Separator, or the fallback text when nothing matches.
func (s *Selector) Select(base *Base, question string) string {
	names := s.Matches(base, question)
	if len(names) == 0 {
		return s.fallback
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		text, _ := base.Section(n)
		parts = append(parts, text)
	}
	return strings.Join(parts, Separator)
}
