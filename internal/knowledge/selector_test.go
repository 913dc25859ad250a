package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fallback = "এই বিষয়ে তথ্য নেই, হটলাইনে যোগাযোগ করুন"

func TestSelect(t *testing.T) {
	base := Parse(sampleKB)
	sel := NewSelector(DefaultTriggers, fallback)
	pkg, _ := base.Section("packages")
	bill, _ := base.Section("billing")
	office, _ := base.Section("office")

	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"single section", "What PACKAGE do you have?", pkg},
		{"bangla trigger", "বিল কিভাবে দিব?", bill},
		{"no match", "what is the weather", fallback},
		{"multiple in table order", "office address and bill payment", bill + Separator + office},
		{"section counted once", "package price mbps", pkg},
		{"trigger for missing section", "my router is slow", fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sel.Select(base, tt.question); got != tt.want {
				t.Errorf("Select(%q) = %q, want %q", tt.question, got, tt.want)
			}
		})
	}
}

func TestMatchesOrderFollowsTable(t *testing.T) {
	base := Parse(sampleKB)
	sel := NewSelector([]Trigger{
		{Section: "Office", Keywords: []string{"where"}},
		{Section: "packages", Keywords: []string{"where", "price"}},
	}, fallback)

	got := sel.Matches(base, "where is the price list")
	if strings.Join(got, ",") != "office,packages" {
		t.Errorf("Matches = %v", got)
	}
}

func TestLoadTriggers(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "triggers.yaml")
	os.WriteFile(good, []byte("- section: billing\n  keywords: [bill, বিল]\n- section: office\n  keywords: [office]\n"), 0o644)

	table, err := LoadTriggers(good)
	if err != nil {
		t.Fatal(err)
	}
	if len(table) != 2 || table[0].Section != "billing" || table[0].Keywords[1] != "বিল" {
		t.Errorf("table = %+v", table)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("- section: billing\n"), 0o644)
	if _, err := LoadTriggers(bad); err == nil {
		t.Error("trigger without keywords should be rejected")
	}
}

func TestGeneralSectionNeedsTrigger(t *testing.T) {
	base := Parse("SpeedNet bill is paid by bKash.")

	if got := NewSelector(DefaultTriggers, fallback).Select(base, "how do I pay my bill?"); got != fallback {
		t.Errorf("default table selected %q", got)
	}

	table := append([]Trigger{{Section: GeneralSection, Keywords: []string{"bill"}}}, DefaultTriggers...)
	got := NewSelector(table, fallback).Select(base, "how do I pay my bill?")
	if got != "SpeedNet bill is paid by bKash." {
		t.Errorf("general trigger selected %q", got)
	}
}
