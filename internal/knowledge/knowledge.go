// Package knowledge holds the static dosage knowledge base. The table is a
// data asset: the default ships embedded and can be replaced by a YAML file
// without code changes.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed dosage_limits.yaml
var defaultTable []byte

var validUnits = map[string]bool{"mg": true, "ml": true, "g": true}

// DosageLimit is one knowledge base entry.
type DosageLimit struct {
	Min                 float64  `yaml:"min"`
	Max                 float64  `yaml:"max"`
	Unit                string   `yaml:"unit"`
	Interactions        []string `yaml:"interactions,omitempty"`
	PregnancyRisk       string   `yaml:"pregnancyRisk,omitempty"`
	RenalRisk           string   `yaml:"renalRisk,omitempty"`
	CommonAbbreviations []string `yaml:"commonAbbreviations,omitempty"`
}

// Lookuper is the read side consumed by the validator.
type Lookuper interface {
	Lookup(name string) (DosageLimit, bool)
}

// Base is an immutable knowledge base. It is safe for concurrent use.
type Base struct {
	limits map[string]DosageLimit
}

// Default returns the embedded knowledge base.
func Default() (*Base, error) {
	return Parse(defaultTable)
}

// LoadFile reads a replacement table from disk.
func LoadFile(path string) (*Base, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML table.
func Parse(raw []byte) (*Base, error) {
	var entries map[string]DosageLimit
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("knowledge: decode table: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("knowledge: table is empty")
	}
	limits := make(map[string]DosageLimit, len(entries))
	for name, l := range entries {
		key := normalize(name)
		if key == "" {
			return nil, errors.New("knowledge: entry with empty name")
		}
		l.Unit = strings.ToLower(strings.TrimSpace(l.Unit))
		if err := l.validate(); err != nil {
			return nil, fmt.Errorf("knowledge: entry %q: %w", key, err)
		}
		if _, dup := limits[key]; dup {
			return nil, fmt.Errorf("knowledge: duplicate entry %q", key)
		}
		limits[key] = l
	}
	return &Base{limits: limits}, nil
}

func (l DosageLimit) validate() error {
	if !validUnits[l.Unit] {
		return fmt.Errorf("unsupported unit %q", l.Unit)
	}
	if l.Min < 0 {
		return fmt.Errorf("negative min %v", l.Min)
	}
	if l.Min > l.Max {
		return fmt.Errorf("min %v greater than max %v", l.Min, l.Max)
	}
	return nil
}

// Lookup matches the lowercased name exactly. There is no fuzzy matching:
// typos, synonyms and unmapped brand names are simply not found.
func (b *Base) Lookup(name string) (DosageLimit, bool) {
	if b == nil {
		return DosageLimit{}, false
	}
	l, ok := b.limits[normalize(name)]
	if !ok {
		return DosageLimit{}, false
	}
	// Slices are copied so callers cannot mutate the table.
	l.Interactions = append([]string(nil), l.Interactions...)
	l.CommonAbbreviations = append([]string(nil), l.CommonAbbreviations...)
	return l, true
}

// Names returns the known medication names in sorted order.
func (b *Base) Names() []string {
	if b == nil {
		return nil
	}
	names := make([]string, 0, len(b.limits))
	for n := range b.limits {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Abbreviations maps each known name to its common abbreviations, for use as
// extraction hints.
func (b *Base) Abbreviations() map[string][]string {
	out := map[string][]string{}
	for _, n := range b.Names() {
		if abbr := b.limits[n].CommonAbbreviations; len(abbr) > 0 {
			out[n] = append([]string(nil), abbr...)
		}
	}
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
