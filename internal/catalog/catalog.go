// Package catalog holds the fixed set of internships and sectors offered to candidates.
// The catalog is loaded once at startup and is read-only afterwards.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/internship-compass/internal/types"
)

//go:embed internships.json
var internshipsJSON []byte

//go:embed sectors.json
var sectorsJSON []byte

// Source supplies catalog records from an external store.
type Source interface {
	ListInternships(ctx context.Context) ([]types.Internship, error)
	ListSectors(ctx context.Context) ([]types.Sector, error)
}

// Catalog is an immutable, title-indexed set of internships.
type Catalog struct {
	internships []types.Internship
	sectors     []types.Sector
	byTitle     map[string]int
	labels      map[string]string
}

// New builds a catalog, rejecting empty or duplicate titles and
// internships whose sector is not in sectors.
func New(internships []types.Internship, sectors []types.Sector) (*Catalog, error) {
	c := &Catalog{
		internships: append([]types.Internship(nil), internships...),
		sectors:     append([]types.Sector(nil), sectors...),
		byTitle:     make(map[string]int, len(internships)),
		labels:      make(map[string]string, len(sectors)),
	}

	for _, s := range sectors {
		c.labels[s.Value] = s.Label
	}

	for i, in := range c.internships {
		if strings.TrimSpace(in.Title) == "" {
			return nil, fmt.Errorf("internship %d has no title", i)
		}
		if _, dup := c.byTitle[in.Title]; dup {
			return nil, fmt.Errorf("duplicate internship title %q", in.Title)
		}
		if _, ok := c.labels[in.Sector]; !ok {
			return nil, fmt.Errorf("internship %q has unknown sector %q", in.Title, in.Sector)
		}
		c.byTitle[in.Title] = i
	}

	return c, nil
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	internships, sectors, err := Embedded()
	if err != nil {
		return nil, err
	}
	return New(internships, sectors)
}

// Embedded decodes the built-in records, for seeding an external store.
func Embedded() ([]types.Internship, []types.Sector, error) {
	var internships []types.Internship
	if err := json.Unmarshal(internshipsJSON, &internships); err != nil {
		return nil, nil, fmt.Errorf("failed to parse embedded internships: %w", err)
	}
	var sectors []types.Sector
	if err := json.Unmarshal(sectorsJSON, &sectors); err != nil {
		return nil, nil, fmt.Errorf("failed to parse embedded sectors: %w", err)
	}
	return internships, sectors, nil
}

// Load builds a catalog from src.
func Load(ctx context.Context, src Source) (*Catalog, error) {
	sectors, err := src.ListSectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sectors: %w", err)
	}
	internships, err := src.ListInternships(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load internships: %w", err)
	}
	if len(internships) == 0 {
		return nil, fmt.Errorf("catalog source returned no internships")
	}
	return New(internships, sectors)
}

// Internships returns the records in catalog order.
func (c *Catalog) Internships() []types.Internship {
	return append([]types.Internship(nil), c.internships...)
}

// Sectors returns the sector options in display order.
func (c *Catalog) Sectors() []types.Sector {
	return append([]types.Sector(nil), c.sectors...)
}

// Lookup finds an internship by exact title.
func (c *Catalog) Lookup(title string) (types.Internship, bool) {
	i, ok := c.byTitle[title]
	if !ok {
		return types.Internship{}, false
	}
	return c.internships[i], true
}

// SectorLabel returns the display label for a sector value, or the value itself.
func (c *Catalog) SectorLabel(value string) string {
	if label, ok := c.labels[value]; ok {
		return label
	}
	return value
}

// Len returns the number of internships.
func (c *Catalog) Len() int {
	return len(c.internships)
}
