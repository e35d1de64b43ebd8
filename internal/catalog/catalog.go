package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mr1hm/go-shelter-alerts/internal/models"
)

// Catalog is the read-only area -> migun_time table loaded once at startup.
type Catalog struct {
	areas []models.Area
	index map[string]int
}

func New(areas []models.Area) *Catalog {
	c := &Catalog{
		areas: make([]models.Area, 0, len(areas)),
		index: make(map[string]int, len(areas)),
	}
	for _, a := range areas {
		if a.Name == "" {
			continue
		}
		if _, dup := c.index[a.Name]; dup {
			continue
		}
		c.index[a.Name] = a.MigunTime
		c.areas = append(c.areas, a)
	}
	return c
}

// Load reads a catalog from a .json, .yaml or .yml file.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading areas file: %w", err)
	}

	var areas []models.Area
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &areas)
	default:
		err = json.Unmarshal(raw, &areas)
	}
	if err != nil {
		return nil, fmt.Errorf("error decoding areas file %s: %w", path, err)
	}

	return New(areas), nil
}

// MigunTime returns the area's shelter budget in seconds, or the default when unknown.
func (c *Catalog) MigunTime(area string) int {
	if t, ok := c.Lookup(area); ok {
		return t
	}
	return models.DefaultMigunTime
}

func (c *Catalog) Lookup(area string) (int, bool) {
	if c == nil {
		return 0, false
	}
	t, ok := c.index[area]
	if !ok || t <= 0 {
		return 0, false
	}
	return t, true
}

// Areas returns a copy of the catalog in file order.
func (c *Catalog) Areas() []models.Area {
	if c == nil {
		return []models.Area{}
	}
	out := make([]models.Area, len(c.areas))
	copy(out, c.areas)
	return out
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.areas)
}
