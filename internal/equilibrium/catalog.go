package equilibrium

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// ErrInvalidCatalog is returned when a catalog document is malformed.
var ErrInvalidCatalog = errors.New("invalid species catalog")

// Source names a thermodynamic data file and, optionally, the subset of
// species to take from it. An empty Species list means all species.
type Source struct {
	File    string   `yaml:"file" json:"file"`
	Species []string `yaml:"species,omitempty" json:"species,omitempty"`
}

// Catalog lists the candidate product species for equilibration.
type Catalog struct {
	Gas       []Source `yaml:"gas" json:"gas"`
	Condensed []Source `yaml:"condensed,omitempty" json:"condensed,omitempty"`
}

// DefaultCatalog returns the bundled catalog: every NASA gas-phase species
// plus solid and liquid magnesium oxide.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("bundled species catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes a catalog document. Unknown fields are rejected.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidCatalog)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that the catalog has at least one gas source and that
// every source names a file.
func (c *Catalog) Validate() error {
	if len(c.Gas) == 0 {
		return fmt.Errorf("%w: at least one gas source is required", ErrInvalidCatalog)
	}
	check := func(phase string, sources []Source) error {
		for i, s := range sources {
			if s.File == "" {
				return fmt.Errorf("%w: %s[%d]: file is required", ErrInvalidCatalog, phase, i)
			}
		}
		return nil
	}
	if err := check("gas", c.Gas); err != nil {
		return err
	}
	return check("condensed", c.Condensed)
}
