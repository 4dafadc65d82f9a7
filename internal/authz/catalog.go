package authz

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// Catalog maps symbolic keys such as "timesheet.approve.foreman" to
// requirements. It is immutable once loaded.
type Catalog struct {
	version      int
	requirements map[string]Requirement
}

type catalogFile struct {
	Version      int                    `yaml:"version"`
	Requirements map[string]Requirement `yaml:"requirements"`
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := ParseCatalog(embeddedCatalog)
		if err != nil {
			panic(fmt.Sprintf("authz: embedded catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// LoadCatalog reads a catalog from path, or returns the embedded catalog
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("authz: read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("authz: parse catalog: %w", err)
	}
	if len(file.Requirements) == 0 {
		return nil, fmt.Errorf("authz: catalog has no requirements")
	}
	reqs := make(map[string]Requirement, len(file.Requirements))
	for key, req := range file.Requirements {
		key = strings.TrimSpace(key)
		req.Subject = strings.TrimSpace(req.Subject)
		if key == "" || req.Subject == "" {
			return nil, fmt.Errorf("authz: catalog entry %q: key and subject required", key)
		}
		if !req.Action.Valid() {
			return nil, fmt.Errorf("authz: catalog entry %q: unknown action %q", key, req.Action)
		}
		reqs[key] = req
	}
	return &Catalog{version: file.Version, requirements: reqs}, nil
}

// Version returns the catalog schema version.
func (c *Catalog) Version() int { return c.version }

// Lookup returns the requirement registered under key.
func (c *Catalog) Lookup(key string) (Requirement, error) {
	req, ok := c.requirements[key]
	if !ok {
		return Requirement{}, fmt.Errorf("%w: %s", ErrUnknownRequirement, key)
	}
	return req, nil
}

// MustGet is Lookup for route wiring at startup; it panics on unknown keys.
func (c *Catalog) MustGet(key string) Requirement {
	req, err := c.Lookup(key)
	if err != nil {
		panic(err)
	}
	return req
}

// Keys returns every key in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.requirements))
	for k := range c.requirements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
