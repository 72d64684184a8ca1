// Package catalog holds the static vehicle and job tables. The built-in
// table is embedded; an operator may point CATALOG_PATH at a replacement.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtin []byte

// Vehicle is a purchasable vehicle model.
type Vehicle struct {
	Model    string `yaml:"model"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Price    int64  `yaml:"price"`
}

// Job is a joinable job with its per-period salary.
type Job struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Salary int64  `yaml:"salary"`
}

// Catalog indexes both tables by lower-cased id.
type Catalog struct {
	Vehicles []Vehicle `yaml:"vehicles"`
	Jobs     []Job     `yaml:"jobs"`

	vehicles map[string]Vehicle
	jobs     map[string]Job
}

// Default returns the embedded catalogue.
func Default() (*Catalog, error) {
	return Parse(builtin)
}

// Load reads the catalogue from path, or the embedded one if path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c.vehicles = make(map[string]Vehicle, len(c.Vehicles))
	for _, v := range c.Vehicles {
		key := strings.ToLower(v.Model)
		if key == "" || v.Price <= 0 {
			return nil, fmt.Errorf("catalog vehicle %q: model and positive price required", v.Model)
		}
		if _, dup := c.vehicles[key]; dup {
			return nil, fmt.Errorf("catalog vehicle %q listed twice", v.Model)
		}
		c.vehicles[key] = v
	}

	c.jobs = make(map[string]Job, len(c.Jobs))
	for _, j := range c.Jobs {
		key := strings.ToLower(j.ID)
		if key == "" || j.Salary < 0 {
			return nil, fmt.Errorf("catalog job %q: id and non-negative salary required", j.ID)
		}
		if _, dup := c.jobs[key]; dup {
			return nil, fmt.Errorf("catalog job %q listed twice", j.ID)
		}
		c.jobs[key] = j
	}
	return &c, nil
}

// Vehicle looks a model up case-insensitively.
func (c *Catalog) Vehicle(model string) (Vehicle, bool) {
	v, ok := c.vehicles[strings.ToLower(model)]
	return v, ok
}

// Job looks a job up case-insensitively.
func (c *Catalog) Job(id string) (Job, bool) {
	j, ok := c.jobs[strings.ToLower(id)]
	return j, ok
}
