// Package registry holds the static target registry: the set of countries
// the pipeline processes. The list is hand-maintained, embedded at build
// time, and canonicalized at load.
package registry

import (
	_ "embed"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed countries.yaml
var countriesYAML []byte

// Country is one pipeline target.
type Country struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Registry is the indexed static country set.
type Registry struct {
	countries []Country
	byCode    map[string]Country
}

type registryFile struct {
	Countries []Country `yaml:"countries"`
}

// Load parses the embedded country list. Display names are stored
// lowercase in the data file and title-cased here so hand edits cannot
// introduce casing drift.
func Load() (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(countriesYAML, &file); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal countries")
	}
	if len(file.Countries) == 0 {
		return nil, eris.New("registry: empty country list")
	}

	titler := cases.Title(language.English)
	r := &Registry{
		countries: make([]Country, 0, len(file.Countries)),
		byCode:    make(map[string]Country, len(file.Countries)),
	}
	for _, c := range file.Countries {
		if len(c.Code) != 3 {
			return nil, eris.Errorf("registry: invalid country code %q", c.Code)
		}
		c.Name = titler.String(c.Name)
		if _, dup := r.byCode[c.Code]; dup {
			return nil, eris.Errorf("registry: duplicate country code %q", c.Code)
		}
		r.countries = append(r.countries, c)
		r.byCode[c.Code] = c
	}

	sort.Slice(r.countries, func(i, j int) bool {
		return r.countries[i].Code < r.countries[j].Code
	})
	return r, nil
}

// All returns every registered country, ordered by code.
func (r *Registry) All() []Country {
	out := make([]Country, len(r.countries))
	copy(out, r.countries)
	return out
}

// ByCode returns the country for a code, if registered.
func (r *Registry) ByCode(code string) (Country, bool) {
	c, ok := r.byCode[code]
	return c, ok
}

// Codes returns every registered country code, ordered.
func (r *Registry) Codes() []string {
	codes := make([]string, len(r.countries))
	for i, c := range r.countries {
		codes[i] = c.Code
	}
	return codes
}

// Len returns the number of registered countries.
func (r *Registry) Len() int {
	return len(r.countries)
}
