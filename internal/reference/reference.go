// Package reference resolves metrics from hand-curated data with a
// regional-average fallback. Resolution of the fatality rate is total:
// every country code gets some value, estimates marked as such.
package reference

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/worksafe-analytics/oshindex/internal/model"
)

// Source names recorded in provenance entries.
const (
	SourceCurated          = "REFERENCE"
	SourceRegionalEstimate = "REGIONAL_ESTIMATE"
	SourceGlobalDefault    = "GLOBAL_DEFAULT"
)

// DefaultRegion is the catch-all bucket for country codes missing from the
// region classification. Asia is the pinned default; changing it changes
// estimated scores for unmapped codes.
const DefaultRegion = "asia"

//go:embed reference.yaml
var referenceYAML []byte

type curatedEntry struct {
	Value  any    `yaml:"value"`
	Year   int    `yaml:"year"`
	Source string `yaml:"source"`
	URL    string `yaml:"url"`
}

type referenceFile struct {
	Regions               map[string][]string                `yaml:"regions"`
	RegionalFatality      map[string]float64                 `yaml:"regional_fatality"`
	GlobalDefaultFatality float64                            `yaml:"global_default_fatality"`
	Curated               map[string]map[string]curatedEntry `yaml:"curated"`
}

// Resolver serves curated lookups and the total fatality-rate resolution.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	regionByCode     map[string]string
	regionalFatality map[string]float64
	globalFatality   float64
	curated          map[string]map[string]curatedEntry
}

// New parses and validates the embedded reference dataset.
func New() (*Resolver, error) {
	var file referenceFile
	if err := yaml.Unmarshal(referenceYAML, &file); err != nil {
		return nil, eris.Wrap(err, "reference: unmarshal dataset")
	}
	if file.GlobalDefaultFatality <= 0 {
		return nil, eris.New("reference: missing global default fatality rate")
	}
	if _, ok := file.RegionalFatality[DefaultRegion]; !ok {
		return nil, eris.Errorf("reference: no regional fatality average for default region %q", DefaultRegion)
	}

	r := &Resolver{
		regionByCode:     make(map[string]string),
		regionalFatality: file.RegionalFatality,
		globalFatality:   file.GlobalDefaultFatality,
		curated:          file.Curated,
	}
	for region, codes := range file.Regions {
		if _, ok := file.RegionalFatality[region]; !ok {
			return nil, eris.Errorf("reference: region %q has no fatality average", region)
		}
		for _, code := range codes {
			if prev, dup := r.regionByCode[code]; dup {
				return nil, eris.Errorf("reference: country %s classified in both %s and %s", code, prev, region)
			}
			r.regionByCode[code] = region
		}
	}

	if err := r.validateCurated(); err != nil {
		return nil, err
	}
	return r, nil
}

// validateCurated checks every curated entry against the metric key list
// and the categorical allow-lists.
func (r *Resolver) validateCurated() error {
	for code, metrics := range r.curated {
		for key, entry := range metrics {
			kind, known := model.MetricKinds[key]
			if !known {
				return eris.Errorf("reference: %s: unknown metric key %q", code, key)
			}
			switch kind {
			case model.KindBool:
				if _, ok := entry.Value.(bool); !ok {
					return eris.Errorf("reference: %s.%s: expected bool, got %T", code, key, entry.Value)
				}
			case model.KindNumber:
				if _, ok := toFloat(entry.Value); !ok {
					return eris.Errorf("reference: %s.%s: expected number, got %T", code, key, entry.Value)
				}
			case model.KindCategorical:
				s, ok := entry.Value.(string)
				if !ok {
					return eris.Errorf("reference: %s.%s: expected string, got %T", code, key, entry.Value)
				}
				if allow := model.CategoricalAllowList(key); allow != nil && !allow[s] {
					return eris.Errorf("reference: %s.%s: value %q not in allow-list", code, key, s)
				}
			}
		}
	}
	return nil
}

// Region returns the region bucket for a country code. Unmapped codes fall
// into the default region rather than erroring.
func (r *Resolver) Region(code string) string {
	if region, ok := r.regionByCode[code]; ok {
		return region
	}
	return DefaultRegion
}

// Lookup returns the curated value for one metric, when one exists.
func (r *Resolver) Lookup(code, metricKey string) (model.FusedField, bool) {
	metrics, ok := r.curated[code]
	if !ok {
		return model.FusedField{}, false
	}
	entry, ok := metrics[metricKey]
	if !ok {
		return model.FusedField{}, false
	}

	value := entry.Value
	if f, isNum := toFloat(value); isNum {
		value = f
	}
	source := entry.Source
	if source == "" {
		source = SourceCurated
	}
	return model.FusedField{
		Key:        metricKey,
		Value:      value,
		Year:       entry.Year,
		SourceName: source,
		SourceURL:  entry.URL,
	}, true
}

// ResolveFatality is the total three-tier fatality-rate resolution:
// curated value, then the regional average, then the global default. The
// last two are marked as estimates.
func (r *Resolver) ResolveFatality(code string) model.FusedField {
	if f, ok := r.Lookup(code, model.MetricFatalityRate); ok {
		return f
	}

	region := r.Region(code)
	if avg, ok := r.regionalFatality[region]; ok {
		return model.FusedField{
			Key:        model.MetricFatalityRate,
			Value:      avg,
			SourceName: SourceRegionalEstimate,
			IsEstimate: true,
		}
	}

	return model.FusedField{
		Key:        model.MetricFatalityRate,
		Value:      r.globalFatality,
		SourceName: SourceGlobalDefault,
		IsEstimate: true,
	}
}

// RegionalFatality exposes the per-region averages for reporting.
func (r *Resolver) RegionalFatality() map[string]float64 {
	out := make(map[string]float64, len(r.regionalFatality))
	for k, v := range r.regionalFatality {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
