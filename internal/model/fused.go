package model

// FusedField is the transient result of resolving one metric through the
// fall-through source chain. It is never persisted as its own entity; the
// upsert layer reduces it into the owning record's column plus a provenance
// map entry.
type FusedField struct {
	Key        string `json:"key"`
	Value      any    `json:"value"`
	Year       int    `json:"year,omitempty"`
	SourceName string `json:"source_name"`
	SourceURL  string `json:"source_url,omitempty"`
	IsProxy    bool   `json:"is_proxy,omitempty"`
	IsEstimate bool   `json:"is_estimate,omitempty"`
}

// ProvenanceEntry records where a persisted field's current value came from.
type ProvenanceEntry struct {
	Source     string `json:"source"`
	URL        string `json:"url,omitempty"`
	Year       int    `json:"year,omitempty"`
	IsProxy    bool   `json:"is_proxy,omitempty"`
	IsEstimate bool   `json:"is_estimate,omitempty"`
}

// Provenance maps a record's field keys to the entry describing each
// field's winning source.
type Provenance map[string]ProvenanceEntry

// Merge overlays other onto p key by key, returning the merged map.
// Existing keys not mentioned in other are preserved.
func (p Provenance) Merge(other Provenance) Provenance {
	merged := make(Provenance, len(p)+len(other))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// FieldSet is the set of fused fields destined for one sub-record, keyed by
// metric key. Keys absent from the set are left untouched by an upsert.
type FieldSet map[string]FusedField

// Provenance derives the provenance entries for every field in the set.
func (fs FieldSet) Provenance() Provenance {
	p := make(Provenance, len(fs))
	for key, f := range fs {
		p[key] = ProvenanceEntry{
			Source:     f.SourceName,
			URL:        f.SourceURL,
			Year:       f.Year,
			IsProxy:    f.IsProxy,
			IsEstimate: f.IsEstimate,
		}
	}
	return p
}

// FusedBundle is the full fusion output for one country: one field set per
// sub-record plus the set of sources that actually contributed.
type FusedBundle struct {
	CountryCode string   `json:"country_code"`
	Governance  FieldSet `json:"governance"`
	Hazard      FieldSet `json:"hazard"`
	Vigilance   FieldSet `json:"vigilance"`
	Restoration FieldSet `json:"restoration"`

	// SourcesUsed is observability only; it never affects correctness.
	SourcesUsed map[string]bool `json:"sources_used"`
}

// NewFusedBundle returns an empty bundle for the given country.
func NewFusedBundle(code string) *FusedBundle {
	return &FusedBundle{
		CountryCode: code,
		Governance:  make(FieldSet),
		Hazard:      make(FieldSet),
		Vigilance:   make(FieldSet),
		Restoration: make(FieldSet),
		SourcesUsed: make(map[string]bool),
	}
}
