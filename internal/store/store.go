// Package store persists countries, their four metric sub-records, and
// pipeline runs. Two backends implement the same interface: Postgres via
// pgxpool for deployments and SQLite via modernc for local use and tests.
//
// Sub-record upserts follow a merge-not-replace contract: only the fields
// present in the incoming set are written, everything else on the row is
// left untouched, and provenance maps are merged key by key. Each upsert
// runs inside a transaction serialized on the country row so concurrent
// partial updates cannot interleave.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/worksafe-analytics/oshindex/internal/model"
)

// Store defines the persistence interface for the fusion pipeline.
type Store interface {
	// Countries
	EnsureCountry(ctx context.Context, code, name string) (created bool, err error)
	GetCountry(ctx context.Context, code string) (*model.Country, error)
	ListCountries(ctx context.Context) ([]model.Country, error)
	SetMaturityScore(ctx context.Context, code string, score float64, label string) error
	GetBundle(ctx context.Context, code string) (*model.CountryBundle, error)

	// Sub-record upserts, merge-not-replace
	UpsertGovernance(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error)
	UpsertHazard(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error)
	UpsertVigilance(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error)
	UpsertRestoration(ctx context.Context, code string, fields model.FieldSet) (*UpsertOutcome, error)

	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// UpsertOutcome reports what a sub-record upsert actually did.
type UpsertOutcome struct {
	Created   bool `json:"created"`
	FieldsSet int  `json:"fields_set"`
}

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// recordTable binds a sub-record table to the metric keys it may store.
type recordTable struct {
	name    string
	metrics map[string]bool
}

func newRecordTable(name string, keys []string) recordTable {
	t := recordTable{name: name, metrics: make(map[string]bool, len(keys))}
	for _, k := range keys {
		t.metrics[k] = true
	}
	return t
}

var (
	governanceTable  = newRecordTable("governance_records", model.GovernanceMetrics)
	hazardTable      = newRecordTable("hazard_records", model.HazardMetrics)
	vigilanceTable   = newRecordTable("vigilance_records", model.VigilanceMetrics)
	restorationTable = newRecordTable("restoration_records", model.RestorationMetrics)
)

// columnValues maps a field set onto column assignments for one table.
// Keys are validated against the table's metric list before they reach a
// query builder, so a bad key is an error here rather than injected SQL.
func columnValues(table recordTable, fields model.FieldSet) (map[string]any, error) {
	cols := make(map[string]any, len(fields))
	for key, f := range fields {
		if !table.metrics[key] {
			return nil, eris.Errorf("store: metric %q is not a column of %s", key, table.name)
		}
		kind, ok := model.MetricKinds[key]
		if !ok {
			return nil, eris.Errorf("store: unknown metric key %q", key)
		}
		switch kind {
		case model.KindNumber:
			if _, isNum := f.Value.(float64); !isNum {
				return nil, eris.Errorf("store: metric %q expects a number, got %T", key, f.Value)
			}
		case model.KindBool:
			if _, isBool := f.Value.(bool); !isBool {
				return nil, eris.Errorf("store: metric %q expects a bool, got %T", key, f.Value)
			}
		case model.KindCategorical:
			s, isStr := f.Value.(string)
			if !isStr {
				return nil, eris.Errorf("store: metric %q expects a string, got %T", key, f.Value)
			}
			if allow := model.CategoricalAllowList(key); allow != nil && !allow[s] {
				return nil, eris.Errorf("store: metric %q value %q not in allow-list", key, s)
			}
		}
		cols[key] = f.Value
	}
	return cols, nil
}

// scannable abstracts a single result row across both backends.
type scannable interface {
	Scan(dest ...any) error
}

// The scan helpers below expect the column order used by both backends'
// SELECT statements for each table.

func scanCountry(row scannable) (*model.Country, error) {
	var c model.Country
	err := row.Scan(&c.Code, &c.Name, &c.MaturityScore, &c.MaturityLabel, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanGovernance(row scannable) (*model.GovernanceRecord, error) {
	var rec model.GovernanceRecord
	var provJSON []byte
	err := row.Scan(
		&rec.CountryCode,
		&rec.RatifiedC155, &rec.RatifiedC187, &rec.InspectorDensity,
		&rec.PolicyPresent, &rec.CapacityScore,
		&provJSON, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalProvenance(provJSON, &rec.Provenance); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanHazard(row scannable) (*model.HazardRecord, error) {
	var rec model.HazardRecord
	var provJSON []byte
	err := row.Scan(
		&rec.CountryCode,
		&rec.FatalityRate, &rec.ExposurePct, &rec.RegulationStrictness,
		&rec.CompliancePct, &rec.InjuryRate, &rec.TrainingHours, &rec.MaturityScore,
		&provJSON, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalProvenance(provJSON, &rec.Provenance); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanVigilance(row scannable) (*model.VigilanceRecord, error) {
	var rec model.VigilanceRecord
	var provJSON []byte
	err := row.Scan(
		&rec.CountryCode,
		&rec.SurveillanceLogic, &rec.DetectionRate, &rec.VulnerabilityIndex,
		&rec.MigrantSharePct, &rec.ReportingCompliancePct, &rec.ScreeningCompliancePct,
		&provJSON, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalProvenance(provJSON, &rec.Provenance); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRestoration(row scannable) (*model.RestorationRecord, error) {
	var rec model.RestorationRecord
	var provJSON []byte
	err := row.Scan(
		&rec.CountryCode,
		&rec.PayerMechanism, &rec.ReintegrationLaw, &rec.AbsenceDays,
		&rec.RehabAccessScore, &rec.RTWSuccessPct, &rec.SettlementMonths,
		&rec.ParticipationPct,
		&provJSON, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalProvenance(provJSON, &rec.Provenance); err != nil {
		return nil, err
	}
	return &rec, nil
}

func unmarshalProvenance(raw []byte, dst *model.Provenance) error {
	if len(raw) == 0 {
		*dst = model.Provenance{}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return eris.Wrap(err, "store: unmarshal provenance")
	}
	return nil
}
