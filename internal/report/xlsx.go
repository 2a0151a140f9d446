// Package report renders persisted scores into an XLSX workbook for
// distribution to non-technical stakeholders.
package report

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/worksafe-analytics/oshindex/internal/model"
	"github.com/worksafe-analytics/oshindex/internal/scoring"
	"github.com/worksafe-analytics/oshindex/internal/store"
)

var scoreHeader = []string{
	"Country Code", "Country", "Maturity Score", "Label", "Color", "Fatality Rate", "Updated",
}

var provenanceHeader = []string{
	"Country Code", "Record", "Metric", "Source", "URL", "Year", "Proxy", "Estimate",
}

// Exporter writes score workbooks from the store.
type Exporter struct {
	store store.Store
}

// NewExporter creates an Exporter.
func NewExporter(st store.Store) *Exporter {
	return &Exporter{store: st}
}

// Export writes every stored country to an XLSX workbook at path: one
// sheet with scores, one with per-field provenance.
func (e *Exporter) Export(ctx context.Context, path string) (int, error) {
	countries, err := e.store.ListCountries(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "report: list countries")
	}
	if len(countries) == 0 {
		return 0, eris.New("report: no countries to export")
	}

	file := xlsx.NewFile()
	scores, err := file.AddSheet("Scores")
	if err != nil {
		return 0, eris.Wrap(err, "report: add scores sheet")
	}
	provenance, err := file.AddSheet("Provenance")
	if err != nil {
		return 0, eris.Wrap(err, "report: add provenance sheet")
	}

	addStringRow(scores, scoreHeader)
	addStringRow(provenance, provenanceHeader)

	exported := 0
	for _, country := range countries {
		if err := ctx.Err(); err != nil {
			return 0, eris.Wrap(err, "report: export cancelled")
		}
		bundle, err := e.store.GetBundle(ctx, country.Code)
		if err != nil {
			return 0, eris.Wrapf(err, "report: load bundle for %s", country.Code)
		}
		writeScoreRow(scores, bundle)
		writeProvenanceRows(provenance, bundle)
		exported++
	}

	if err := file.Save(path); err != nil {
		return 0, eris.Wrapf(err, "report: save workbook %s", path)
	}
	zap.L().Info("report: workbook written",
		zap.String("path", path),
		zap.Int("countries", exported),
	)
	return exported, nil
}

func writeScoreRow(sheet *xlsx.Sheet, bundle *model.CountryBundle) {
	row := sheet.AddRow()
	row.AddCell().SetString(bundle.Country.Code)
	row.AddCell().SetString(bundle.Country.Name)

	if bundle.Country.MaturityScore != nil {
		score := *bundle.Country.MaturityScore
		row.AddCell().SetFloatWithFormat(score, "0.0")
		label := scoring.Label(score)
		if bundle.Country.MaturityLabel != nil {
			label = *bundle.Country.MaturityLabel
		}
		row.AddCell().SetString(label)
		row.AddCell().SetString(scoring.Color(score))
	} else {
		row.AddCell().SetString("")
		row.AddCell().SetString("")
		row.AddCell().SetString("")
	}

	if bundle.Hazard != nil && bundle.Hazard.FatalityRate != nil {
		row.AddCell().SetFloat(*bundle.Hazard.FatalityRate)
	} else {
		row.AddCell().SetString("")
	}
	row.AddCell().SetString(bundle.Country.UpdatedAt.UTC().Format("2006-01-02"))
}

func writeProvenanceRows(sheet *xlsx.Sheet, bundle *model.CountryBundle) {
	sections := []struct {
		name string
		prov model.Provenance
	}{
		{"governance", nil},
		{"hazard", nil},
		{"vigilance", nil},
		{"restoration", nil},
	}
	if bundle.Governance != nil {
		sections[0].prov = bundle.Governance.Provenance
	}
	if bundle.Hazard != nil {
		sections[1].prov = bundle.Hazard.Provenance
	}
	if bundle.Vigilance != nil {
		sections[2].prov = bundle.Vigilance.Provenance
	}
	if bundle.Restoration != nil {
		sections[3].prov = bundle.Restoration.Provenance
	}

	for _, section := range sections {
		for _, key := range sortedKeys(section.prov) {
			entry := section.prov[key]
			row := sheet.AddRow()
			row.AddCell().SetString(bundle.Country.Code)
			row.AddCell().SetString(section.name)
			row.AddCell().SetString(key)
			row.AddCell().SetString(entry.Source)
			row.AddCell().SetString(entry.URL)
			if entry.Year > 0 {
				row.AddCell().SetInt(entry.Year)
			} else {
				row.AddCell().SetString("")
			}
			row.AddCell().SetBool(entry.IsProxy)
			row.AddCell().SetBool(entry.IsEstimate)
		}
	}
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func sortedKeys(p model.Provenance) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
