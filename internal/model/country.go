package model

import "time"

// Country is the aggregate root, identified by its ISO 3166-1 alpha-3 code.
// Sub-records are exclusively owned by the country and cascade with it.
type Country struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	MaturityScore *float64  `json:"maturity_score,omitempty"` // bounded 1.0-4.0
	MaturityLabel *string   `json:"maturity_label,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Regulation strictness values for hazard records.
const (
	RegulationStrict   = "strict"
	RegulationAdvisory = "advisory"
	RegulationNone     = "none"
)

// Surveillance logic and payer mechanism are open string categoricals.
// New values arrive as data, not as schema changes; the allow-lists below
// are checked at the application layer.
const (
	SurveillanceRiskBased = "risk_based"
	SurveillanceMandatory = "mandatory"
	SurveillanceNone      = "none"

	PayerNoFault    = "no_fault"
	PayerLitigation = "litigation"
)

// KnownSurveillanceLogics lists the currently recognized surveillance
// logic values.
var KnownSurveillanceLogics = map[string]bool{
	SurveillanceRiskBased: true,
	SurveillanceMandatory: true,
	SurveillanceNone:      true,
	"sentinel":            true,
	"voluntary":           true,
}

// KnownPayerMechanisms lists the currently recognized payer mechanisms.
var KnownPayerMechanisms = map[string]bool{
	PayerNoFault:      true,
	PayerLitigation:   true,
	"hybrid":          true,
	"employer_direct": true,
}

// KnownRegulationStrictness lists the closed regulation strictness values.
var KnownRegulationStrictness = map[string]bool{
	RegulationStrict:   true,
	RegulationAdvisory: true,
	RegulationNone:     true,
}

// GovernanceRecord holds convention ratification and inspection capacity
// metrics. At most one record exists per country code.
type GovernanceRecord struct {
	CountryCode      string     `json:"country_code"`
	RatifiedC155     *bool      `json:"ratified_c155,omitempty"`
	RatifiedC187     *bool      `json:"ratified_c187,omitempty"`
	InspectorDensity *float64   `json:"inspector_density,omitempty"` // per 10k workers
	PolicyPresent    *bool      `json:"policy_present,omitempty"`
	CapacityScore    *float64   `json:"capacity_score,omitempty"` // 0-100
	Provenance       Provenance `json:"provenance"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HazardRecord holds exposure and outcome metrics for workplace hazards.
type HazardRecord struct {
	CountryCode          string     `json:"country_code"`
	FatalityRate         *float64   `json:"fatality_rate,omitempty"` // per 100k workers
	ExposurePct          *float64   `json:"exposure_pct,omitempty"`
	RegulationStrictness *string    `json:"regulation_strictness,omitempty"`
	CompliancePct        *float64   `json:"compliance_pct,omitempty"`
	InjuryRate           *float64   `json:"injury_rate,omitempty"`
	TrainingHours        *float64   `json:"training_hours,omitempty"`
	MaturityScore        *float64   `json:"maturity_score,omitempty"`
	Provenance           Provenance `json:"provenance"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// VigilanceRecord holds surveillance and detection metrics.
type VigilanceRecord struct {
	CountryCode            string     `json:"country_code"`
	SurveillanceLogic      *string    `json:"surveillance_logic,omitempty"`
	DetectionRate          *float64   `json:"detection_rate,omitempty"`
	VulnerabilityIndex     *float64   `json:"vulnerability_index,omitempty"` // 0-100, lower is better
	MigrantSharePct        *float64   `json:"migrant_share_pct,omitempty"`
	ReportingCompliancePct *float64   `json:"reporting_compliance_pct,omitempty"`
	ScreeningCompliancePct *float64   `json:"screening_compliance_pct,omitempty"`
	Provenance             Provenance `json:"provenance"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// RestorationRecord holds compensation and return-to-work metrics.
type RestorationRecord struct {
	CountryCode      string     `json:"country_code"`
	PayerMechanism   *string    `json:"payer_mechanism,omitempty"`
	ReintegrationLaw *bool      `json:"reintegration_law,omitempty"`
	AbsenceDays      *float64   `json:"absence_days,omitempty"`
	RehabAccessScore *float64   `json:"rehab_access_score,omitempty"` // 0-100
	RTWSuccessPct    *float64   `json:"rtw_success_pct,omitempty"`
	SettlementMonths *float64   `json:"settlement_months,omitempty"`
	ParticipationPct *float64   `json:"participation_pct,omitempty"`
	Provenance       Provenance `json:"provenance"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CountryBundle is the fully loaded aggregate the scoring engine consumes.
// Nil sub-records mean no data has been resolved for that dimension yet.
type CountryBundle struct {
	Country     Country            `json:"country"`
	Governance  *GovernanceRecord  `json:"governance,omitempty"`
	Hazard      *HazardRecord      `json:"hazard,omitempty"`
	Vigilance   *VigilanceRecord   `json:"vigilance,omitempty"`
	Restoration *RestorationRecord `json:"restoration,omitempty"`
}
