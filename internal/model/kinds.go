package model

// MetricKind describes how a metric's value is typed end to end, from
// curated data validation through to the persisted column.
type MetricKind int

// Metric kinds.
const (
	KindNumber MetricKind = iota
	KindBool
	KindCategorical
)

// MetricKinds maps every metric key to its kind. The upsert layer rejects
// keys missing from this map.
var MetricKinds = map[string]MetricKind{
	MetricRatifiedC155:     KindBool,
	MetricRatifiedC187:     KindBool,
	MetricInspectorDensity: KindNumber,
	MetricPolicyPresent:    KindBool,
	MetricCapacityScore:    KindNumber,

	MetricFatalityRate:         KindNumber,
	MetricExposurePct:          KindNumber,
	MetricRegulationStrictness: KindCategorical,
	MetricCompliancePct:        KindNumber,
	MetricInjuryRate:           KindNumber,
	MetricTrainingHours:        KindNumber,

	MetricSurveillanceLogic:      KindCategorical,
	MetricDetectionRate:          KindNumber,
	MetricVulnerabilityIndex:     KindNumber,
	MetricMigrantSharePct:        KindNumber,
	MetricReportingCompliancePct: KindNumber,
	MetricScreeningCompliancePct: KindNumber,

	MetricPayerMechanism:   KindCategorical,
	MetricReintegrationLaw: KindBool,
	MetricAbsenceDays:      KindNumber,
	MetricRehabAccessScore: KindNumber,
	MetricRTWSuccessPct:    KindNumber,
	MetricSettlementMonths: KindNumber,
	MetricParticipationPct: KindNumber,
}

// CategoricalAllowList returns the known-values set for a categorical
// metric, or nil for non-categorical keys.
func CategoricalAllowList(metricKey string) map[string]bool {
	switch metricKey {
	case MetricRegulationStrictness:
		return KnownRegulationStrictness
	case MetricSurveillanceLogic:
		return KnownSurveillanceLogics
	case MetricPayerMechanism:
		return KnownPayerMechanisms
	default:
		return nil
	}
}
