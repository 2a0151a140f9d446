package model

// Metric keys double as persisted column names, so every key must stay in
// the per-record lists below for the upsert layer to accept it.
const (
	// Governance.
	MetricRatifiedC155     = "ratified_c155"
	MetricRatifiedC187     = "ratified_c187"
	MetricInspectorDensity = "inspector_density"
	MetricPolicyPresent    = "policy_present"
	MetricCapacityScore    = "capacity_score"

	// Hazard.
	MetricFatalityRate         = "fatality_rate"
	MetricExposurePct          = "exposure_pct"
	MetricRegulationStrictness = "regulation_strictness"
	MetricCompliancePct        = "compliance_pct"
	MetricInjuryRate           = "injury_rate"
	MetricTrainingHours        = "training_hours"

	// Vigilance.
	MetricSurveillanceLogic      = "surveillance_logic"
	MetricDetectionRate          = "detection_rate"
	MetricVulnerabilityIndex     = "vulnerability_index"
	MetricMigrantSharePct        = "migrant_share_pct"
	MetricReportingCompliancePct = "reporting_compliance_pct"
	MetricScreeningCompliancePct = "screening_compliance_pct"

	// Restoration.
	MetricPayerMechanism   = "payer_mechanism"
	MetricReintegrationLaw = "reintegration_law"
	MetricAbsenceDays      = "absence_days"
	MetricRehabAccessScore = "rehab_access_score"
	MetricRTWSuccessPct    = "rtw_success_pct"
	MetricSettlementMonths = "settlement_months"
	MetricParticipationPct = "participation_pct"
)

// GovernanceMetrics lists the metric keys stored on governance records.
var GovernanceMetrics = []string{
	MetricRatifiedC155,
	MetricRatifiedC187,
	MetricInspectorDensity,
	MetricPolicyPresent,
	MetricCapacityScore,
}

// HazardMetrics lists the metric keys stored on hazard records.
var HazardMetrics = []string{
	MetricFatalityRate,
	MetricExposurePct,
	MetricRegulationStrictness,
	MetricCompliancePct,
	MetricInjuryRate,
	MetricTrainingHours,
}

// VigilanceMetrics lists the metric keys stored on vigilance records.
var VigilanceMetrics = []string{
	MetricSurveillanceLogic,
	MetricDetectionRate,
	MetricVulnerabilityIndex,
	MetricMigrantSharePct,
	MetricReportingCompliancePct,
	MetricScreeningCompliancePct,
}

// RestorationMetrics lists the metric keys stored on restoration records.
var RestorationMetrics = []string{
	MetricPayerMechanism,
	MetricReintegrationLaw,
	MetricAbsenceDays,
	MetricRehabAccessScore,
	MetricRTWSuccessPct,
	MetricSettlementMonths,
	MetricParticipationPct,
}
