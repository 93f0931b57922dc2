package dto

// QuotaRequest sets the duty quota of one grade.
type QuotaRequest struct {
	Grade string `json:"grade" validate:"required"`
	Quota int    `json:"quota" validate:"min=0"`
}

// RatiosRequest updates the staffing ratios.
type RatiosRequest struct {
	TeachersPerRoom int     `json:"teachers_per_room" validate:"required,min=1"`
	SurplusPerRoom  float64 `json:"surplus_per_room" validate:"min=0"`
}

// ConfigDiagnostics compares configured quotas against the roster grades.
type ConfigDiagnostics struct {
	MissingQuotas []string `json:"missing_quotas"`
	UnknownGrades []string `json:"unknown_grades"`
}
