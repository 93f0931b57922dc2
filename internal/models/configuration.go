package models

import "fmt"

const (
	DefaultTeachersPerRoom = 2
	DefaultSurplusPerRoom  = 0.5
)

// DutyConfig holds the tunables of the assignment engine: how many duties
// each grade owes and how densely sessions must be staffed.
type DutyConfig struct {
	GradeQuotas     map[string]int `json:"grade_quotas"`
	TeachersPerRoom int            `json:"teachers_per_room"`
	SurplusPerRoom  float64        `json:"surplus_per_room"`
}

// NewDutyConfig returns a config with staffing defaults and no quotas.
func NewDutyConfig() *DutyConfig {
	return &DutyConfig{
		GradeQuotas:     make(map[string]int),
		TeachersPerRoom: DefaultTeachersPerRoom,
		SurplusPerRoom:  DefaultSurplusPerRoom,
	}
}

// Validate checks the structural invariants of the config.
func (c *DutyConfig) Validate() error {
	if c.TeachersPerRoom < 1 {
		return fmt.Errorf("teachers per room must be at least 1, got %d", c.TeachersPerRoom)
	}
	if c.SurplusPerRoom < 0 {
		return fmt.Errorf("surplus per room must not be negative, got %g", c.SurplusPerRoom)
	}
	for grade, quota := range c.GradeQuotas {
		if grade == "" {
			return fmt.Errorf("grade name must not be empty")
		}
		if quota < 0 {
			return fmt.Errorf("quota for grade %q must not be negative, got %d", grade, quota)
		}
	}
	return nil
}

// QuotaFor returns the duty quota of a grade, zero when unknown.
func (c *DutyConfig) QuotaFor(grade string) int {
	if c == nil {
		return 0
	}
	return c.GradeQuotas[grade]
}

// Clone returns a deep copy so the engine can snapshot the config.
func (c *DutyConfig) Clone() *DutyConfig {
	if c == nil {
		return NewDutyConfig()
	}
	quotas := make(map[string]int, len(c.GradeQuotas))
	for grade, quota := range c.GradeQuotas {
		quotas[grade] = quota
	}
	return &DutyConfig{
		GradeQuotas:     quotas,
		TeachersPerRoom: c.TeachersPerRoom,
		SurplusPerRoom:  c.SurplusPerRoom,
	}
}
