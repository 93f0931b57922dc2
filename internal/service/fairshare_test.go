package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpreadFairShareZeroNeed(t *testing.T) {
	targets := spreadFairShare([]gradePool{{Grade: "A", Size: 3, Quota: 5}}, 0)
	assert.Equal(t, 0, targets["A"])
}

func TestSpreadFairShareSingleGrade(t *testing.T) {
	// Each round covers 2 duties; 5 outstanding duties need 3 rounds.
	targets := spreadFairShare([]gradePool{{Grade: "A", Size: 2, Quota: 10}}, 5)
	assert.Equal(t, 3, targets["A"])
}

func TestSpreadFairShareStopsAtQuota(t *testing.T) {
	targets := spreadFairShare([]gradePool{{Grade: "A", Size: 1, Quota: 2}}, 100)
	assert.Equal(t, 2, targets["A"])
}

func TestSpreadFairShareTieBreaksOnGradeName(t *testing.T) {
	pools := []gradePool{
		{Grade: "B", Size: 1, Quota: 4},
		{Grade: "A", Size: 1, Quota: 4},
	}
	targets := spreadFairShare(pools, 1)
	assert.Equal(t, 1, targets["A"])
	assert.Equal(t, 0, targets["B"])
}

func TestSpreadFairShareBalancesByQuotaShare(t *testing.T) {
	pools := []gradePool{
		{Grade: "A", Size: 10, Quota: 20},
		{Grade: "B", Size: 8, Quota: 18},
		{Grade: "C", Size: 6, Quota: 15},
	}
	targets := spreadFairShare(pools, 150)

	covered := 0
	for _, pool := range pools {
		target := targets[pool.Grade]
		assert.GreaterOrEqual(t, target, 1, "grade %s should contribute", pool.Grade)
		assert.LessOrEqual(t, target, pool.Quota)
		covered += target * pool.Size
	}
	assert.GreaterOrEqual(t, covered, 150)

	// Quota-relative shares should end up close together.
	shares := make([]float64, 0, len(pools))
	for _, pool := range pools {
		shares = append(shares, float64(targets[pool.Grade])/float64(pool.Quota))
	}
	for i := 1; i < len(shares); i++ {
		diff := shares[i] - shares[0]
		if diff < 0 {
			diff = -diff
		}
		assert.Less(t, diff, 0.2)
	}
}

func TestSpreadFairShareCapsNearlyLoadedGrade(t *testing.T) {
	// One more duty brings the average to the quota, so the grade takes
	// exactly one regardless of the outstanding need.
	targets := spreadFairShare([]gradePool{{Grade: "A", Size: 1, Quota: 6, AvgAssigned: 5}}, 5)
	assert.Equal(t, 1, targets["A"])
}

func TestSpreadFairShareAccountsForExistingLoad(t *testing.T) {
	pools := []gradePool{
		{Grade: "A", Size: 1, Quota: 10, AvgAssigned: 8},
		{Grade: "B", Size: 1, Quota: 10, AvgAssigned: 0},
	}
	targets := spreadFairShare(pools, 4)
	assert.Greater(t, targets["B"], targets["A"])
}

func TestSpreadFairShareStopsWhenNoGradeEligible(t *testing.T) {
	pools := []gradePool{
		{Grade: "A", Size: 2, Quota: 1},
		{Grade: "B", Size: 0, Quota: 10},
		{Grade: "C", Size: 3, Quota: 0},
	}
	targets := spreadFairShare(pools, 50)
	assert.Equal(t, 1, targets["A"])
	assert.Equal(t, 0, targets["B"])
	assert.Equal(t, 0, targets["C"])
}
