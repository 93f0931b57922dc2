package service

import "sort"

// gradePool summarizes the participating teachers of one grade.
type gradePool struct {
	Grade string
	// Size counts the grade's participating teachers.
	Size int
	// Quota is the per-teacher duty quota of the grade.
	Quota int
	// AvgAssigned is the mean number of duties already held per teacher.
	AvgAssigned float64
}

// spreadFairShare distributes an outstanding duty count across grades. Each
// round adds one duty per teacher of the least-loaded grade, where load is
// the quota-relative share (current average plus the duties handed out so
// far, divided by the grade quota). A grade whose average load plus target
// has reached its quota is out of the running; when every grade is out the
// spread stops early even with need left over. Ties break on ascending
// grade name. The returned map gives the per-teacher duty target of each
// grade.
func spreadFairShare(pools []gradePool, need int) map[string]int {
	targets := make(map[string]int, len(pools))
	for _, pool := range pools {
		targets[pool.Grade] = 0
	}
	if need <= 0 {
		return targets
	}

	ordered := make([]gradePool, len(pools))
	copy(ordered, pools)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Grade < ordered[j].Grade
	})

	remaining := need
	for remaining > 0 {
		best := -1
		bestScore := 0.0
		for i, pool := range ordered {
			if pool.Quota <= 0 || pool.Size <= 0 {
				continue
			}
			if pool.AvgAssigned+float64(targets[pool.Grade]) >= float64(pool.Quota) {
				continue
			}
			score := (pool.AvgAssigned + float64(targets[pool.Grade])) / float64(pool.Quota)
			if best == -1 || score < bestScore {
				best = i
				bestScore = score
			}
		}
		if best == -1 {
			break
		}
		pool := ordered[best]
		targets[pool.Grade]++
		remaining -= pool.Size
	}

	return targets
}
