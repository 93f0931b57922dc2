// Package solver wraps the gophersat pseudo-boolean engine behind a small
// model-building API. Optimization is done by bound tightening: solve once
// for feasibility, then binary-search the objective lower bound with fresh
// solver instances until the bound is proven or the deadline expires.
package solver

import (
	"context"
	"fmt"

	"github.com/crillab/gophersat/solver"
)

// Status is the outcome of a Maximize run.
type Status string

const (
	StatusOptimal    Status = "OPTIMAL"
	StatusFeasible   Status = "FEASIBLE"
	StatusInfeasible Status = "INFEASIBLE"
	StatusUnknown    Status = "UNKNOWN"
)

// Model accumulates boolean variables, pseudo-boolean constraints and a
// linear objective. Variables are 1-based; a negative literal -v means the
// negation of variable v.
type Model struct {
	nVars   int
	constrs []solver.PBConstr

	objLits    []int
	objWeights []int
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// NewVar allocates a fresh boolean variable and returns its positive literal.
func (m *Model) NewVar() int {
	m.nVars++
	return m.nVars
}

// NumVars returns the number of allocated variables.
func (m *Model) NumVars() int {
	return m.nVars
}

// AtLeast adds sum(lits) >= n.
func (m *Model) AtLeast(lits []int, n int) {
	if n <= 0 {
		return
	}
	weights := ones(len(lits))
	m.constrs = append(m.constrs, solver.GtEq(append([]int(nil), lits...), weights, n))
}

// AtMost adds sum(lits) <= n, encoded as sum(negated lits) >= len-n.
func (m *Model) AtMost(lits []int, n int) {
	if n >= len(lits) {
		return
	}
	negated := make([]int, len(lits))
	for i, lit := range lits {
		negated[i] = -lit
	}
	m.constrs = append(m.constrs, solver.GtEq(negated, ones(len(lits)), len(lits)-n))
}

// Exactly adds sum(lits) == n.
func (m *Model) Exactly(lits []int, n int) {
	m.AtLeast(lits, n)
	m.AtMost(lits, n)
}

// AddClause adds a plain disjunction over the literals.
func (m *Model) AddClause(lits ...int) {
	m.AtLeast(lits, 1)
}

// And allocates an auxiliary variable equivalent to a AND b.
func (m *Model) And(a, b int) int {
	aux := m.NewVar()
	// aux -> a, aux -> b, (a AND b) -> aux
	m.AddClause(-aux, a)
	m.AddClause(-aux, b)
	m.AddClause(aux, -a, -b)
	return aux
}

// AddObjectiveTerm adds weight*lit to the maximized objective. Negative
// weights are allowed.
func (m *Model) AddObjectiveTerm(lit, weight int) {
	if weight == 0 {
		return
	}
	m.objLits = append(m.objLits, lit)
	m.objWeights = append(m.objWeights, weight)
}

// Result carries the best assignment found by Maximize.
type Result struct {
	Status    Status
	Values    []bool
	Objective int
}

// Value reports the assignment of a variable in the result model.
func (r Result) Value(v int) bool {
	if v < 1 || v > len(r.Values) {
		return false
	}
	return r.Values[v-1]
}

// Maximize searches for an assignment maximizing the model's objective. It
// returns the best incumbent found before ctx expires; StatusOptimal is
// reported only when the bound search converged.
func Maximize(ctx context.Context, m *Model) (Result, error) {
	if m.nVars == 0 {
		return Result{Status: StatusOptimal}, nil
	}

	lits, weights := m.normalizedObjective()

	status, values := solveWithin(ctx, m.constrs, m.nVars)
	switch status {
	case solver.Unsat:
		return Result{Status: StatusInfeasible}, nil
	case solver.Indet:
		return Result{Status: StatusUnknown}, nil
	}

	incumbent := Result{
		Status:    StatusFeasible,
		Values:    values,
		Objective: evaluate(m.objLits, m.objWeights, values),
	}

	lower := evaluate(lits, weights, values)
	upper := 0
	for _, w := range weights {
		upper += w
	}

	proven := lower >= upper
	for lower < upper {
		if ctx.Err() != nil {
			break
		}
		mid := lower + (upper-lower+1)/2

		probe := append([]solver.PBConstr(nil), m.constrs...)
		if len(lits) > 0 {
			probe = append(probe, solver.GtEq(append([]int(nil), lits...), append([]int(nil), weights...), mid))
		}

		status, values = solveWithin(ctx, probe, m.nVars)
		switch status {
		case solver.Sat:
			incumbent.Values = values
			incumbent.Objective = evaluate(m.objLits, m.objWeights, values)
			lower = evaluate(lits, weights, values)
		case solver.Unsat:
			upper = mid - 1
		default:
			// Deadline hit mid-search; keep the incumbent.
			return incumbent, nil
		}
		proven = lower >= upper
	}

	if proven {
		incumbent.Status = StatusOptimal
	}
	return incumbent, nil
}

// normalizedObjective rewrites negative-weight terms w*x as |w|*(-x) so the
// bound search only handles non-negative weights. The rewrite shifts the
// objective by a constant, which changes neither the search order nor the
// incumbent; Result.Objective is always evaluated on the original terms.
func (m *Model) normalizedObjective() (lits []int, weights []int) {
	lits = make([]int, 0, len(m.objLits))
	weights = make([]int, 0, len(m.objWeights))
	for i, lit := range m.objLits {
		w := m.objWeights[i]
		if w < 0 {
			lits = append(lits, -lit)
			weights = append(weights, -w)
			continue
		}
		lits = append(lits, lit)
		weights = append(weights, w)
	}
	return lits, weights
}

func evaluate(lits, weights []int, values []bool) int {
	total := 0
	for i, lit := range lits {
		if litTrue(lit, values) {
			total += weights[i]
		}
	}
	return total
}

func litTrue(lit int, values []bool) bool {
	v := lit
	if v < 0 {
		v = -v
	}
	if v < 1 || v > len(values) {
		return false
	}
	if lit < 0 {
		return !values[v-1]
	}
	return values[v-1]
}

// solveWithin runs one gophersat solve in a goroutine and races it against
// the context deadline. An abandoned solve finishes in the background; its
// result is discarded.
func solveWithin(ctx context.Context, constrs []solver.PBConstr, nVars int) (solver.Status, []bool) {
	type outcome struct {
		status solver.Status
		values []bool
	}

	done := make(chan outcome, 1)
	go func() {
		pb := solver.ParsePBConstrs(constrs)
		s := solver.New(pb)
		status := s.Solve()
		var values []bool
		if status == solver.Sat {
			model := s.Model()
			values = make([]bool, nVars)
			copy(values, model)
		}
		done <- outcome{status: status, values: values}
	}()

	select {
	case <-ctx.Done():
		return solver.Indet, nil
	case out := <-done:
		return out.status, out.values
	}
}

// Sanity guard used in tests.
func checkLits(lits []int, nVars int) error {
	for _, lit := range lits {
		v := lit
		if v < 0 {
			v = -v
		}
		if v < 1 || v > nVars {
			return fmt.Errorf("literal %d out of range [1,%d]", lit, nVars)
		}
	}
	return nil
}

func ones(n int) []int {
	w := make([]int, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
