package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaximizeEmptyModel(t *testing.T) {
	res, err := Maximize(context.Background(), NewModel())
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.Equal(t, 0, res.Objective)
}

func TestMaximizePicksHighestWeight(t *testing.T) {
	m := NewModel()
	a := m.NewVar()
	b := m.NewVar()
	c := m.NewVar()
	require.NoError(t, checkLits([]int{a, b, c}, m.NumVars()))

	// Only one of the three may be chosen.
	m.AtMost([]int{a, b, c}, 1)
	m.AddObjectiveTerm(a, 10)
	m.AddObjectiveTerm(b, 50)
	m.AddObjectiveTerm(c, 20)

	res, err := Maximize(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.Equal(t, 50, res.Objective)
	assert.False(t, res.Value(a))
	assert.True(t, res.Value(b))
	assert.False(t, res.Value(c))
}

func TestMaximizeAvoidsNegativeWeights(t *testing.T) {
	m := NewModel()
	a := m.NewVar()
	b := m.NewVar()

	// Exactly one must be chosen; the penalty on a should push toward b.
	m.Exactly([]int{a, b}, 1)
	m.AddObjectiveTerm(a, -100)
	m.AddObjectiveTerm(b, 5)

	res, err := Maximize(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.False(t, res.Value(a))
	assert.True(t, res.Value(b))
	assert.Equal(t, 5, res.Objective)
}

func TestMaximizeInfeasible(t *testing.T) {
	m := NewModel()
	a := m.NewVar()

	m.AtLeast([]int{a}, 1)
	m.AtMost([]int{a}, 0)

	res, err := Maximize(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, res.Status)
}

func TestAndLinksBothOperands(t *testing.T) {
	m := NewModel()
	a := m.NewVar()
	b := m.NewVar()
	both := m.And(a, b)

	// Reward the pair only when both are set; force a on, leave b free.
	m.AtLeast([]int{a}, 1)
	m.AddObjectiveTerm(both, 10)

	res, err := Maximize(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.True(t, res.Value(a))
	assert.True(t, res.Value(b))
	assert.True(t, res.Value(both))
}

func TestMaximizeExactlyConstraint(t *testing.T) {
	m := NewModel()
	vars := make([]int, 5)
	for i := range vars {
		vars[i] = m.NewVar()
	}
	m.Exactly(vars, 3)
	for _, v := range vars {
		m.AddObjectiveTerm(v, 1)
	}

	res, err := Maximize(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.Equal(t, 3, res.Objective)
}

func TestMaximizeHonorsCancelledContext(t *testing.T) {
	m := NewModel()
	a := m.NewVar()
	m.AddObjectiveTerm(a, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res, err := Maximize(ctx, m)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusUnknown, res.Status)
}
