package scheduler

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

func equalityInput() Input {
	return Input{
		Teachers: []exam.Teacher{
			teacher("A1", "MA", 2), teacher("A2", "MA", 2),
			teacher("B1", "PR", 1), teacher("B2", "PR", 1),
		},
		Slots: []exam.Slot{
			slot("S1", 1, "08:30", "S1", 2),
			slot("S2", 1, "10:30", "S2", 2),
			slot("S3", 1, "14:30", "S4", 2),
		},
	}
}

func TestExactCheckAgreesWithFlow(t *testing.T) {
	tight := testConfig()
	tight.MaxSessionsPerDay = 2

	cases := []struct {
		name     string
		in       Input
		cfg      Config
		feasible bool
	}{
		{name: "three days", in: threeDayInput(), cfg: testConfig(), feasible: true},
		{
			name: "everyone at quota",
			in: Input{
				Teachers: []exam.Teacher{teacher("A", "MA", 2), teacher("B", "MA", 2), teacher("C", "MA", 2)},
				Slots:    []exam.Slot{slot("S1", 1, "08:30", "S1", 3), slot("S2", 1, "10:30", "S2", 3)},
			},
			cfg:      testConfig(),
			feasible: true,
		},
		{
			name: "excluded by preference",
			in: Input{
				Teachers:    []exam.Teacher{teacher("A", "MA", 1)},
				Slots:       []exam.Slot{slot("S1", 1, "08:30", "S1", 1)},
				Preferences: []exam.Preference{{TeacherID: "A", Day: 1, Session: "S1"}},
			},
			cfg: testConfig(),
		},
		{
			name: "floors above demand",
			in: Input{
				Teachers: []exam.Teacher{teacher("A", "MA", 3), teacher("B", "MA", 3)},
				Slots:    []exam.Slot{slot("S1", 1, "08:30", "S1", 1), slot("S2", 2, "08:30", "S1", 1)},
			},
			cfg: testConfig(),
		},
		{
			name: "daily cap",
			in: Input{
				Teachers: []exam.Teacher{teacher("A", "MA", 0)},
				Slots: []exam.Slot{
					slot("S1", 1, "08:30", "S1", 1),
					slot("S2", 1, "10:30", "S2", 1),
					slot("S3", 1, "14:30", "S4", 1),
				},
			},
			cfg: tight,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			m, err := BuildModel(tc.in, tc.cfg)
			require.NoError(t, err)

			exact, err := m.solveExact(context.Background(), time.Time{})
			require.NoError(t, err)
			_, ok, err := m.findFeasible(context.Background(), time.Time{}, ComposeObjective(m, m.cfg.Weights, rand.New(rand.NewSource(1))))
			require.NoError(t, err)

			assert.Equal(t, tc.feasible, ok)
			if !tc.feasible {
				assert.Equal(t, exactInfeasible, exact.verdict)
				assert.Nil(t, exact.slotsOf)
				return
			}
			require.Equal(t, exactFeasible, exact.verdict)
			assert.NoError(t, checkIntegrity(m, exact.slotsOf))
		})
	}
}

func TestExactCheckKeepsGradeCountsEqual(t *testing.T) {
	cfg := testConfig()
	cfg.GradeQuotaMode = QuotaStrictEquality
	m, err := BuildModel(equalityInput(), cfg)
	require.NoError(t, err)

	exact, err := m.solveExact(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Equal(t, exactFeasible, exact.verdict)
	require.NoError(t, checkIntegrity(m, exact.slotsOf))

	first := exact.phaseOne(m)
	assert.True(t, first.exact)
	counts := make(map[string]int, len(m.grades))
	for g, name := range m.grades {
		counts[name] = first.gradeCounts[g]
	}
	assert.Equal(t, map[string]int{"MA": 2, "PR": 1}, counts)
}

func TestExactCheckRejectsOddSplitInEqualityMode(t *testing.T) {
	cfg := testConfig()
	cfg.GradeQuotaMode = QuotaStrictEquality
	m, err := BuildModel(Input{
		Teachers: []exam.Teacher{teacher("A1", "MA", 2), teacher("A2", "MA", 2)},
		Slots: []exam.Slot{
			slot("S1", 1, "08:30", "S1", 1),
			slot("S2", 1, "10:30", "S2", 1),
			slot("S3", 1, "14:30", "S4", 1),
		},
	}, cfg)
	require.NoError(t, err)

	exact, err := m.solveExact(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, exactInfeasible, exact.verdict)
}

func TestExactCheckStepsAsideAboveCellLimit(t *testing.T) {
	for _, limit := range []int{-1, 4} {
		cfg := testConfig()
		cfg.ExactCellLimit = limit
		m, err := BuildModel(threeDayInput(), cfg)
		require.NoError(t, err)

		exact, err := m.solveExact(context.Background(), time.Time{})
		require.NoError(t, err)
		assert.Equal(t, exactUnknown, exact.verdict, "limit %d", limit)
		assert.Equal(t, "unknown", exact.verdict.String())
	}
}

func TestExactCheckReturnsCancellation(t *testing.T) {
	m, err := BuildModel(threeDayInput(), testConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.solveExact(ctx, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolveWithoutExactCheckStillSolves(t *testing.T) {
	cfg := testConfig()
	cfg.ExactCellLimit = -1

	res, err := Solve(context.Background(), threeDayInput(), cfg, WithSeed(3))
	require.NoError(t, err)
	assertHardConstraints(t, threeDayInput(), cfg, res)
}

func TestFiniteDomainBooleansUseShiftedValues(t *testing.T) {
	m, err := BuildModel(Input{
		Teachers: []exam.Teacher{teacher("A", "MA", 0), teacher("B", "MA", 0)},
		Slots:    []exam.Slot{slot("S1", 1, "08:30", "S1", 1)},
	}, testConfig())
	require.NoError(t, err)

	c, ok, err := m.finiteDomain()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, c.cells, 2)

	solution := make([]int, 0, 8)
	for _, cell := range c.cells {
		for len(solution) <= cell.v.ID() {
			solution = append(solution, fdFalse)
		}
	}
	solution[c.cells[1].v.ID()] = fdTrue
	assert.Equal(t, [][]int{nil, {0}}, c.extract(solution))
}
