package scheduler

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
)

// Status is the outcome class of a solve.
type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusTimeout    Status = "timeout"
)

// Result is the outcome of Solve. Assignment is set only for optimal and feasible results.
type Result struct {
	Status            Status              `json:"status"`
	Assignment        exam.Assignment     `json:"assignment,omitempty"`
	Objective         int64               `json:"objective"`
	LowerBound        *int64              `json:"lowerBound,omitempty"`
	Breakdown         Breakdown           `json:"breakdown"`
	Elapsed           time.Duration       `json:"elapsed"`
	Nodes             int64               `json:"nodes"`
	Seed              int64               `json:"seed"`
	Relaxations       []RelaxationStep    `json:"relaxations,omitempty"`
	Attempted         []RelaxationStep    `json:"attempted,omitempty"`
	SuspectedFamilies []ConstraintFamily  `json:"suspectedFamilies,omitempty"`
	GradeCounts       map[string]int      `json:"gradeCounts,omitempty"`
	Responsible       map[string][]string `json:"responsible,omitempty"`
	Message           string              `json:"message,omitempty"`
	Budget            time.Duration       `json:"budget"`
}

// Feasible reports whether the result carries an assignment.
func (r *Result) Feasible() bool {
	return r.Status == StatusOptimal || r.Status == StatusFeasible
}

// Err converts an unsuccessful result into an error value; feasible results return nil.
func (r *Result) Err() error {
	switch r.Status {
	case StatusInfeasible:
		return &InfeasibleModelError{Suspected: r.SuspectedFamilies, Attempted: r.Attempted, Message: r.Message}
	case StatusTimeout:
		return &SolveTimeoutError{Budget: r.Budget, Elapsed: r.Elapsed}
	}
	return nil
}

// InfeasibleModelError describes a model without any assignment satisfying the hard constraints.
type InfeasibleModelError struct {
	Suspected []ConstraintFamily
	Attempted []RelaxationStep
	Message   string
}

func (e *InfeasibleModelError) Error() string {
	if len(e.Suspected) == 0 {
		return e.Message
	}
	names := make([]string, len(e.Suspected))
	for i, f := range e.Suspected {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s (suspected: %s)", e.Message, strings.Join(names, ", "))
}

// SolveTimeoutError reports a time budget exhausted before a feasible assignment was found.
type SolveTimeoutError struct {
	Budget  time.Duration
	Elapsed time.Duration
}

func (e *SolveTimeoutError) Error() string {
	return fmt.Sprintf("no feasible assignment within %s (elapsed %s)", e.Budget, e.Elapsed.Round(time.Millisecond))
}

// AssignmentIntegrityError means an extracted assignment broke a hard constraint. It is a
// programming error, never an expected outcome.
type AssignmentIntegrityError struct {
	Violations []string
}

func (e *AssignmentIntegrityError) Error() string {
	return "assignment integrity check failed: " + strings.Join(e.Violations, "; ")
}

// Option customises a single Solve call.
type Option func(*options)

type options struct {
	seed    int64
	seeded  bool
	logger  *zap.Logger
	onPhase func(string)
}

// WithSeed fixes the random seed so a run can be reproduced.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithLogger sets the logger used for progress messages.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPhaseHook registers a callback invoked when the driver enters a phase.
func WithPhaseHook(fn func(phase string)) Option {
	return func(o *options) { o.onPhase = fn }
}

func freshSeed() int64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}

type driver struct {
	ctx      context.Context
	deadline time.Time
	seed     int64
	logger   *zap.Logger
	phase    func(string)
	nodes    int64
}

type attempt struct {
	model *Model
	obj   *Objective
	first *phaseOne
}

// Solve builds the model, finds a feasible assignment (relaxing the model when allowed) and
// improves it. Infeasible and timed-out runs are reported through Result.Status; the error
// return is reserved for invalid input, cancellation and integrity failures.
func Solve(ctx context.Context, in Input, cfg Config, opts ...Option) (*Result, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.seeded {
		o.seed = freshSeed()
	}
	started := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := BuildModel(in, cfg)
	if err != nil {
		return nil, err
	}
	d := &driver{ctx: ctx, seed: o.seed, logger: o.logger, phase: o.onPhase}
	if base.cfg.MaxSolveTime > 0 {
		d.deadline = started.Add(base.cfg.MaxSolveTime)
	}

	res := &Result{
		Seed:        o.seed,
		Budget:      base.cfg.MaxSolveTime,
		Responsible: exam.ResponsibleBySlot(base.slots),
	}
	finish := func() (*Result, error) {
		res.Elapsed = time.Since(started)
		res.Nodes = d.nodes
		d.logger.Info("solve finished",
			zap.String("status", string(res.Status)),
			zap.Int64("objective", res.Objective),
			zap.Int64("seed", res.Seed),
			zap.Int("relaxations", len(res.Relaxations)),
			zap.Duration("elapsed", res.Elapsed),
		)
		return res, nil
	}

	d.enter("feasibility")
	found, err := d.try(base)
	if err != nil {
		return d.interrupted(res, err, finish)
	}

	if found == nil {
		if !base.cfg.AutoRelaxIfInfeasible {
			d.enter("diagnosis")
			suspected, err := d.diagnose(base)
			if err != nil {
				return d.interrupted(res, err, finish)
			}
			res.Status = StatusInfeasible
			res.SuspectedFamilies = suspected
			res.Message = "infeasible"
			return finish()
		}

		d.enter("relaxation")
		var path []RelaxationStep
		m := base
		for found == nil {
			step, more := m.nextRelaxation()
			if !more {
				break
			}
			path = append(path, step)
			m = m.Relax(step)
			d.logger.Info("relaxing model", zap.String("kind", string(step.Kind)), zap.String("detail", step.Detail))
			if found, err = d.try(m); err != nil {
				res.Attempted = path
				return d.interrupted(res, err, finish)
			}
		}
		res.Attempted = path
		if found == nil {
			res.Status = StatusInfeasible
			res.Message = "infeasible even after relaxation"
			res.SuspectedFamilies = familiesOf(path)
			return finish()
		}
		kept, pruned, err := d.prune(base, path, found)
		if err != nil {
			return d.interrupted(res, err, finish)
		}
		res.Relaxations = kept
		res.Message = "solved after relaxation: " + kindsOf(kept)
		found = pruned
	}

	d.enter("improvement")
	m := found.model
	best := found.first.slotsOf
	settled := m.forced() || m.demand == 0
	if !settled {
		out, err := improve(ctx, d.deadline, found.obj, best, d.seed)
		if err != nil {
			return nil, err
		}
		d.nodes += out.iterations
		best = out.slotsOf
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkIntegrity(m, best); err != nil {
		return nil, err
	}

	res.Assignment = m.assignment(best)
	res.Breakdown = found.obj.Evaluate(best)
	res.Objective = res.Breakdown.Total
	res.Status = StatusFeasible
	if bound, ok := lowerBound(found); ok {
		res.LowerBound = &bound
		settled = settled || res.Objective <= bound
	}
	if settled {
		res.Status = StatusOptimal
	}
	if found.first.gradeCounts != nil {
		res.GradeCounts = make(map[string]int, len(m.grades))
		for g, name := range m.grades {
			res.GradeCounts[name] = found.first.gradeCounts[g]
		}
	}
	return finish()
}

func (d *driver) enter(phase string) {
	if d.phase != nil {
		d.phase(phase)
	}
}

// interrupted turns a budget or context error into the matching return value.
func (d *driver) interrupted(res *Result, err error, finish func() (*Result, error)) (*Result, error) {
	if errors.Is(err, errDeadline) {
		res.Status = StatusTimeout
		res.Message = "time budget exhausted before a feasible assignment was found"
		return finish()
	}
	return nil, err
}

// try runs phase one on m; nil means infeasible. The finite-domain check settles
// infeasibility when it reaches a verdict. The flow then supplies the cheapest start, and
// the finite-domain assignment stands in when the flow finds none in time or misses one
// outside the grade candidates it enumerates.
func (d *driver) try(m *Model) (*attempt, error) {
	if err := checkBudget(d.ctx, d.deadline); err != nil {
		return nil, err
	}
	obj := ComposeObjective(m, m.cfg.Weights, rand.New(rand.NewSource(d.seed)))
	exact, err := m.solveExact(d.ctx, d.deadline)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("exact feasibility check", zap.Stringer("verdict", exact.verdict), zap.Int("cells", exact.cells))
	if exact.verdict == exactInfeasible {
		return nil, nil
	}

	first, ok, err := m.findFeasible(d.ctx, d.deadline, obj)
	if first != nil {
		d.nodes += first.stats.augmentations
	}
	if exact.verdict == exactFeasible && (errors.Is(err, errDeadline) || (err == nil && !ok)) {
		return &attempt{model: m, obj: obj, first: exact.phaseOne(m)}, nil
	}
	if err != nil || !ok {
		return nil, err
	}
	return &attempt{model: m, obj: obj, first: first}, nil
}

// prune drops rungs that turn out unnecessary once later rungs are applied, earliest first.
// Running out of time keeps whatever has been pruned so far.
func (d *driver) prune(base *Model, path []RelaxationStep, found *attempt) ([]RelaxationStep, *attempt, error) {
	kept := append([]RelaxationStep(nil), path...)
	for i := 0; i < len(kept); {
		candidate := append(append([]RelaxationStep(nil), kept[:i]...), kept[i+1:]...)
		m := base
		for _, step := range candidate {
			m = m.Relax(step)
		}
		alt, err := d.try(m)
		if errors.Is(err, errDeadline) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if alt != nil {
			kept, found = candidate, alt
			continue
		}
		i++
	}
	return kept, found, nil
}

// diagnose tests each applicable family on its own; when none suffices alone, the families
// are tested together and, failing that, coverage itself is reported.
func (d *driver) diagnose(base *Model) ([]ConstraintFamily, error) {
	families := base.applicableFamilies()
	var suspected []ConstraintFamily
	for _, f := range families {
		found, err := d.try(base.withoutFamily(f))
		if err != nil {
			return nil, err
		}
		if found != nil {
			suspected = append(suspected, f)
		}
	}
	if len(suspected) > 0 {
		return suspected, nil
	}
	if len(families) > 1 {
		m := base
		for _, f := range families {
			m = m.withoutFamily(f)
		}
		found, err := d.try(m)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return families, nil
		}
	}
	return []ConstraintFamily{FamilyCoverage}, nil
}

func familiesOf(path []RelaxationStep) []ConstraintFamily {
	seen := make(map[ConstraintFamily]bool)
	var out []ConstraintFamily
	for _, step := range path {
		if !seen[step.Family] {
			seen[step.Family] = true
			out = append(out, step.Family)
		}
	}
	return append(out, FamilyCoverage)
}

func kindsOf(steps []RelaxationStep) string {
	kinds := make([]string, len(steps))
	for i, step := range steps {
		kinds[i] = string(step.Kind)
	}
	return strings.Join(kinds, ", ")
}

func (m *Model) assignment(slotsOf [][]int) exam.Assignment {
	a := make(exam.Assignment, len(m.teachers))
	for t, list := range slotsOf {
		for _, s := range list {
			a.Add(m.teachers[t].ID, m.slots[s].ID)
		}
	}
	return a
}

// checkIntegrity verifies every hard constraint of m on the extracted assignment.
func checkIntegrity(m *Model, slotsOf [][]int) error {
	var violations []string
	covered := make([]int, len(m.slots))
	for t, list := range slotsOf {
		id := m.teachers[t].ID
		perDay := make([]int, len(m.days))
		for i, s := range list {
			if i > 0 && list[i-1] >= s {
				violations = append(violations, fmt.Sprintf("teacher %s has unsorted or repeated slots", id))
			}
			covered[s]++
			perDay[m.slotDay[s]]++
			if !m.allowed[t][s] {
				violations = append(violations, fmt.Sprintf("teacher %s assigned to excluded slot %s", id, m.slots[s].ID))
			}
		}
		for day, n := range perDay {
			if n > m.cfg.MaxSessionsPerDay {
				violations = append(violations, fmt.Sprintf("teacher %s has %d sessions on day %d", id, n, m.days[day]))
			}
		}
		if m.quotaMode() != QuotaStrictEquality && len(list) < m.floors[t] {
			violations = append(violations, fmt.Sprintf("teacher %s below quota floor %d", id, m.floors[t]))
		}
	}
	for s, slot := range m.slots {
		if covered[s] != slot.Required {
			violations = append(violations, fmt.Sprintf("slot %s covered by %d of %d", slot.ID, covered[s], slot.Required))
		}
	}
	if m.quotaMode() == QuotaStrictEquality {
		for g, members := range m.gradeMembers {
			for _, t := range members[1:] {
				if len(slotsOf[t]) != len(slotsOf[members[0]]) {
					violations = append(violations, fmt.Sprintf("grade %s counts differ", m.grades[g]))
					break
				}
			}
		}
	}
	if len(violations) == 0 {
		return nil
	}
	sort.Strings(violations)
	return &AssignmentIntegrityError{Violations: violations}
}
