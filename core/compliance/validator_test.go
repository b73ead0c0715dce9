package compliance

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrota/openrota/core/model"
)

// fixtureView is a minimal View backed by maps.
type fixtureView struct {
	people map[uuid.UUID]model.Person
	blocks map[uuid.UUID]model.Block
}

func newFixtureView() *fixtureView {
	return &fixtureView{
		people: make(map[uuid.UUID]model.Person),
		blocks: make(map[uuid.UUID]model.Block),
	}
}

func (f *fixtureView) Person(id uuid.UUID) (model.Person, bool) {
	p, ok := f.people[id]
	return p, ok
}

func (f *fixtureView) Block(id uuid.UUID) (model.Block, bool) {
	b, ok := f.blocks[id]
	return b, ok
}

func (f *fixtureView) addTrainee(name string, year int) model.Person {
	p := model.Person{ID: uuid.New(), Name: name, Role: model.RoleTrainee, TrainingYear: year}
	f.people[p.ID] = p
	return p
}

func (f *fixtureView) addSupervisor(name string) model.Person {
	p := model.Person{ID: uuid.New(), Name: name, Role: model.RoleSupervisor}
	f.people[p.ID] = p
	return p
}

func (f *fixtureView) addBlock(day time.Time, half model.DayHalf) model.Block {
	b := model.Block{ID: uuid.New(), Date: day, Half: half}
	f.blocks[b.ID] = b
	return b
}

func day(offset int) time.Time {
	base := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func assign(p model.Person, b model.Block, role model.AssignmentRole) model.Assignment {
	return model.Assignment{ID: uuid.New(), PersonID: p.ID, BlockID: b.ID, Role: role}
}

// spreadBlocks creates n blocks distributed evenly over days calendar
// days and assigns them all to p.
func spreadBlocks(f *fixtureView, p model.Person, n, days int) []model.Assignment {
	var out []model.Assignment
	for i := 0; i < n; i++ {
		d := day(i % days)
		half := model.DayHalf(i / days % 2)
		b := f.addBlock(d, half)
		out = append(out, assign(p, b, model.AssignClinical))
	}
	return out
}

func filterKind(violations []model.Violation, kind model.ViolationKind) []model.Violation {
	var out []model.Violation
	for _, v := range violations {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

func TestDutyHourRule(t *testing.T) {
	cases := []struct {
		name      string
		blocks    int
		wantViols bool
	}{
		{"40 blocks is 40h per week", 40, false},
		{"60 blocks is 60h per week", 60, false},
		{"90 blocks is 90h per week", 90, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixtureView()
			p := f.addTrainee("r1", 3)
			assignments := spreadBlocks(f, p, tc.blocks, 28)

			v := New(Config{})
			report := v.Validate(assignments, f)
			viols := filterKind(report.Violations, model.ViolationDutyHours)
			if tc.wantViols {
				assert.NotEmpty(t, viols)
				assert.False(t, report.Valid)
			} else {
				assert.Empty(t, viols)
			}
		})
	}
}

func TestRestPeriodRule(t *testing.T) {
	t.Run("eight fully assigned days violate", func(t *testing.T) {
		f := newFixtureView()
		p := f.addTrainee("r1", 3)
		var assignments []model.Assignment
		for d := 0; d < 8; d++ {
			for _, half := range []model.DayHalf{model.HalfAM, model.HalfPM} {
				b := f.addBlock(day(d), half)
				assignments = append(assignments, assign(p, b, model.AssignClinical))
			}
		}
		report := New(Config{}).Validate(assignments, f)
		assert.NotEmpty(t, filterKind(report.Violations, model.ViolationRestPeriod))
	})

	t.Run("one free calendar day satisfies the rule", func(t *testing.T) {
		f := newFixtureView()
		p := f.addTrainee("r1", 3)
		var assignments []model.Assignment
		for d := 0; d < 8; d++ {
			if d == 4 {
				continue
			}
			for _, half := range []model.DayHalf{model.HalfAM, model.HalfPM} {
				b := f.addBlock(day(d), half)
				assignments = append(assignments, assign(p, b, model.AssignClinical))
			}
		}
		report := New(Config{}).Validate(assignments, f)
		assert.Empty(t, filterKind(report.Violations, model.ViolationRestPeriod))
	})
}

func TestSupervisionRatioRule(t *testing.T) {
	t.Run("three juniors one supervisor violates", func(t *testing.T) {
		f := newFixtureView()
		b := f.addBlock(day(0), model.HalfAM)
		var assignments []model.Assignment
		for i := 0; i < 3; i++ {
			j := f.addTrainee("junior", 1)
			assignments = append(assignments, assign(j, b, model.AssignClinical))
		}
		s := f.addSupervisor("attending")
		assignments = append(assignments, assign(s, b, model.AssignSupervision))

		report := New(Config{}).Validate(assignments, f)
		assert.NotEmpty(t, filterKind(report.Violations, model.ViolationSupervision))
	})

	t.Run("three juniors two supervisors is fine", func(t *testing.T) {
		f := newFixtureView()
		b := f.addBlock(day(0), model.HalfAM)
		var assignments []model.Assignment
		for i := 0; i < 3; i++ {
			j := f.addTrainee("junior", 1)
			assignments = append(assignments, assign(j, b, model.AssignClinical))
		}
		for i := 0; i < 2; i++ {
			s := f.addSupervisor("attending")
			assignments = append(assignments, assign(s, b, model.AssignSupervision))
		}
		report := New(Config{}).Validate(assignments, f)
		assert.Empty(t, filterKind(report.Violations, model.ViolationSupervision))
	})

	t.Run("junior without any supervisor always violates", func(t *testing.T) {
		f := newFixtureView()
		b := f.addBlock(day(0), model.HalfAM)
		j := f.addTrainee("junior", 1)
		report := New(Config{SupervisionRatio: 100}).Validate([]model.Assignment{assign(j, b, model.AssignClinical)}, f)
		assert.NotEmpty(t, filterKind(report.Violations, model.ViolationSupervision))
	})
}

func TestCallEquityIsSoft(t *testing.T) {
	f := newFixtureView()
	heavy := f.addTrainee("heavy", 3)
	light := f.addTrainee("light", 3)
	var assignments []model.Assignment
	for d := 0; d < 6; d++ {
		b := f.addBlock(day(d*3), model.HalfPM)
		assignments = append(assignments, assign(heavy, b, model.AssignCall))
	}
	b := f.addBlock(day(20), model.HalfAM)
	assignments = append(assignments, assign(light, b, model.AssignClinical))

	report := New(Config{}).Validate(assignments, f)
	viols := filterKind(report.Violations, model.ViolationCallEquity)
	require.NotEmpty(t, viols)
	for _, v := range viols {
		assert.Equal(t, model.SeverityWarning, v.Severity)
	}
	// Soft violations alone never invalidate the schedule.
	rest := filterKind(report.Violations, model.ViolationRestPeriod)
	duty := filterKind(report.Violations, model.ViolationDutyHours)
	if len(rest) == 0 && len(duty) == 0 {
		assert.True(t, report.Valid)
	}
}

func TestValidateIdempotence(t *testing.T) {
	f := newFixtureView()
	p := f.addTrainee("r1", 3)
	assignments := spreadBlocks(f, p, 90, 28)

	v := New(Config{})
	first := v.Validate(assignments, f)
	second := v.Validate(assignments, f)
	assert.Equal(t, first, second)
}

func TestVoidedAssignmentsIgnored(t *testing.T) {
	f := newFixtureView()
	b := f.addBlock(day(0), model.HalfAM)
	j := f.addTrainee("junior", 1)
	a := assign(j, b, model.AssignClinical)
	a.Void("superseded", time.Now())

	report := New(Config{}).Validate([]model.Assignment{a}, f)
	assert.Empty(t, report.Violations)
}

func TestAckRegistry(t *testing.T) {
	f := newFixtureView()
	b := f.addBlock(day(0), model.HalfAM)
	j := f.addTrainee("junior", 1)
	v := New(Config{})
	report := v.Validate([]model.Assignment{assign(j, b, model.AssignClinical)}, f)
	require.False(t, report.Valid)

	reg := NewAckRegistry()
	reg.Acknowledge(report.Violations[0], "chief", "approved exception", time.Now())
	remaining := reg.Apply(&report)

	assert.Zero(t, remaining)
	assert.True(t, report.Valid)
	assert.True(t, report.Violations[0].Acknowledged)
	assert.Equal(t, 1, reg.Count())
	// Still visible in the report.
	assert.Equal(t, 1, report.TotalViolations)
}
