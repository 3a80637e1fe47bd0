// Package compliance decides whether tracked individuals received the
// interactions their schedule requires within a date range.
//
// Months are 1-indexed (time.January == 1). Dates are compared as calendar
// dates in the evaluator's location, both range endpoints inclusive.
package compliance

import (
	"fmt"
	"sort"
	"time"

	"github.com/jinzhu/now"

	"github.com/ninahq/nina/internal/domain/model"
)

// Status is the compliance classification of one individual.
type Status string

// Statuses.
const (
	Satisfied     Status = "satisfied"
	Partial       Status = "partial"
	Pending       Status = "pending"
	NotApplicable Status = "not-applicable"
)

// DateRange is a closed calendar-date interval.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Request selects what to evaluate.
type Request struct {
	Type  model.InteractionType
	Range DateRange
}

// Result is the outcome for one individual.
type Result struct {
	IndividualID   string     `json:"individual_id"`
	Name           string     `json:"name"`
	Status         Status     `json:"status"`
	Executed       int        `json:"executed"`
	Required       int        `json:"required"`
	LastOccurrence *time.Time `json:"last_occurrence,omitempty"`
	NextScheduled  *time.Time `json:"next_scheduled,omitempty"`
}

// Label renders the status for display, e.g. "partial (3/4)".
func (r Result) Label() string {
	if r.Status == Partial {
		return fmt.Sprintf("partial (%d/%d)", r.Executed, r.Required)
	}
	return string(r.Status)
}

// Summary counts results per status.
type Summary struct {
	Total         int `json:"total"`
	Satisfied     int `json:"satisfied"`
	Partial       int `json:"partial"`
	Pending       int `json:"pending"`
	NotApplicable int `json:"not_applicable"`
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case Satisfied:
			s.Satisfied++
		case Partial:
			s.Partial++
		case Pending:
			s.Pending++
		case NotApplicable:
			s.NotApplicable++
		}
	}
	return s
}

// Option applies a configuration option to the Evaluator.
type Option func(*Evaluator)

// WithFixedMonths replaces the month schedule of an interaction type.
// An empty month list removes the schedule, making the type ad hoc.
func WithFixedMonths(t model.InteractionType, months ...time.Month) Option {
	return func(e *Evaluator) {
		if len(months) == 0 {
			delete(e.fixed, t)
			return
		}
		e.fixed[t] = append([]time.Month(nil), months...)
	}
}

// WithSegmentQuotas replaces the per-segment monthly quotas.
func WithSegmentQuotas(quotas map[string]int) Option {
	return func(e *Evaluator) {
		e.quotas = make(map[string]int, len(quotas))
		for k, v := range quotas {
			e.quotas[k] = v
		}
	}
}

// WithLocation sets the zone in which calendar dates are read.
func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// Evaluator computes compliance. It holds only configuration and is safe
// for concurrent use.
type Evaluator struct {
	fixed  map[model.InteractionType][]time.Month
	quotas map[string]int
	loc    *time.Location
}

// NewEvaluator creates an evaluator with the default schedules.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		fixed:  DefaultFixedMonths(),
		quotas: DefaultSegmentQuotas(),
		loc:    time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the zone used for calendar dates.
func (e *Evaluator) Location() *time.Location { return e.loc }

// ruleFor dispatches an interaction type to its requirement policy.
func (e *Evaluator) ruleFor(t model.InteractionType) rule {
	if t == model.SegmentReview {
		return segmentQuota{quotas: e.quotas}
	}
	if months, ok := e.fixed[t]; ok {
		return newFixedMonths(months)
	}
	return adHoc{}
}

// normalize converts a DateRange into the evaluator's calendar-day bounds.
func (e *Evaluator) normalize(r DateRange) (dayRange, error) {
	if !model.ValidDate(r.Start) || !model.ValidDate(r.End) {
		return dayRange{}, fmt.Errorf("%w: range dates are required", ErrValidation)
	}
	start := now.With(r.Start.In(e.loc)).BeginningOfDay()
	end := now.With(r.End.In(e.loc)).EndOfDay()
	if start.After(end) {
		return dayRange{}, ErrInvalidRange
	}
	return dayRange{start: start, end: end}, nil
}

// Evaluate computes one Result per tracked individual in roster order.
// Untracked individuals are omitted. The call is pure: identical inputs
// always produce identical output.
func (e *Evaluator) Evaluate(roster []model.Individual, history map[string]model.History, req Request) ([]Result, error) {
	if req.Type != model.DevelopmentPlan {
		if _, err := model.ParseInteractionType(string(req.Type)); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
		}
	}
	rng, err := e.normalize(req.Range)
	if err != nil {
		return nil, err
	}

	policy := e.ruleFor(req.Type)
	results := make([]Result, 0, len(roster))
	for _, ind := range roster {
		if !ind.Tracked {
			continue
		}
		occ := occurrences(req.Type, history[ind.ID])
		res := Result{IndividualID: ind.ID, Name: ind.Name}
		for _, o := range occ {
			if rng.contains(o.date.In(e.loc)) {
				res.Executed++
			}
		}
		res.Status, res.Required = resolve(policy, ind, rng, res.Executed)
		if len(occ) > 0 {
			latest := latestOccurrence(occ)
			res.LastOccurrence = &latest.date
			res.NextScheduled = latest.next
		}
		results = append(results, res)
	}
	return results, nil
}

// resolve maps required/executed counts to a status.
func resolve(policy rule, ind model.Individual, rng dayRange, executed int) (Status, int) {
	required, scheduled := policy.required(ind, rng)
	switch {
	case !scheduled && executed > 0:
		return Satisfied, 0
	case !scheduled:
		return Pending, 0
	case required == 0:
		return NotApplicable, 0
	case executed >= required:
		return Satisfied, required
	case executed > 0:
		return Partial, required
	default:
		return Pending, required
	}
}

type occurrence struct {
	date time.Time
	next *time.Time
}

// occurrences returns the valid-dated records matching t, in stored order.
func occurrences(t model.InteractionType, h model.History) []occurrence {
	var out []occurrence
	if t == model.DevelopmentPlan {
		for _, a := range h.Actions {
			if !model.ValidDate(a.StartDate) {
				continue
			}
			o := occurrence{date: a.StartDate}
			if model.ValidDate(a.EndDate) {
				end := a.EndDate
				o.next = &end
			}
			out = append(out, o)
		}
		return out
	}
	for _, it := range h.Interactions {
		if it.Type != t || !model.ValidDate(it.Date) {
			continue
		}
		o := occurrence{date: it.Date}
		if it.NextDate != nil && model.ValidDate(*it.NextDate) {
			next := *it.NextDate
			o.next = &next
		}
		out = append(out, o)
	}
	return out
}

// latestOccurrence sorts a copy by date descending, keeping insertion order
// among equal dates, and returns the first.
func latestOccurrence(occ []occurrence) occurrence {
	sorted := make([]occurrence, len(occ))
	copy(sorted, occ)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].date.After(sorted[j].date)
	})
	return sorted[0]
}
