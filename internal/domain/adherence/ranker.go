// Package adherence ranks leaders by how many of their direct reports had a
// periodic one-on-one this calendar month.
//
// The member policy is deliberately simpler than the compliance evaluator and
// does not share code with it.
package adherence

import (
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/ninahq/nina/internal/domain/model"
)

// DefaultCutoffDay is the last day of the month on which a member with a
// previous-month record is still pending rather than overdue.
const DefaultCutoffDay = 10

// MemberState is a member's monthly one-on-one state.
type MemberState string

// Member states.
const (
	Done    MemberState = "done"
	Pending MemberState = "pending"
	Overdue MemberState = "overdue"
)

// MemberStatus is one direct report's state.
type MemberStatus struct {
	IndividualID string      `json:"individual_id"`
	Name         string      `json:"name"`
	State        MemberState `json:"state"`
	LastOneOnOne *time.Time  `json:"last_one_on_one,omitempty"`
}

// LeaderAdherence is one ranked leader.
type LeaderAdherence struct {
	LeaderID  string         `json:"leader_id"`
	Name      string         `json:"name"`
	Axis      string         `json:"axis,omitempty"`
	Members   int            `json:"members"`
	Done      int            `json:"done"`
	Pending   int            `json:"pending"`
	Overdue   int            `json:"overdue"`
	Adherence float64        `json:"adherence"`
	Statuses  []MemberStatus `json:"statuses"`
}

// Query parameterises a ranking.
type Query struct {
	Now  time.Time
	Axis string
}

// Option applies a configuration option to the Ranker.
type Option func(*Ranker)

// WithCutoffDay sets the pending/overdue cutoff day of month.
func WithCutoffDay(day int) Option {
	return func(r *Ranker) {
		if day >= 1 && day <= 31 {
			r.cutoffDay = day
		}
	}
}

// WithLocation sets the zone in which "this month" is read.
func WithLocation(loc *time.Location) Option {
	return func(r *Ranker) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// Ranker computes adherence rankings. It is safe for concurrent use.
type Ranker struct {
	cutoffDay int
	loc       *time.Location
}

// NewRanker creates a ranker.
func NewRanker(opts ...Option) *Ranker {
	r := &Ranker{cutoffDay: DefaultCutoffDay, loc: time.UTC}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CutoffDay returns the configured cutoff day.
func (r *Ranker) CutoffDay() int { return r.cutoffDay }

// Rank returns leaders sorted by adherence descending, ties in roster order.
func (r *Ranker) Rank(roster []model.Individual, history map[string]model.History, q Query) []LeaderAdherence {
	at := q.Now
	if at.IsZero() {
		at = time.Now()
	}
	w := newWindow(at.In(r.loc), r.cutoffDay)

	members := make(map[string][]model.Individual)
	for _, ind := range roster {
		if ind.Tracked && ind.LeaderID != "" {
			members[ind.LeaderID] = append(members[ind.LeaderID], ind)
		}
	}

	axis := strings.TrimSpace(q.Axis)
	out := make([]LeaderAdherence, 0)
	for _, leader := range roster {
		if !leader.ManagesRoster() && len(members[leader.ID]) == 0 {
			continue
		}
		if axis != "" && !strings.EqualFold(leader.Axis, axis) {
			continue
		}
		la := LeaderAdherence{
			LeaderID: leader.ID,
			Name:     leader.Name,
			Axis:     leader.Axis,
			Statuses: make([]MemberStatus, 0, len(members[leader.ID])),
		}
		for _, m := range members[leader.ID] {
			st := w.status(m, history[m.ID].Interactions)
			switch st.State {
			case Done:
				la.Done++
			case Pending:
				la.Pending++
			case Overdue:
				la.Overdue++
			}
			la.Statuses = append(la.Statuses, st)
		}
		la.Members = len(la.Statuses)
		if la.Members > 0 {
			la.Adherence = float64(la.Done) / float64(la.Members) * 100
		}
		out = append(out, la)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Adherence > out[j].Adherence
	})
	return out
}

// window holds the month boundaries for one ranking.
type window struct {
	monthStart time.Time
	monthEnd   time.Time
	prevStart  time.Time
	day        int
	cutoff     int
}

func newWindow(at time.Time, cutoff int) window {
	n := now.With(at)
	start := n.BeginningOfMonth()
	return window{
		monthStart: start,
		monthEnd:   n.EndOfMonth(),
		prevStart:  start.AddDate(0, -1, 0),
		day:        at.Day(),
		cutoff:     cutoff,
	}
}

func (w window) status(m model.Individual, interactions []model.Interaction) MemberStatus {
	st := MemberStatus{IndividualID: m.ID, Name: m.Name}

	var latest *time.Time
	inPrev := false
	for i := range interactions {
		it := interactions[i]
		if it.Type != model.PeriodicOneOnOne || !model.ValidDate(it.Date) || it.Date.After(w.monthEnd) {
			continue
		}
		if latest == nil || it.Date.After(*latest) {
			d := it.Date
			latest = &d
		}
		if !it.Date.Before(w.prevStart) && it.Date.Before(w.monthStart) {
			inPrev = true
		}
	}
	st.LastOneOnOne = latest

	switch {
	case latest != nil && !latest.Before(w.monthStart):
		st.State = Done
	case !inPrev:
		st.State = Pending
	case w.day <= w.cutoff:
		st.State = Pending
	default:
		st.State = Overdue
	}
	return st
}
