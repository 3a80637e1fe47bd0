package compliance

import (
	"time"

	"github.com/ninahq/nina/internal/domain/model"
)

// rule is the requirement policy of one interaction type. The set of
// implementations is closed: fixedMonths, segmentQuota and adHoc.
type rule interface {
	// required returns the number of occurrences owed within rng and whether
	// the type is schedule-driven at all.
	required(ind model.Individual, rng dayRange) (int, bool)
}

// fixedMonths requires one occurrence in each listed calendar month.
type fixedMonths struct {
	months [13]bool // indexed by time.Month, 1..12
}

func newFixedMonths(months []time.Month) fixedMonths {
	var f fixedMonths
	for _, m := range months {
		if m >= time.January && m <= time.December {
			f.months[m] = true
		}
	}
	return f
}

func (f fixedMonths) required(_ model.Individual, rng dayRange) (int, bool) {
	startY, startM := rng.start.Year(), rng.start.Month()
	endY, endM := rng.end.Year(), rng.end.Month()

	count := 0
	for y := startY; y <= endY; y++ {
		lo, hi := time.January, time.December
		if y == startY {
			lo = startM
		}
		if y == endY {
			hi = endM
		}
		for m := lo; m <= hi; m++ {
			if f.months[m] {
				count++
			}
		}
	}
	return count, true
}

// segmentQuota requires quota occurrences per calendar month spanned.
type segmentQuota struct {
	quotas map[string]int
}

func (s segmentQuota) required(ind model.Individual, rng dayRange) (int, bool) {
	quota := s.quotas[ind.Segment]
	if ind.Segment == "" || quota <= 0 {
		return 0, true
	}
	return quota * rng.monthSpan(), true
}

// adHoc has no schedule; one occurrence in range satisfies it.
type adHoc struct{}

func (adHoc) required(model.Individual, dayRange) (int, bool) { return 0, false }

// dayRange is a closed interval of calendar dates in the evaluator's zone:
// start is the first instant of the first day, end the last instant of the last day.
type dayRange struct {
	start time.Time
	end   time.Time
}

func (r dayRange) contains(t time.Time) bool {
	return !t.Before(r.start) && !t.After(r.end)
}

// monthSpan counts calendar months touched by the range, inclusive.
func (r dayRange) monthSpan() int {
	return (r.end.Year()-r.start.Year())*12 + int(r.end.Month()-r.start.Month()) + 1
}

// DefaultFixedMonths returns the built-in fixed-month schedules.
func DefaultFixedMonths() map[model.InteractionType][]time.Month {
	all := make([]time.Month, 0, 12)
	for m := time.January; m <= time.December; m++ {
		all = append(all, m)
	}
	return map[model.InteractionType][]time.Month{
		model.PeriodicOneOnOne: {time.March, time.June, time.September, time.December},
		model.DevelopmentPlan:  {time.June, time.December},
		model.RiskIndex:        all,
	}
}

// DefaultSegmentQuotas returns the built-in monthly segment-review quotas.
func DefaultSegmentQuotas() map[string]int {
	return map[string]int{"A": 4, "B": 2, "C": 1}
}
