package compliance_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ninahq/nina/internal/domain/compliance"
	"github.com/ninahq/nina/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func interactions(id string, t model.InteractionType, dates ...time.Time) []model.Interaction {
	out := make([]model.Interaction, 0, len(dates))
	for i, d := range dates {
		out = append(out, model.Interaction{
			ID:           id + "-" + string(t) + "-" + string(rune('a'+i)),
			IndividualID: id,
			Type:         t,
			Date:         d,
		})
	}
	return out
}

func tracked(id, segment string) model.Individual {
	return model.Individual{ID: id, Name: "Person " + id, Role: model.RoleContributor, Segment: segment, Tracked: true}
}

func evaluateOne(e *compliance.Evaluator, ind model.Individual, h model.History, req compliance.Request) compliance.Result {
	results, err := e.Evaluate([]model.Individual{ind}, map[string]model.History{ind.ID: h}, req)
	So(err, ShouldBeNil)
	So(results, ShouldHaveLength, 1)
	return results[0]
}

func TestEvaluatorScenarios(t *testing.T) {
	Convey("Given the default evaluator", t, func() {
		e := compliance.NewEvaluator()
		ind := tracked("e1", "B")

		Convey("Scenario A: quarterly schedule over a full year with 3 executed", func() {
			h := model.History{Interactions: interactions("e1", model.PeriodicOneOnOne,
				day(2024, 3, 10), day(2024, 6, 12), day(2024, 9, 30))}
			res := evaluateOne(e, ind, h, compliance.Request{
				Type:  model.PeriodicOneOnOne,
				Range: compliance.DateRange{Start: day(2024, 1, 1), End: day(2024, 12, 31)},
			})
			So(res.Required, ShouldEqual, 4)
			So(res.Executed, ShouldEqual, 3)
			So(res.Status, ShouldEqual, compliance.Partial)
			So(res.Label(), ShouldEqual, "partial (3/4)")
		})

		Convey("Scenario B: quarterly schedule over January only", func() {
			h := model.History{Interactions: interactions("e1", model.PeriodicOneOnOne, day(2024, 1, 15))}
			res := evaluateOne(e, ind, h, compliance.Request{
				Type:  model.PeriodicOneOnOne,
				Range: compliance.DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
			})
			So(res.Required, ShouldEqual, 0)
			So(res.Status, ShouldEqual, compliance.NotApplicable)
			So(res.Label(), ShouldEqual, "not-applicable")
		})

		Convey("Scenario C: segment quota 2/month over 3 months with 6 executed", func() {
			h := model.History{Interactions: interactions("e1", model.SegmentReview,
				day(2024, 4, 2), day(2024, 4, 20), day(2024, 5, 3), day(2024, 5, 21), day(2024, 6, 1), day(2024, 6, 30))}
			res := evaluateOne(e, ind, h, compliance.Request{
				Type:  model.SegmentReview,
				Range: compliance.DateRange{Start: day(2024, 4, 1), End: day(2024, 6, 30)},
			})
			So(res.Required, ShouldEqual, 6)
			So(res.Executed, ShouldEqual, 6)
			So(res.Status, ShouldEqual, compliance.Satisfied)
		})

		Convey("Scenario D: ad-hoc feedback", func() {
			req := compliance.Request{
				Type:  model.AdHocFeedback,
				Range: compliance.DateRange{Start: day(2024, 2, 1), End: day(2024, 2, 29)},
			}

			Convey("With zero records in range it is pending", func() {
				h := model.History{Interactions: interactions("e1", model.AdHocFeedback, day(2024, 3, 1))}
				res := evaluateOne(e, ind, h, req)
				So(res.Status, ShouldEqual, compliance.Pending)
				So(res.Required, ShouldEqual, 0)
			})

			Convey("With one record in range it is satisfied", func() {
				h := model.History{Interactions: interactions("e1", model.AdHocFeedback, day(2024, 2, 29))}
				res := evaluateOne(e, ind, h, req)
				So(res.Status, ShouldEqual, compliance.Satisfied)
				So(res.Executed, ShouldEqual, 1)
			})
		})

		Convey("Scenario E: start after end fails without results", func() {
			results, err := e.Evaluate([]model.Individual{ind}, nil, compliance.Request{
				Type:  model.RiskIndex,
				Range: compliance.DateRange{Start: day(2024, 5, 2), End: day(2024, 5, 1)},
			})
			So(results, ShouldBeNil)
			So(errors.Is(err, compliance.ErrInvalidRange), ShouldBeTrue)
			So(errors.Is(err, compliance.ErrValidation), ShouldBeTrue)
		})
	})
}

func TestEvaluatorRequiredCounts(t *testing.T) {
	Convey("Given the default evaluator and an individual without history", t, func() {
		e := compliance.NewEvaluator()
		ind := tracked("e1", "A")
		required := func(typ model.InteractionType, start, end time.Time) int {
			return evaluateOne(e, ind, model.History{}, compliance.Request{
				Type: typ, Range: compliance.DateRange{Start: start, End: end},
			}).Required
		}

		Convey("Ranges inside one month require 1 iff the month is scheduled", func() {
			for m := time.January; m <= time.December; m++ {
				want := 0
				if m%3 == 0 {
					want = 1
				}
				So(required(model.PeriodicOneOnOne, day(2023, m, 5), day(2023, m, 20)), ShouldEqual, want)
			}
		})

		Convey("Twelve consecutive months of a monthly schedule require 12 regardless of start", func() {
			for m := time.January; m <= time.December; m++ {
				start := day(2023, m, 1)
				end := start.AddDate(1, 0, -1)
				So(required(model.RiskIndex, start, end), ShouldEqual, 12)
			}
		})

		Convey("A December to January range counts each boundary month once", func() {
			So(required(model.RiskIndex, day(2023, 12, 15), day(2024, 1, 15)), ShouldEqual, 2)
			So(required(model.PeriodicOneOnOne, day(2023, 12, 1), day(2024, 1, 31)), ShouldEqual, 1)
			So(required(model.DevelopmentPlan, day(2023, 6, 1), day(2025, 6, 30)), ShouldEqual, 5)
		})

		Convey("Segment quota multiplies by months spanned across a year boundary", func() {
			So(required(model.SegmentReview, day(2023, 11, 20), day(2024, 2, 3)), ShouldEqual, 4*4)
		})

		Convey("A single-day range is still a one-month range", func() {
			So(required(model.RiskIndex, day(2024, 7, 9), day(2024, 7, 9)), ShouldEqual, 1)
		})
	})
}

func TestEvaluatorStatusRules(t *testing.T) {
	Convey("Given a risk-index evaluation over Q1", t, func() {
		e := compliance.NewEvaluator()
		req := compliance.Request{
			Type:  model.RiskIndex,
			Range: compliance.DateRange{Start: day(2024, 1, 1), End: day(2024, 3, 31)},
		}

		Convey("Endpoints are inclusive and out-of-range records ignored", func() {
			ind := tracked("e1", "")
			h := model.History{Interactions: interactions("e1", model.RiskIndex,
				day(2023, 12, 31), day(2024, 1, 1), time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC), day(2024, 4, 1))}
			res := evaluateOne(e, ind, h, req)
			So(res.Executed, ShouldEqual, 2)
			So(res.Status, ShouldEqual, compliance.Partial)
		})

		Convey("No records at all is pending", func() {
			res := evaluateOne(e, tracked("e1", ""), model.History{}, req)
			So(res.Status, ShouldEqual, compliance.Pending)
			So(res.Required, ShouldEqual, 3)
			So(res.LastOccurrence, ShouldBeNil)
		})

		Convey("Over-delivery is satisfied", func() {
			h := model.History{Interactions: interactions("e1", model.RiskIndex,
				day(2024, 1, 3), day(2024, 1, 9), day(2024, 2, 3), day(2024, 3, 3))}
			res := evaluateOne(e, tracked("e1", ""), h, req)
			So(res.Status, ShouldEqual, compliance.Satisfied)
			So(res.Executed, ShouldEqual, 4)
		})

		Convey("Records with missing dates are excluded, not fatal", func() {
			h := model.History{Interactions: []model.Interaction{
				{ID: "x", IndividualID: "e1", Type: model.RiskIndex},
				{ID: "y", IndividualID: "e1", Type: model.RiskIndex, Date: day(2024, 2, 2)},
			}}
			res := evaluateOne(e, tracked("e1", ""), h, req)
			So(res.Executed, ShouldEqual, 1)
		})

		Convey("Records of other types do not count", func() {
			h := model.History{Interactions: interactions("e1", model.PeriodicOneOnOne, day(2024, 3, 3))}
			res := evaluateOne(e, tracked("e1", ""), h, req)
			So(res.Executed, ShouldEqual, 0)
		})
	})

	Convey("Given segment review for individuals without a quota", t, func() {
		e := compliance.NewEvaluator()
		req := compliance.Request{
			Type:  model.SegmentReview,
			Range: compliance.DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
		}
		h := model.History{Interactions: interactions("e1", model.SegmentReview, day(2024, 1, 10))}

		So(evaluateOne(e, tracked("e1", ""), h, req).Status, ShouldEqual, compliance.NotApplicable)
		So(evaluateOne(e, tracked("e1", "Z"), h, req).Status, ShouldEqual, compliance.NotApplicable)
		So(evaluateOne(e, tracked("e1", "C"), h, req).Status, ShouldEqual, compliance.Satisfied)
	})
}

func TestEvaluatorDevelopmentPlan(t *testing.T) {
	Convey("Given development actions", t, func() {
		e := compliance.NewEvaluator()
		ind := tracked("e1", "")
		h := model.History{
			Actions: []model.DevelopmentAction{
				{ID: "a1", IndividualID: "e1", Description: "course", StartDate: day(2024, 6, 3), EndDate: day(2024, 9, 1), Status: model.ActionInProgress},
				{ID: "a2", IndividualID: "e1", Description: "mentoring", StartDate: day(2024, 2, 1), Status: model.ActionCompleted},
			},
			Interactions: interactions("e1", model.Other, day(2024, 12, 1)),
		}

		Convey("Compliance counts action start dates against the semiannual schedule", func() {
			res := evaluateOne(e, ind, h, compliance.Request{
				Type:  model.DevelopmentPlan,
				Range: compliance.DateRange{Start: day(2024, 1, 1), End: day(2024, 12, 31)},
			})
			So(res.Required, ShouldEqual, 2)
			So(res.Executed, ShouldEqual, 2)
			So(res.Status, ShouldEqual, compliance.Satisfied)

			Convey("And the latest action provides last occurrence and next date", func() {
				So(res.LastOccurrence, ShouldNotBeNil)
				So(res.LastOccurrence.Equal(day(2024, 6, 3)), ShouldBeTrue)
				So(res.NextScheduled, ShouldNotBeNil)
				So(res.NextScheduled.Equal(day(2024, 9, 1)), ShouldBeTrue)
			})
		})
	})
}

func TestEvaluatorLastOccurrence(t *testing.T) {
	Convey("Given interactions with next dates", t, func() {
		e := compliance.NewEvaluator()
		next1 := day(2024, 7, 1)
		next2 := day(2024, 10, 1)
		h := model.History{Interactions: []model.Interaction{
			{ID: "1", IndividualID: "e1", Type: model.PeriodicOneOnOne, Date: day(2024, 3, 5), NextDate: &next1},
			{ID: "2", IndividualID: "e1", Type: model.PeriodicOneOnOne, Date: day(2024, 6, 5), NextDate: &next2},
			{ID: "3", IndividualID: "e1", Type: model.PeriodicOneOnOne, Date: day(2024, 6, 5)},
		}}

		Convey("The latest record wins and equal dates keep insertion order", func() {
			res := evaluateOne(e, tracked("e1", ""), h, compliance.Request{
				Type:  model.PeriodicOneOnOne,
				Range: compliance.DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
			})
			So(res.LastOccurrence.Equal(day(2024, 6, 5)), ShouldBeTrue)
			So(res.NextScheduled, ShouldNotBeNil)
			So(res.NextScheduled.Equal(next2), ShouldBeTrue)
		})
	})
}

func TestEvaluatorRoster(t *testing.T) {
	Convey("Given a roster with untracked individuals", t, func() {
		e := compliance.NewEvaluator()
		roster := []model.Individual{
			tracked("b", ""),
			{ID: "x", Name: "Untracked", Role: model.RoleContributor},
			tracked("a", ""),
		}
		history := map[string]model.History{
			"x": {Interactions: interactions("x", model.RiskIndex, day(2024, 1, 2))},
			"a": {Interactions: interactions("a", model.RiskIndex, day(2024, 1, 2))},
		}
		req := compliance.Request{
			Type:  model.RiskIndex,
			Range: compliance.DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
		}

		results, err := e.Evaluate(roster, history, req)

		Convey("Then only tracked individuals appear, in roster order", func() {
			So(err, ShouldBeNil)
			So(results, ShouldHaveLength, 2)
			So(results[0].IndividualID, ShouldEqual, "b")
			So(results[0].Status, ShouldEqual, compliance.Pending)
			So(results[1].IndividualID, ShouldEqual, "a")
			So(results[1].Status, ShouldEqual, compliance.Satisfied)
		})

		Convey("Then evaluating twice yields identical output", func() {
			again, err := e.Evaluate(roster, history, req)
			So(err, ShouldBeNil)
			So(again, ShouldResemble, results)
		})

		Convey("Then the summary tallies statuses", func() {
			s := compliance.Summarize(results)
			So(s, ShouldResemble, compliance.Summary{Total: 2, Satisfied: 1, Pending: 1})
		})
	})
}

func TestEvaluatorOptionsAndValidation(t *testing.T) {
	Convey("Given custom options", t, func() {
		loc, err := time.LoadLocation("America/Sao_Paulo")
		So(err, ShouldBeNil)
		e := compliance.NewEvaluator(
			compliance.WithFixedMonths(model.PeriodicOneOnOne, time.January),
			compliance.WithFixedMonths(model.RiskIndex),
			compliance.WithSegmentQuotas(map[string]int{"gold": 3}),
			compliance.WithLocation(loc),
		)
		ind := tracked("e1", "gold")

		Convey("A replaced schedule is honoured", func() {
			res := evaluateOne(e, ind, model.History{}, compliance.Request{
				Type:  model.PeriodicOneOnOne,
				Range: compliance.DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
			})
			So(res.Required, ShouldEqual, 1)
		})

		Convey("A removed schedule makes the type ad hoc", func() {
			res := evaluateOne(e, ind, model.History{}, compliance.Request{
				Type:  model.RiskIndex,
				Range: compliance.DateRange{Start: day(2024, 1, 1), End: day(2024, 6, 30)},
			})
			So(res.Status, ShouldEqual, compliance.Pending)
			So(res.Required, ShouldEqual, 0)
		})

		Convey("Calendar dates are read in the configured zone", func() {
			// 02:00 UTC on Feb 1 is still Jan 31 in Sao Paulo.
			h := model.History{Interactions: interactions("e1", model.SegmentReview, time.Date(2024, 2, 1, 2, 0, 0, 0, time.UTC))}
			res := evaluateOne(e, ind, h, compliance.Request{
				Type:  model.SegmentReview,
				Range: compliance.DateRange{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, loc), End: time.Date(2024, 1, 31, 0, 0, 0, 0, loc)},
			})
			So(res.Executed, ShouldEqual, 1)
			So(res.Required, ShouldEqual, 3)
			So(e.Location(), ShouldEqual, loc)
		})

		Convey("Unknown types are validation errors", func() {
			_, err := e.Evaluate(nil, nil, compliance.Request{
				Type:  "coffee",
				Range: compliance.DateRange{Start: day(2024, 1, 1), End: day(2024, 1, 2)},
			})
			So(errors.Is(err, compliance.ErrUnknownType), ShouldBeTrue)
			So(errors.Is(err, compliance.ErrValidation), ShouldBeTrue)
		})

		Convey("Missing range dates are validation errors", func() {
			_, err := e.Evaluate(nil, nil, compliance.Request{Type: model.RiskIndex})
			So(errors.Is(err, compliance.ErrValidation), ShouldBeTrue)
		})
	})
}
