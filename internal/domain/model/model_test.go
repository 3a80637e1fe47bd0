package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ninahq/nina/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseRole(t *testing.T) {
	Convey("Given role names", t, func() {
		Convey("When parsing known roles in any case", func() {
			r, err := model.ParseRole(" Director ")
			So(err, ShouldBeNil)
			So(r, ShouldEqual, model.RoleDirector)
		})

		Convey("When parsing an unknown role", func() {
			_, err := model.ParseRole("intern")
			So(errors.Is(err, model.ErrUnknownValue), ShouldBeTrue)
		})

		Convey("Then privilege ordering holds", func() {
			So(model.RoleAdmin.AtLeast(model.RoleDirector), ShouldBeTrue)
			So(model.RoleLeader.AtLeast(model.RoleDirector), ShouldBeFalse)
			So(model.RoleContributor.AtLeast(model.RoleContributor), ShouldBeTrue)
		})
	})
}

func TestParseInteractionType(t *testing.T) {
	Convey("Given interaction type names", t, func() {
		for _, typ := range model.InteractionTypes() {
			parsed, err := model.ParseInteractionType(string(typ))
			So(err, ShouldBeNil)
			So(parsed, ShouldEqual, typ)
		}

		Convey("Then development-plan is a selector but not a record type", func() {
			_, err := model.ParseInteractionType("development-plan")
			So(err, ShouldNotBeNil)
			sel, err := model.ParseSelector("DEVELOPMENT-PLAN")
			So(err, ShouldBeNil)
			So(sel, ShouldEqual, model.DevelopmentPlan)
		})

		Convey("Then unknown selectors are rejected", func() {
			_, err := model.ParseSelector("coffee-chat")
			So(errors.Is(err, model.ErrUnknownValue), ShouldBeTrue)
		})
	})
}

func TestParseActionStatus(t *testing.T) {
	Convey("Given action statuses", t, func() {
		st, err := model.ParseActionStatus("")
		So(err, ShouldBeNil)
		So(st, ShouldEqual, model.ActionNotStarted)

		st, err = model.ParseActionStatus("Completed")
		So(err, ShouldBeNil)
		So(st, ShouldEqual, model.ActionCompleted)

		_, err = model.ParseActionStatus("blocked")
		So(err, ShouldNotBeNil)
	})
}

func TestValidDate(t *testing.T) {
	Convey("Given stored dates", t, func() {
		So(model.ValidDate(time.Time{}), ShouldBeFalse)
		So(model.ValidDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
	})
}

func TestManagesRoster(t *testing.T) {
	Convey("Given individuals with different roles", t, func() {
		So(model.Individual{Role: model.RoleLeader}.ManagesRoster(), ShouldBeTrue)
		So(model.Individual{Role: model.RoleDirector}.ManagesRoster(), ShouldBeTrue)
		So(model.Individual{Role: model.RoleContributor}.ManagesRoster(), ShouldBeFalse)
		So(model.Individual{Role: model.RoleAdmin}.ManagesRoster(), ShouldBeFalse)
	})
}

func TestValidate(t *testing.T) {
	Convey("Given records to validate", t, func() {
		day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

		Convey("A complete individual passes", func() {
			ind := model.Individual{ID: "1", Name: "Ana", Email: "ana@example.com", Role: model.RoleLeader}
			So(ind.Validate(), ShouldBeNil)
		})

		Convey("Bad email and role are both reported", func() {
			err := model.Individual{Name: "Ana", Email: "nope", Role: "boss"}.Validate()
			So(errors.Is(err, model.ErrInvalid), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "email must satisfy email")
			So(err.Error(), ShouldContainSubstring, "role must satisfy oneof")
		})

		Convey("Interactions need a date and a known type", func() {
			it := model.Interaction{ID: "i", IndividualID: "1", Type: model.RiskIndex}
			So(errors.Is(it.Validate(), model.ErrInvalid), ShouldBeTrue)
			it.Date = day
			So(it.Validate(), ShouldBeNil)
			it.Type = model.DevelopmentPlan
			So(errors.Is(it.Validate(), model.ErrInvalid), ShouldBeTrue)
		})

		Convey("Negative risk scores are rejected", func() {
			score := -1.0
			it := model.Interaction{ID: "i", IndividualID: "1", Type: model.RiskIndex, Date: day, RiskScore: &score}
			So(errors.Is(it.Validate(), model.ErrInvalid), ShouldBeTrue)
		})

		Convey("Actions must not end before they start", func() {
			a := model.DevelopmentAction{ID: "a", IndividualID: "1", Description: "course", StartDate: day, Status: model.ActionNotStarted}
			So(a.Validate(), ShouldBeNil)
			a.EndDate = day.AddDate(0, 0, -1)
			So(errors.Is(a.Validate(), model.ErrInvalid), ShouldBeTrue)
			a.EndDate = time.Time{}
			a.StartDate = time.Time{}
			So(errors.Is(a.Validate(), model.ErrInvalid), ShouldBeTrue)
		})
	})
}
