package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ninahq/nina/internal/adapters/claims"
	"github.com/ninahq/nina/internal/adapters/export"
	"github.com/ninahq/nina/internal/adapters/repository"
	service "github.com/ninahq/nina/internal/app"
	"github.com/ninahq/nina/internal/domain/adherence"
	"github.com/ninahq/nina/internal/domain/compliance"
	"github.com/ninahq/nina/internal/domain/model"
	"github.com/ninahq/nina/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// started returns a running service over a fresh memory store.
func started(opts ...service.Option) (*service.Service, *repository.MemoryStore) {
	store := repository.NewMemoryStore(context.Background())
	opts = append([]service.Option{service.WithStore(store)}, opts...)
	svc := service.New(opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc, store
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()
		So(svc, ShouldNotBeNil)

		Convey("Operations fail before Start", func() {
			_, err := svc.ListIndividuals(context.Background())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then it should be marked as started with an empty roster", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["individuals"], ShouldEqual, 0)
				So(stats["canPublish"], ShouldEqual, false)
			})

			Convey("And stopping marks it stopped", func() {
				svc.Stop()
				So(svc.GetStats()["started"], ShouldEqual, false)
				svc.Stop()
			})
		})
	})
}

func TestService_Roster(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc, store := started(service.WithClock(fixedClock(day(2024, time.March, 1))))
		defer svc.Stop()
		defer store.Close()

		leader, err := svc.CreateIndividual(ctx, model.Individual{
			Name: "Lia", Email: "lia@example.com", Role: model.RoleLeader, Tracked: true,
		})
		So(err, ShouldBeNil)
		So(leader.ID, ShouldNotBeEmpty)
		So(leader.CreatedAt, ShouldEqual, day(2024, time.March, 1))

		Convey("A member can reference an existing leader", func() {
			m, err := svc.CreateIndividual(ctx, model.Individual{
				ID: "m1", Name: "Mo", Email: "mo@example.com", Role: model.RoleContributor,
				LeaderID: leader.ID, Tracked: true,
			})
			So(err, ShouldBeNil)
			So(m.ID, ShouldEqual, "m1")

			_, err = svc.CreateIndividual(ctx, model.Individual{
				ID: "m1", Name: "Dup", Email: "dup@example.com", Role: model.RoleContributor,
			})
			So(errors.Is(err, service.ErrConflict), ShouldBeTrue)
		})

		Convey("An unknown leader is invalid input", func() {
			_, err := svc.CreateIndividual(ctx, model.Individual{
				Name: "X", Email: "x@example.com", Role: model.RoleContributor, LeaderID: "ghost",
			})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("A failing struct validation is invalid input", func() {
			_, err := svc.CreateIndividual(ctx, model.Individual{Name: "X", Email: "nope", Role: model.RoleContributor})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Update keeps the creation time and rejects self-leadership", func() {
			upd, err := svc.UpdateIndividual(ctx, leader.ID, model.Individual{
				Name: "Lia B", Email: "lia@example.com", Role: model.RoleDirector, Axis: "north",
			})
			So(err, ShouldBeNil)
			So(upd.CreatedAt, ShouldEqual, leader.CreatedAt)
			got, err := svc.GetIndividual(ctx, leader.ID)
			So(err, ShouldBeNil)
			So(got.Role, ShouldEqual, model.RoleDirector)

			_, err = svc.UpdateIndividual(ctx, leader.ID, model.Individual{
				Name: "Lia", Email: "lia@example.com", Role: model.RoleLeader, LeaderID: leader.ID,
			})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.UpdateIndividual(ctx, "ghost", upd)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Interactions and actions require an existing owner", func() {
			_, err := svc.CreateInteraction(ctx, "ghost", model.Interaction{Type: model.PeriodicOneOnOne, Date: day(2024, time.March, 2)})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			it, err := svc.CreateInteraction(ctx, leader.ID, model.Interaction{Type: model.PeriodicOneOnOne, Date: day(2024, time.March, 2)})
			So(err, ShouldBeNil)
			So(it.IndividualID, ShouldEqual, leader.ID)

			_, err = svc.CreateInteraction(ctx, leader.ID, model.Interaction{Type: "coffee", Date: day(2024, time.March, 2)})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			list, err := svc.ListInteractions(ctx, leader.ID)
			So(err, ShouldBeNil)
			So(len(list), ShouldEqual, 1)

			a, err := svc.CreateAction(ctx, leader.ID, model.DevelopmentAction{
				Description: "course", StartDate: day(2024, time.June, 1), EndDate: day(2024, time.July, 1),
			})
			So(err, ShouldBeNil)
			So(a.Status, ShouldEqual, model.ActionNotStarted)

			actions, err := svc.ListActions(ctx, leader.ID)
			So(err, ShouldBeNil)
			So(len(actions), ShouldEqual, 1)

			_, err = svc.ListActions(ctx, "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Compliance(t *testing.T) {
	Convey("Given a leader with two tracked reports and one untracked", t, func() {
		ctx := context.Background()
		svc, store := started(service.WithFetchConcurrency(2))
		defer svc.Stop()
		defer store.Close()

		for _, ind := range []model.Individual{
			{ID: "L", Name: "Lead", Email: "l@example.com", Role: model.RoleLeader, Tracked: true},
			{ID: "a", Name: "Ana", Email: "a@example.com", Role: model.RoleContributor, LeaderID: "L", Tracked: true, Segment: "B"},
			{ID: "b", Name: "Bia", Email: "b@example.com", Role: model.RoleContributor, LeaderID: "L", Tracked: true},
			{ID: "c", Name: "Cid", Email: "c@example.com", Role: model.RoleContributor, LeaderID: "L"},
		} {
			So(store.UpsertIndividual(ctx, ind), ShouldBeNil)
		}
		So(store.UpsertInteraction(ctx, model.Interaction{ID: "i1", IndividualID: "a", Type: model.PeriodicOneOnOne, Date: day(2024, time.March, 10)}), ShouldBeNil)
		So(store.UpsertInteraction(ctx, model.Interaction{ID: "i2", IndividualID: "a", Type: model.SegmentReview, Date: day(2024, time.March, 11)}), ShouldBeNil)

		Convey("A quarter-end range evaluates every tracked individual", func() {
			rep, err := svc.Compliance(ctx, "periodic-1on1", day(2024, time.March, 1), day(2024, time.March, 31), "")
			So(err, ShouldBeNil)
			So(rep.Type, ShouldEqual, model.PeriodicOneOnOne)
			So(len(rep.Results), ShouldEqual, 3)
			So(rep.Results[1].IndividualID, ShouldEqual, "a")
			So(rep.Results[1].Status, ShouldEqual, compliance.Satisfied)
			So(rep.Results[2].Status, ShouldEqual, compliance.Pending)
			So(rep.Summary.Total, ShouldEqual, 3)
			So(rep.Summary.Satisfied, ShouldEqual, 1)
		})

		Convey("A leader filter keeps only direct reports", func() {
			rep, err := svc.Compliance(ctx, "segment-review", day(2024, time.March, 1), day(2024, time.March, 31), "L")
			So(err, ShouldBeNil)
			So(len(rep.Results), ShouldEqual, 2)
			So(rep.Results[0].Status, ShouldEqual, compliance.Partial)
			So(rep.Results[0].Label(), ShouldEqual, "partial (1/2)")
			So(rep.Results[1].Status, ShouldEqual, compliance.NotApplicable)

			_, err = svc.Compliance(ctx, "segment-review", day(2024, time.March, 1), day(2024, time.March, 31), "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Bad selectors and inverted ranges are validation errors", func() {
			_, err := svc.Compliance(ctx, "coffee", day(2024, time.March, 1), day(2024, time.March, 31), "")
			So(errors.Is(err, compliance.ErrUnknownType), ShouldBeTrue)
			So(errors.Is(err, compliance.ErrValidation), ShouldBeTrue)

			_, err = svc.Compliance(ctx, "periodic-1on1", day(2024, time.April, 1), day(2024, time.March, 1), "")
			So(errors.Is(err, compliance.ErrInvalidRange), ShouldBeTrue)
		})

		Convey("A development-plan selector reads actions", func() {
			So(store.UpsertAction(ctx, model.DevelopmentAction{
				ID: "p1", IndividualID: "b", Description: "mentoring",
				StartDate: day(2024, time.June, 3), Status: model.ActionInProgress,
			}), ShouldBeNil)
			rep, err := svc.Compliance(ctx, "development-plan", day(2024, time.June, 1), day(2024, time.June, 30), "")
			So(err, ShouldBeNil)
			So(rep.Results[2].IndividualID, ShouldEqual, "b")
			So(rep.Results[2].Status, ShouldEqual, compliance.Satisfied)
		})
	})
}

func TestService_Adherence(t *testing.T) {
	Convey("Given two leaders on different axes", t, func() {
		ctx := context.Background()
		svc, store := started(
			service.WithClock(fixedClock(day(2024, time.May, 20))),
			service.WithRanker(adherence.NewRanker(adherence.WithCutoffDay(10))),
		)
		defer svc.Stop()
		defer store.Close()

		for _, ind := range []model.Individual{
			{ID: "L1", Name: "One", Email: "1@example.com", Role: model.RoleLeader, Axis: "North", Tracked: true},
			{ID: "L2", Name: "Two", Email: "2@example.com", Role: model.RoleLeader, Axis: "South", Tracked: true},
			{ID: "a", Name: "A", Email: "a@example.com", Role: model.RoleContributor, LeaderID: "L1", Tracked: true},
			{ID: "b", Name: "B", Email: "b@example.com", Role: model.RoleContributor, LeaderID: "L2", Tracked: true},
		} {
			So(store.UpsertIndividual(ctx, ind), ShouldBeNil)
		}
		So(store.UpsertInteraction(ctx, model.Interaction{ID: "x", IndividualID: "b", Type: model.PeriodicOneOnOne, Date: day(2024, time.May, 2)}), ShouldBeNil)
		So(store.UpsertInteraction(ctx, model.Interaction{ID: "y", IndividualID: "a", Type: model.PeriodicOneOnOne, Date: day(2024, time.April, 2)}), ShouldBeNil)

		Convey("Leaders are ranked by adherence", func() {
			rep, err := svc.Adherence(ctx, "")
			So(err, ShouldBeNil)
			So(rep.CutoffDay, ShouldEqual, 10)
			So(len(rep.Leaders), ShouldEqual, 2)
			So(rep.Leaders[0].LeaderID, ShouldEqual, "L2")
			So(rep.Leaders[0].Adherence, ShouldEqual, 100.0)
			So(rep.Leaders[1].Overdue, ShouldEqual, 1)
		})

		Convey("The axis filter is case-insensitive", func() {
			rep, err := svc.Adherence(ctx, "north")
			So(err, ShouldBeNil)
			So(len(rep.Leaders), ShouldEqual, 1)
			So(rep.Leaders[0].LeaderID, ShouldEqual, "L1")
		})
	})
}

func TestService_ImportExportClaims(t *testing.T) {
	Convey("Given a started service with a claims provider", t, func() {
		ctx := context.Background()
		provider := claims.NewMemoryProvider(
			claims.User{UID: "boot", Email: "boot@example.com"},
			claims.User{UID: "u", Email: "u@example.com"},
		)
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		cs := claims.NewService(provider, store, claims.WithBootstrapEmails("boot@example.com"))
		svc := service.New(service.WithStore(store), service.WithClaims(cs))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Import then export round trips through the store", func() {
			rep, err := svc.Import(ctx, "individuals", strings.NewReader(
				"external_id,name,email,role\np1,Pat,pat@example.com,contributor\n"))
			So(err, ShouldBeNil)
			So(rep.Imported, ShouldEqual, 1)

			_, err = svc.Import(ctx, "bananas", strings.NewReader(""))
			So(err, ShouldNotBeNil)

			res, err := svc.Export(ctx, export.Request{IDs: []string{"p1", "ghost"}, Format: export.FormatCSV})
			So(err, ShouldBeNil)
			So(res.Exported, ShouldEqual, 1)
			So(res.Failed, ShouldEqual, 1)
		})

		Convey("Bootstrap then grant", func() {
			caller, err := svc.Authenticate(ctx, provider.IssueToken("boot"))
			So(err, ShouldBeNil)
			grant, err := svc.BootstrapAdmin(ctx, caller, "boot@example.com")
			So(err, ShouldBeNil)
			So(grant.IndividualID, ShouldBeEmpty)
			_, err = svc.BootstrapAdmin(ctx, caller, "boot@example.com")
			So(errors.Is(err, claims.ErrBootstrapRetired), ShouldBeTrue)

			admin, err := svc.Authenticate(ctx, provider.IssueToken("boot"))
			So(err, ShouldBeNil)
			So(svc.Role(admin), ShouldEqual, model.RoleAdmin)

			_, err = svc.Import(ctx, "individuals", strings.NewReader(
				"external_id,name,email,role\nu1,Uma,U@example.com,leader\n"))
			So(err, ShouldBeNil)
			grant, err = svc.GrantAdmin(ctx, admin, " u@example.com ")
			So(err, ShouldBeNil)
			So(grant, ShouldResemble, service.AdminGrant{Email: "u@example.com", IndividualID: "u1"})
		})
	})
}
