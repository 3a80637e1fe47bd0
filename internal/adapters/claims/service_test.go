package claims_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ninahq/nina/internal/adapters/claims"
	"github.com/ninahq/nina/internal/adapters/repository"
	"github.com/ninahq/nina/internal/domain/model"
	"github.com/ninahq/nina/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

func TestGrantAdmin(t *testing.T) {
	Convey("Given a provider with an admin and a regular user", t, func() {
		ctx := context.Background()
		p := claims.NewMemoryProvider(
			claims.User{UID: "root", Email: "root@example.com", Claims: map[string]any{claims.ClaimAdmin: true}},
			claims.User{UID: "u1", Email: "user@example.com", Claims: map[string]any{"team": "blue"}},
		)
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		svc := claims.NewService(p, store)

		admin, err := p.VerifyIDToken(ctx, p.IssueToken("root"))
		So(err, ShouldBeNil)
		user, err := p.VerifyIDToken(ctx, p.IssueToken("u1"))
		So(err, ShouldBeNil)

		Convey("An admin can grant and existing claims are kept", func() {
			So(svc.GrantAdmin(ctx, admin, "USER@example.com"), ShouldBeNil)
			u, err := p.GetUserByEmail(ctx, "user@example.com")
			So(err, ShouldBeNil)
			So(u.Claims[claims.ClaimAdmin], ShouldEqual, true)
			So(u.Claims["team"], ShouldEqual, "blue")
		})

		Convey("A non-admin is denied", func() {
			err := svc.GrantAdmin(ctx, user, "root@example.com")
			So(errors.Is(err, claims.ErrPermissionDenied), ShouldBeTrue)
		})

		Convey("An unknown email is not found", func() {
			err := svc.GrantAdmin(ctx, admin, "ghost@example.com")
			So(errors.Is(err, claims.ErrNotFound), ShouldBeTrue)
		})

		Convey("A malformed email is rejected", func() {
			err := svc.GrantAdmin(ctx, admin, "not-an-email")
			So(errors.Is(err, claims.ErrInvalidEmail), ShouldBeTrue)
		})
	})
}

func TestGrantAdminRoleTable(t *testing.T) {
	Convey("Given an operator who is admin only through the role table", t, func() {
		ctx := context.Background()
		p := claims.NewMemoryProvider(
			claims.User{UID: "op", Email: "ops@example.com"},
			claims.User{UID: "u1", Email: "user@example.com"},
		)
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		table, err := claims.NewRoleTable(map[string]string{"ops@example.com": "admin", "lead@example.com": "leader"})
		So(err, ShouldBeNil)
		svc := claims.NewService(p, store, claims.WithRoleTable(table))

		op, err := p.VerifyIDToken(ctx, p.IssueToken("op"))
		So(err, ShouldBeNil)
		So(svc.Role(op), ShouldEqual, model.RoleAdmin)

		Convey("The grant succeeds", func() {
			So(svc.GrantAdmin(ctx, op, "user@example.com"), ShouldBeNil)
			u, _ := p.GetUserByEmail(ctx, "user@example.com")
			So(u.Claims[claims.ClaimAdmin], ShouldEqual, true)
		})

		Convey("A leader from the table is still denied", func() {
			lead := claims.Identity{UID: "l1", Email: "lead@example.com"}
			err := svc.GrantAdmin(ctx, lead, "user@example.com")
			So(errors.Is(err, claims.ErrPermissionDenied), ShouldBeTrue)
		})
	})
}

func TestBootstrapAdmin(t *testing.T) {
	Convey("Given an allow-listed operator", t, func() {
		ctx := context.Background()
		p := claims.NewMemoryProvider(
			claims.User{UID: "op", Email: "ops@example.com"},
			claims.User{UID: "u1", Email: "first@example.com"},
			claims.User{UID: "u2", Email: "second@example.com"},
		)
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		svc := claims.NewService(p, store, claims.WithBootstrapEmails(" OPS@example.com ", ""))
		op := claims.Identity{UID: "op", Email: "ops@example.com"}

		Convey("The first bootstrap succeeds and later ones are retired", func() {
			So(svc.BootstrapAdmin(ctx, op, "first@example.com"), ShouldBeNil)
			u, _ := p.GetUserByEmail(ctx, "first@example.com")
			So(u.Claims[claims.ClaimAdmin], ShouldEqual, true)

			err := svc.BootstrapAdmin(ctx, op, "second@example.com")
			So(errors.Is(err, claims.ErrBootstrapRetired), ShouldBeTrue)
			u, _ = p.GetUserByEmail(ctx, "second@example.com")
			So(u.Claims[claims.ClaimAdmin], ShouldBeNil)
		})

		Convey("A caller outside the allow-list is denied without consuming it", func() {
			stranger := claims.Identity{UID: "u1", Email: "first@example.com", Claims: map[string]any{claims.ClaimAdmin: true}}
			err := svc.BootstrapAdmin(ctx, stranger, "first@example.com")
			So(errors.Is(err, claims.ErrPermissionDenied), ShouldBeTrue)
			So(svc.BootstrapAdmin(ctx, op, "first@example.com"), ShouldBeNil)
		})

		Convey("An unknown target does not consume it", func() {
			err := svc.BootstrapAdmin(ctx, op, "ghost@example.com")
			So(errors.Is(err, claims.ErrNotFound), ShouldBeTrue)
			So(svc.BootstrapAdmin(ctx, op, "second@example.com"), ShouldBeNil)
		})
	})
}

func TestAuthenticate(t *testing.T) {
	Convey("Given a memory provider", t, func() {
		ctx := context.Background()
		p := claims.NewMemoryProvider(claims.User{UID: "u1", Email: "user@example.com"})

		Convey("Tokens are verified", func() {
			svc := claims.NewService(p, nil)
			id, err := svc.Authenticate(ctx, " "+p.IssueToken("u1")+" ")
			So(err, ShouldBeNil)
			So(id.Email, ShouldEqual, "user@example.com")
			So(id.IsAdmin(), ShouldBeFalse)

			_, err = svc.Authenticate(ctx, "")
			So(errors.Is(err, claims.ErrUnauthenticated), ShouldBeTrue)
			_, err = svc.Authenticate(ctx, "forged")
			So(errors.Is(err, claims.ErrUnauthenticated), ShouldBeTrue)
		})

		Convey("The dev identity bypasses verification", func() {
			svc := claims.NewService(p, nil, claims.WithDevIdentity("dev@localhost"))
			id, err := svc.Authenticate(ctx, "")
			So(err, ShouldBeNil)
			So(id.Email, ShouldEqual, "dev@localhost")
			So(id.IsAdmin(), ShouldBeTrue)
			So(svc.Role(id), ShouldEqual, model.RoleAdmin)
		})

		Convey("Identities round-trip through a context", func() {
			_, ok := claims.FromContext(ctx)
			So(ok, ShouldBeFalse)
			got, ok := claims.FromContext(claims.WithIdentity(ctx, claims.Identity{UID: "x"}))
			So(ok, ShouldBeTrue)
			So(got.UID, ShouldEqual, "x")
		})
	})
}

func TestResolveRole(t *testing.T) {
	Convey("Given a role table", t, func() {
		table, err := claims.NewRoleTable(map[string]string{"Director@Example.com": "director", "lead@example.com": "LEADER"})
		So(err, ShouldBeNil)
		So(table.Len(), ShouldEqual, 2)

		Convey("The admin claim wins", func() {
			id := claims.Identity{Email: "director@example.com", Claims: map[string]any{claims.ClaimAdmin: true}}
			So(claims.ResolveRole(id, table), ShouldEqual, model.RoleAdmin)
		})

		Convey("A role claim beats the table", func() {
			id := claims.Identity{Email: "director@example.com", Claims: map[string]any{claims.ClaimRole: "leader"}}
			So(claims.ResolveRole(id, table), ShouldEqual, model.RoleLeader)
		})

		Convey("An invalid role claim falls back to the table", func() {
			id := claims.Identity{Email: "DIRECTOR@example.com", Claims: map[string]any{claims.ClaimRole: "overlord", claims.ClaimAdmin: "yes"}}
			So(claims.ResolveRole(id, table), ShouldEqual, model.RoleDirector)
		})

		Convey("Unknown callers are contributors", func() {
			So(claims.ResolveRole(claims.Identity{Email: "x@example.com"}, table), ShouldEqual, model.RoleContributor)
			So(claims.ResolveRole(claims.Identity{Email: "lead@example.com"}, nil), ShouldEqual, model.RoleContributor)
		})

		Convey("Unknown roles in configuration are rejected", func() {
			_, err := claims.NewRoleTable(map[string]string{"a@example.com": "boss"})
			So(errors.Is(err, model.ErrUnknownValue), ShouldBeTrue)
		})
	})
}
