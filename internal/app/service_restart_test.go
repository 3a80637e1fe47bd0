package service

import (
	"context"
	"io"
	"testing"

	"github.com/ninahq/nina/internal/adapters/claims"
	"github.com/ninahq/nina/internal/adapters/repository"
	"github.com/ninahq/nina/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestService_Restart(t *testing.T) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		t.Fatal(err)
	}

	Convey("Given a service that builds its own store and claims", t, func() {
		ctx := context.Background()
		svc := New()
		So(svc.Start(ctx), ShouldBeNil)
		firstStore, firstClaims := svc.store, svc.claims
		So(svc.ownsClaims, ShouldBeTrue)

		Convey("Stop drops both and Start rebuilds them together", func() {
			svc.Stop()
			So(svc.store, ShouldBeNil)
			So(svc.claims, ShouldBeNil)

			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()
			So(svc.store.(*repository.MemoryStore), ShouldNotPointTo, firstStore.(*repository.MemoryStore))
			So(svc.claims, ShouldNotPointTo, firstClaims)
		})
	})

	Convey("Given claims supplied by the caller", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		cs := claims.NewService(claims.NewMemoryProvider(), store)
		svc := New(WithStore(store), WithClaims(cs))
		So(svc.Start(ctx), ShouldBeNil)

		Convey("They survive a restart", func() {
			svc.Stop()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()
			So(svc.claims, ShouldPointTo, cs)
			So(svc.ownsClaims, ShouldBeFalse)
		})
	})
}
