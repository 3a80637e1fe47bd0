package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ninahq/nina/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.AuthMode, convey.ShouldEqual, config.AuthFirebase)
			convey.So(cfg.AdherenceCutoffDay, convey.ShouldEqual, 10)
			convey.So(cfg.Schedules["periodic-1on1"], convey.ShouldResemble, []int{3, 6, 9, 12})
			convey.So(cfg.SegmentQuotas["B"], convey.ShouldEqual, 2)
		})

		convey.Convey("Then authentication cannot be skipped by omission", func() {
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "firestore_project")

			cfg.FirestoreProject = "nina-prod"
			convey.So(cfg.Validate(), convey.ShouldBeNil)

			cfg.FirestoreProject = ""
			cfg.AuthMode = config.AuthDisabled
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it refuses to run without a firebase project", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When auth is disabled explicitly", func() {
			_ = os.Setenv("NINA_AUTH_MODE", "disabled")

			cfg, err := config.Load(ctx)

			convey.Convey("Then the remaining defaults load", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.AuthMode, convey.ShouldEqual, config.AuthDisabled)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Timezone, convey.ShouldEqual, "UTC")
				convey.So(cfg.Location().String(), convey.ShouldEqual, "UTC")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("NINA_ADDR", ":8080")
			_ = os.Setenv("NINA_STORE_DRIVER", "sqlite")
			_ = os.Setenv("NINA_SQLITE_PATH", "/tmp/nina-test.db")
			_ = os.Setenv("NINA_FETCH_CONCURRENCY", "3")
			_ = os.Setenv("NINA_BOOTSTRAP_EMAILS", "ana@example.com, bia@example.com")
			_ = os.Setenv("NINA_FIRESTORE_PROJECT", "nina-test")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/nina-test.db")
				convey.So(cfg.FetchConcurrency, convey.ShouldEqual, 3)
				convey.So(cfg.BootstrapEmails, convey.ShouldResemble, []string{"ana@example.com", "bia@example.com"})
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
timezone: "America/Sao_Paulo"
adherence_cutoff_day: 15
schedules:
  development-plan: [5, 11]
segment_quotas:
  A: 8
role_assignments:
  - email: director@example.com
    role: director
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("NINA_CONFIG", tmpFile)
			_ = os.Setenv("NINA_ADDR", ":7070")
			_ = os.Setenv("NINA_AUTH_MODE", "disabled")

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values merge with defaults and env wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Timezone, convey.ShouldEqual, "America/Sao_Paulo")
				convey.So(cfg.AdherenceCutoffDay, convey.ShouldEqual, 15)
				convey.So(cfg.Schedules["development-plan"], convey.ShouldResemble, []int{5, 11})
				convey.So(cfg.Schedules["periodic-1on1"], convey.ShouldResemble, []int{3, 6, 9, 12})
				convey.So(cfg.SegmentQuotas["A"], convey.ShouldEqual, 8)
				convey.So(cfg.RoleAssignments, convey.ShouldResemble, []config.RoleAssignment{{Email: "director@example.com", Role: "director"}})
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("NINA_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("NINA_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("NINA_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("NINA_FETCH_CONCURRENCY", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})
	})
}

func TestConfigValidate(t *testing.T) {
	convey.Convey("Given configs violating constraints", t, func() {
		mutations := []func(c *config.Config){
			func(c *config.Config) { c.StoreDriver = "mongo" },
			func(c *config.Config) { c.StoreDriver = config.DriverFirestore },
			func(c *config.Config) { c.AuthMode = config.AuthFirebase },
			func(c *config.Config) { c.AuthMode = "basic" },
			func(c *config.Config) { c.Timezone = "Mars/Olympus" },
			func(c *config.Config) { c.AdherenceCutoffDay = 0 },
			func(c *config.Config) { c.Schedules["risk-index"] = []int{0} },
			func(c *config.Config) { c.SegmentQuotas["D"] = -1 },
			func(c *config.Config) { c.StoreDriver = config.DriverSQLite; c.SQLitePath = "" },
		}
		for _, mutate := range mutations {
			cfg := config.New()
			cfg.AuthMode = config.AuthDisabled
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		}
	})
}

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"NINA_CONFIG",
		"NINA_ADDR",
		"NINA_STORE_DRIVER",
		"NINA_SQLITE_PATH",
		"NINA_FETCH_CONCURRENCY",
		"NINA_BOOTSTRAP_EMAILS",
		"NINA_AUTH_MODE",
		"NINA_FIRESTORE_PROJECT",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "nina-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
