// Package config defines service configuration and its defaults.
//
// Loading layers defaults, an optional YAML file and NINA_ environment
// variables; see Load.
package config

import (
	"runtime"
)

// Store drivers.
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverFirestore = "firestore"
)

// Auth modes.
const (
	AuthFirebase = "firebase"
	AuthDisabled = "disabled"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json records.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the datastore: memory, sqlite or firestore.
	StoreDriver string `koanf:"store_driver"`
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`
	// FirestoreProject is the Google Cloud project hosting Firestore and Firebase Auth.
	FirestoreProject string `koanf:"firestore_project"`
	// CredentialsFile optionally points at a service account key.
	CredentialsFile string `koanf:"credentials_file"`

	// AuthMode selects how callers are identified: firebase (default) or
	// disabled. Disabled must be set explicitly and makes every caller an admin.
	AuthMode string `koanf:"auth_mode"`
	// DevEmail is the identity assumed for every request when auth is disabled.
	DevEmail string `koanf:"dev_email"`
	// BootstrapEmails may run the one-time admin bootstrap.
	BootstrapEmails []string `koanf:"bootstrap_emails"`
	// RoleAssignments resolves roles for callers whose token carries no role claim.
	RoleAssignments []RoleAssignment `koanf:"role_assignments"`

	// FetchConcurrency bounds per-individual history fetches.
	FetchConcurrency int `koanf:"fetch_concurrency"`
	// Timezone is the IANA zone used for calendar-date comparisons.
	Timezone string `koanf:"timezone"`
	// AdherenceCutoffDay is the last day of the month on which a missing 1:1 is still pending.
	AdherenceCutoffDay int `koanf:"adherence_cutoff_day"`
	// Schedules maps interaction types to the 1-indexed months in which they are required.
	Schedules map[string][]int `koanf:"schedules"`
	// SegmentQuotas maps segment labels to required segment reviews per month.
	SegmentQuotas map[string]int `koanf:"segment_quotas"`

	// ExportBucket enables publishing exports to this GCS bucket when set.
	ExportBucket string `koanf:"export_bucket"`
}

// RoleAssignment binds an email to a role name.
type RoleAssignment struct {
	Email string `koanf:"email"`
	Role  string `koanf:"role"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		StoreDriver:        DriverMemory,
		SQLitePath:         "nina.db",
		AuthMode:           AuthFirebase,
		DevEmail:           "dev@localhost",
		BootstrapEmails:    []string{},
		RoleAssignments:    []RoleAssignment{},
		FetchConcurrency:   runtime.NumCPU() * 4,
		Timezone:           "UTC",
		AdherenceCutoffDay: 10,
		Schedules: map[string][]int{
			"periodic-1on1":    {3, 6, 9, 12},
			"development-plan": {6, 12},
			"risk-index":       {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		},
		SegmentQuotas: map[string]int{
			"A": 4,
			"B": 2,
			"C": 1,
		},
	}
}
