// Package ninactl implements the operator CLI that talks to the nina HTTP API.
package ninactl

import "time"

// Config holds the connection settings shared by every command.
type Config struct {
	BaseURL string        // Base URL of the service
	Token   string        // Bearer token; empty when the server runs without auth
	Timeout time.Duration // HTTP request timeout
	Verbose bool          // Enable debug logging
}

// SeedConfig sizes the synthetic dataset posted by the seed command.
type SeedConfig struct {
	Directors          int    // Directors at the top of the hierarchy
	LeadersPerDirector int    // Leaders reporting to each director
	MembersPerLeader   int    // Contributors reporting to each leader
	Months             int    // Months of history, ending with the current one
	Workers            int    // Concurrent history uploads
	Seed               uint64 // Random seed; equal seeds give equal datasets
	OutputFile         string // Optional JSON dump of the generated dataset
	SkipVerify         bool   // Skip the /compliance and /adherence checks
}

// Stats summarises a seed run.
type Stats struct {
	Individuals       int
	InteractionsSent  int
	InteractionsOK    int
	ActionsSent       int
	ActionsOK         int
	Failed            int
	LeadersRanked     int
	ComplianceResults int
	StartTime         time.Time
	Duration          time.Duration
}
