package ninactl

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jinzhu/now"
)

// ComplianceReport is the subset of GET /compliance the CLI reads.
type ComplianceReport struct {
	Type    string `json:"type"`
	Summary struct {
		Total         int `json:"total"`
		Satisfied     int `json:"satisfied"`
		Partial       int `json:"partial"`
		Pending       int `json:"pending"`
		NotApplicable int `json:"not_applicable"`
	} `json:"summary"`
	Results []struct {
		IndividualID   string     `json:"individual_id"`
		Name           string     `json:"name"`
		Status         string     `json:"status"`
		Executed       int        `json:"executed"`
		Required       int        `json:"required"`
		LastOccurrence *time.Time `json:"last_occurrence"`
		NextScheduled  *time.Time `json:"next_scheduled"`
	} `json:"results"`
}

// AdherenceReport is the subset of GET /adherence the CLI reads.
type AdherenceReport struct {
	CutoffDay int `json:"cutoff_day"`
	Leaders   []struct {
		LeaderID  string  `json:"leader_id"`
		Name      string  `json:"name"`
		Axis      string  `json:"axis"`
		Members   int     `json:"members"`
		Done      int     `json:"done"`
		Pending   int     `json:"pending"`
		Overdue   int     `json:"overdue"`
		Adherence float64 `json:"adherence"`
	} `json:"leaders"`
}

// verifySeed checks every seeded tracked individual is evaluated and every
// seeded leader is ranked.
func verifySeed(ctx context.Context, c *Client, cfg SeedConfig, at time.Time, data Dataset, stats *Stats) error {
	end := now.With(at.UTC()).EndOfMonth()
	start := now.With(at.UTC()).BeginningOfMonth().AddDate(0, 1-cfg.Months, 0)

	var comp ComplianceReport
	q := url.Values{}
	q.Set("type", "periodic-1on1")
	q.Set("start", start.Format(time.DateOnly))
	q.Set("end", end.Format(time.DateOnly))
	if err := c.GetJSON(ctx, "/compliance", q, &comp); err != nil {
		return fmt.Errorf("compliance: %w", err)
	}
	evaluated := make(map[string]bool, len(comp.Results))
	for _, r := range comp.Results {
		evaluated[r.IndividualID] = true
	}
	for _, id := range data.Tracked() {
		if !evaluated[id] {
			return fmt.Errorf("tracked individual %s missing from compliance results", id)
		}
	}
	stats.ComplianceResults = len(comp.Results)

	var adh AdherenceReport
	if err := c.GetJSON(ctx, "/adherence", nil, &adh); err != nil {
		return fmt.Errorf("adherence: %w", err)
	}
	ranked := make(map[string]bool, len(adh.Leaders))
	for i, l := range adh.Leaders {
		ranked[l.LeaderID] = true
		if i > 0 && l.Adherence > adh.Leaders[i-1].Adherence {
			return fmt.Errorf("adherence ranking not sorted at position %d", i)
		}
	}
	for _, id := range data.Leaders() {
		if !ranked[id] {
			return fmt.Errorf("leader %s missing from adherence ranking", id)
		}
	}
	stats.LeadersRanked = len(adh.Leaders)
	return nil
}
