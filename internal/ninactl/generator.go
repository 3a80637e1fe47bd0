package ninactl

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/now"
)

// Probabilities and sizes for generated history.
const (
	oneOnOneChance    = 0.7
	riskIndexChance   = 0.5
	feedbackChance    = 0.3
	untrackedEvery    = 7
	maxRiskScore      = 10.0
	maxActionsPerUser = 2
	maxActionMonths   = 3
	lastDayOfAnyMonth = 28
)

var (
	axes          = []string{"North", "South", "East", "West"}
	segments      = []string{"A", "B", "C"}
	segmentQuota  = map[string]int{"A": 4, "B": 2, "C": 1}
	actionStatus  = []string{"not-started", "in-progress", "completed"}
	actionSubject = []string{"Public speaking course", "Mentoring program", "Technical certification", "Job rotation", "Leadership workshop"}
)

// Individual mirrors the POST /individuals body.
type Individual struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	LeaderID string `json:"leader_id,omitempty"`
	Segment  string `json:"segment,omitempty"`
	Axis     string `json:"axis,omitempty"`
	Area     string `json:"area,omitempty"`
	Position string `json:"position,omitempty"`
	Tracked  bool   `json:"tracked"`
}

// Interaction mirrors the POST /individuals/{id}/interactions body.
type Interaction struct {
	OwnerID   string     `json:"-"`
	Type      string     `json:"type"`
	Date      time.Time  `json:"date"`
	Notes     string     `json:"notes,omitempty"`
	RiskScore *float64   `json:"risk_score,omitempty"`
	NextDate  *time.Time `json:"next_date,omitempty"`
}

// Action mirrors the POST /individuals/{id}/actions body.
type Action struct {
	OwnerID     string    `json:"-"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Status      string    `json:"status"`
}

// Dataset is a generated roster with its history. Individuals are ordered
// so every leader precedes its reports.
type Dataset struct {
	Individuals  []Individual  `json:"individuals"`
	Interactions []Interaction `json:"interactions"`
	Actions      []Action      `json:"actions"`
}

// Leaders returns the IDs of directors and leaders.
func (d Dataset) Leaders() []string {
	var out []string
	for _, ind := range d.Individuals {
		if ind.Role == "director" || ind.Role == "leader" {
			out = append(out, ind.ID)
		}
	}
	return out
}

// Tracked returns the IDs of tracked individuals.
func (d Dataset) Tracked() []string {
	var out []string
	for _, ind := range d.Individuals {
		if ind.Tracked {
			out = append(out, ind.ID)
		}
	}
	return out
}

type generator struct {
	cfg  SeedConfig
	rng  *rand.Rand
	now  time.Time
	data Dataset
}

// Generate builds a dataset. It is deterministic for equal cfg.Seed and at.
func Generate(cfg SeedConfig, at time.Time) Dataset {
	g := &generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		now: at.UTC(),
	}
	n := 0
	for d := 0; d < cfg.Directors; d++ {
		axis := axes[d%len(axes)]
		director := g.person(fmt.Sprintf("director-%d", d), "director", "", axis, false)
		for l := 0; l < cfg.LeadersPerDirector; l++ {
			leader := g.person(fmt.Sprintf("leader-%d-%d", d, l), "leader", director.ID, axis, true)
			g.history(leader)
			for m := 0; m < cfg.MembersPerLeader; m++ {
				n++
				member := g.person(fmt.Sprintf("member-%d-%d-%d", d, l, m), "contributor", leader.ID, axis, n%untrackedEvery != 0)
				if member.Tracked {
					g.history(member)
				}
			}
		}
	}
	return g.data
}

func (g *generator) id(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("nina-seed/%d/%s", g.cfg.Seed, key))).String()
}

func (g *generator) person(key, role, leaderID, axis string, tracked bool) Individual {
	ind := Individual{
		ID:       g.id(key),
		Name:     key,
		Email:    fmt.Sprintf("%s.%d@seed.nina.test", key, g.cfg.Seed),
		Role:     role,
		LeaderID: leaderID,
		Axis:     axis,
		Area:     "Operations",
		Position: role,
		Tracked:  tracked,
	}
	if role == "contributor" {
		ind.Segment = segments[g.rng.IntN(len(segments))]
	}
	g.data.Individuals = append(g.data.Individuals, ind)
	return ind
}

// history generates interactions for each month of the window and a few
// development actions.
func (g *generator) history(ind Individual) {
	first := now.With(g.now).BeginningOfMonth().AddDate(0, 1-g.cfg.Months, 0)
	for month := first; !month.After(g.now); month = month.AddDate(0, 1, 0) {
		if g.rng.Float64() < oneOnOneChance {
			date := g.dayIn(month)
			next := date.AddDate(0, 1, 0)
			g.interaction(ind.ID, "periodic-1on1", date, &next, nil)
		}
		reviews := g.rng.IntN(segmentQuota[ind.Segment] + 1)
		for i := 0; i < reviews; i++ {
			g.interaction(ind.ID, "segment-review", g.dayIn(month), nil, nil)
		}
		if g.rng.Float64() < riskIndexChance {
			score := float64(int(g.rng.Float64()*maxRiskScore*10)) / 10
			g.interaction(ind.ID, "risk-index", g.dayIn(month), nil, &score)
		}
		if g.rng.Float64() < feedbackChance {
			g.interaction(ind.ID, "ad-hoc-feedback", g.dayIn(month), nil, nil)
		}
	}
	actions := 1 + g.rng.IntN(maxActionsPerUser)
	for i := 0; i < actions; i++ {
		start := g.dayIn(first.AddDate(0, g.rng.IntN(g.cfg.Months), 0))
		g.data.Actions = append(g.data.Actions, Action{
			OwnerID:     ind.ID,
			Description: actionSubject[g.rng.IntN(len(actionSubject))],
			StartDate:   start,
			EndDate:     start.AddDate(0, 1+g.rng.IntN(maxActionMonths), 0),
			Status:      actionStatus[g.rng.IntN(len(actionStatus))],
		})
	}
}

func (g *generator) interaction(owner, typ string, date time.Time, next *time.Time, score *float64) {
	g.data.Interactions = append(g.data.Interactions, Interaction{
		OwnerID:   owner,
		Type:      typ,
		Date:      date,
		Notes:     "seeded",
		RiskScore: score,
		NextDate:  next,
	})
}

// dayIn picks a day within month, never after now.
func (g *generator) dayIn(month time.Time) time.Time {
	last := lastDayOfAnyMonth
	if month.Year() == g.now.Year() && month.Month() == g.now.Month() {
		last = g.now.Day()
	}
	return time.Date(month.Year(), month.Month(), 1+g.rng.IntN(last), 10, 0, 0, 0, time.UTC)
}
