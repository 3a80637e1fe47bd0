// Package model contains the domain records shared by every layer: the
// roster of individuals and their interaction and development-plan history.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is an individual's position in the management hierarchy.
type Role string

// Roles.
const (
	RoleContributor Role = "contributor"
	RoleLeader      Role = "leader"
	RoleDirector    Role = "director"
	RoleAdmin       Role = "admin"
)

var roles = []Role{RoleContributor, RoleLeader, RoleDirector, RoleAdmin}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range roles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: role %q", ErrUnknownValue, s)
}

// Rank orders roles by privilege; higher is more privileged.
func (r Role) Rank() int {
	switch r {
	case RoleLeader:
		return 1
	case RoleDirector:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r is as privileged as other.
func (r Role) AtLeast(other Role) bool { return r.Rank() >= other.Rank() }

// InteractionType names a kind of logged interaction. DevelopmentPlan is only
// a compliance selector; it is computed from DevelopmentAction records.
type InteractionType string

// Interaction types.
const (
	PeriodicOneOnOne InteractionType = "periodic-1on1"
	AdHocFeedback    InteractionType = "ad-hoc-feedback"
	SegmentReview    InteractionType = "segment-review"
	RiskIndex        InteractionType = "risk-index"
	Other            InteractionType = "other"
	DevelopmentPlan  InteractionType = "development-plan"
)

var interactionTypes = []InteractionType{PeriodicOneOnOne, AdHocFeedback, SegmentReview, RiskIndex, Other}

// InteractionTypes returns the types an Interaction record may carry.
func InteractionTypes() []InteractionType {
	out := make([]InteractionType, len(interactionTypes))
	copy(out, interactionTypes)
	return out
}

// ParseInteractionType parses the type of an Interaction record.
func ParseInteractionType(s string) (InteractionType, error) {
	t := InteractionType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range interactionTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: interaction type %q", ErrUnknownValue, s)
}

// ParseSelector parses a compliance selector: any interaction type or development-plan.
func ParseSelector(s string) (InteractionType, error) {
	if InteractionType(strings.ToLower(strings.TrimSpace(s))) == DevelopmentPlan {
		return DevelopmentPlan, nil
	}
	return ParseInteractionType(s)
}

// ActionStatus is the progress of a development action.
type ActionStatus string

// Action statuses.
const (
	ActionNotStarted ActionStatus = "not-started"
	ActionInProgress ActionStatus = "in-progress"
	ActionCompleted  ActionStatus = "completed"
)

// ParseActionStatus parses a development action status.
func ParseActionStatus(s string) (ActionStatus, error) {
	switch st := ActionStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ActionNotStarted, ActionInProgress, ActionCompleted:
		return st, nil
	case "":
		return ActionNotStarted, nil
	default:
		return "", fmt.Errorf("%w: action status %q", ErrUnknownValue, s)
	}
}

// Individual is a tracked person in the roster.
type Individual struct {
	ID        string    `json:"id" firestore:"id"`
	Name      string    `json:"name" firestore:"name" validate:"required"`
	Email     string    `json:"email" firestore:"email" validate:"required,email"`
	Role      Role      `json:"role" firestore:"role" validate:"required,oneof=contributor leader director admin"`
	LeaderID  string    `json:"leader_id,omitempty" firestore:"leader_id"`
	Segment   string    `json:"segment,omitempty" firestore:"segment"`
	Axis      string    `json:"axis,omitempty" firestore:"axis"`
	Area      string    `json:"area,omitempty" firestore:"area"`
	Position  string    `json:"position,omitempty" firestore:"position"`
	Tracked   bool      `json:"tracked" firestore:"tracked"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updated_at"`
}

// ManagesRoster reports whether the individual's role makes them a ranked leader.
func (i Individual) ManagesRoster() bool {
	return i.Role == RoleLeader || i.Role == RoleDirector
}

// Interaction is a dated event belonging to one individual.
type Interaction struct {
	ID           string          `json:"id" firestore:"id" validate:"required"`
	IndividualID string          `json:"individual_id" firestore:"individual_id" validate:"required"`
	Type         InteractionType `json:"type" firestore:"type" validate:"required,oneof=periodic-1on1 ad-hoc-feedback segment-review risk-index other"`
	Date         time.Time       `json:"date" firestore:"date"`
	Notes        string          `json:"notes,omitempty" firestore:"notes"`
	RiskScore    *float64        `json:"risk_score,omitempty" firestore:"risk_score" validate:"omitempty,gte=0"`
	NextDate     *time.Time      `json:"next_date,omitempty" firestore:"next_date"`
	CreatedAt    time.Time       `json:"created_at" firestore:"created_at"`
}

// DevelopmentAction is one item of an individual development plan (PDI).
type DevelopmentAction struct {
	ID           string       `json:"id" firestore:"id" validate:"required"`
	IndividualID string       `json:"individual_id" firestore:"individual_id" validate:"required"`
	Description  string       `json:"description" firestore:"description" validate:"required"`
	StartDate    time.Time    `json:"start_date" firestore:"start_date"`
	EndDate      time.Time    `json:"end_date" firestore:"end_date"`
	Status       ActionStatus `json:"status" firestore:"status" validate:"required,oneof=not-started in-progress completed"`
	CreatedAt    time.Time    `json:"created_at" firestore:"created_at"`
}

// ValidDate reports whether a stored date can be used in calendar math.
// Zero dates come from absent or malformed document fields.
func ValidDate(t time.Time) bool {
	return !t.IsZero() && t.Year() > 1
}

// History is everything recorded for one individual.
type History struct {
	Interactions []Interaction
	Actions      []DevelopmentAction
}
