package export

import (
	"strconv"
	"time"

	"github.com/ninahq/nina/internal/domain/model"
)

// Record kinds in flattened rows.
const (
	RecordInteraction = "interaction"
	RecordAction      = "action"
	RecordNone        = "none"
)

var header = []string{
	"individual_id", "name", "email", "record", "id", "type", "date",
	"end_date", "status", "notes", "risk_score", "next_date",
}

// section is everything exported for one individual.
type section struct {
	individual   model.Individual
	interactions []model.Interaction
	actions      []model.DevelopmentAction
}

// rows flattens a section: one row per interaction, then one per action.
// An individual without history still gets a placeholder row.
func (s section) rows() [][]string {
	ind := s.individual
	base := func(record string) []string {
		return []string{ind.ID, ind.Name, ind.Email, record}
	}
	var out [][]string
	for _, it := range s.interactions {
		r := base(RecordInteraction)
		r = append(r, it.ID, string(it.Type), formatDate(it.Date), "", "", it.Notes,
			formatScore(it.RiskScore), formatDatePtr(it.NextDate))
		out = append(out, r)
	}
	for _, a := range s.actions {
		r := base(RecordAction)
		r = append(r, a.ID, string(model.DevelopmentPlan), formatDate(a.StartDate), formatDate(a.EndDate),
			string(a.Status), a.Description, "", "")
		out = append(out, r)
	}
	if len(out) == 0 {
		r := base(RecordNone)
		r = append(r, "", "", "", "", "", "", "", "")
		out = append(out, r)
	}
	return out
}

func formatDate(t time.Time) string {
	if !model.ValidDate(t) {
		return ""
	}
	return t.Format("2006-01-02")
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatDate(*t)
}

func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
