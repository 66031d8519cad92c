package mirror

import (
	"strconv"
	"strings"

	"github.com/johnwards/hubsync/internal/domain"
)

// NoStagesLabel fills stage_label for a pipeline without stages.
const NoStagesLabel = "Sin stages"

// UnnamedOwner fills fullName for an owner without a name.
const UnnamedOwner = "Sin nombre"

// EntityRows turns objects into rows keyed by property name. Empty values
// become NULL. Ticket properties whose name contains "time" and whose value
// is all digits are epoch milliseconds and are stored as seconds.
func EntityRows(objectType string, objs []*domain.Object) []domain.Row {
	rows := make([]domain.Row, 0, len(objs))
	for _, o := range objs {
		row := make(domain.Row, len(o.Properties))
		for k, v := range o.Properties {
			switch {
			case v == "":
				row[k] = nil
			case objectType == domain.ObjectTickets && strings.Contains(k, "time") && digits(v):
				row[k] = millisToSeconds(v)
			default:
				row[k] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func millisToSeconds(v string) any {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return v
	}
	return float64(ms) / 1000
}

// OwnerRows flattens owners, one row each.
func OwnerRows(owners []domain.Owner) []domain.Row {
	rows := make([]domain.Row, 0, len(owners))
	for _, o := range owners {
		full := o.FullName()
		if full == "" {
			full = UnnamedOwner
		}
		rows = append(rows, domain.Row{
			"id":                      o.ID,
			"firstName":               o.FirstName,
			"lastName":                o.LastName,
			"fullName":                full,
			"email":                   o.Email,
			"active":                  !o.Archived,
			"createdAt":               o.CreatedAt,
			"updatedAt":               o.UpdatedAt,
			"archived":                o.Archived,
			"userId":                  o.UserID,
			"userIdIncludingInactive": o.UserIDIncludingInactive,
		})
	}
	return rows
}

// PipelineRows flattens pipelines to one row per stage. A pipeline without
// stages still gets one row, labelled NoStagesLabel.
func PipelineRows(pipelines []domain.Pipeline) []domain.Row {
	var rows []domain.Row
	for _, p := range pipelines {
		base := func() domain.Row {
			return domain.Row{
				"pipeline_id":            p.ID,
				"pipeline_label":         p.Label,
				"pipeline_display_order": p.DisplayOrder,
				"pipeline_created_at":    p.CreatedAt,
				"pipeline_updated_at":    p.UpdatedAt,
			}
		}
		if len(p.Stages) == 0 {
			row := base()
			row["stage_id"] = nil
			row["stage_label"] = NoStagesLabel
			row["stage_display_order"] = nil
			row["stage_created_at"] = nil
			row["stage_updated_at"] = nil
			row["stage_probability"] = 0.0
			rows = append(rows, row)
			continue
		}
		for _, s := range p.Stages {
			row := base()
			row["stage_id"] = s.ID
			row["stage_label"] = s.Label
			row["stage_display_order"] = s.DisplayOrder
			row["stage_created_at"] = s.CreatedAt
			row["stage_updated_at"] = s.UpdatedAt
			row["stage_probability"] = s.Probability()
			rows = append(rows, row)
		}
	}
	return rows
}
