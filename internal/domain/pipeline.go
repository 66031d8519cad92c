package domain

import (
	"strconv"
	"strings"
)

// Pipeline is a deal or ticket pipeline as returned by the CRM pipelines API.
type Pipeline struct {
	ID           string          `json:"id"`
	Label        string          `json:"label"`
	DisplayOrder int             `json:"displayOrder"`
	Stages       []PipelineStage `json:"stages"`
	CreatedAt    string          `json:"createdAt"`
	UpdatedAt    string          `json:"updatedAt"`
}

// PipelineStage is one step of a pipeline. Deal stages carry
// metadata.probability as a decimal string; ticket stages carry ticketState.
type PipelineStage struct {
	ID           string            `json:"id"`
	Label        string            `json:"label"`
	DisplayOrder int               `json:"displayOrder"`
	Metadata     map[string]string `json:"metadata"`
	CreatedAt    string            `json:"createdAt"`
	UpdatedAt    string            `json:"updatedAt"`
}

// Probability is the stage's closing probability, 0 when absent or malformed.
func (s PipelineStage) Probability() float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s.Metadata["probability"]), 64)
	if err != nil {
		return 0
	}
	return f
}

// Owner is a CRM user records can be assigned to.
type Owner struct {
	ID                      string `json:"id"`
	Email                   string `json:"email"`
	FirstName               string `json:"firstName"`
	LastName                string `json:"lastName"`
	UserID                  int    `json:"userId"`
	UserIDIncludingInactive int    `json:"userIdIncludingInactive"`
	Archived                bool   `json:"archived"`
	CreatedAt               string `json:"createdAt"`
	UpdatedAt               string `json:"updatedAt"`
}

// FullName joins first and last name, or returns "" when both are blank.
func (o Owner) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(o.FirstName) + " " + strings.TrimSpace(o.LastName))
}
