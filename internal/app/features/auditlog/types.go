// internal/app/features/auditlog/types.go
package auditlog

import (
	"time"

	"github.com/dalemusser/coachhub/internal/app/store/audit"
)

const pageSize = 50

// listQuery holds the GET /audit query parameters.
type listQuery struct {
	EntityType string `validate:"omitempty,oneof=coaching_relationship coach_invitation user"`
	EntityID   string `validate:"omitempty,max=64"`
	Operation  string `validate:"omitempty,max=64"`
	Severity   string `validate:"omitempty,oneof=info warning critical emergency"`
	ActorID    string `validate:"omitempty,mongodb"`
	Start      string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	End        string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit      int    `validate:"omitempty,min=1,max=1000"`
	Page       int    `validate:"omitempty,min=1,max=100000"`
}

// alertsQuery holds the GET /audit/alerts query parameters.
type alertsQuery struct {
	Hours int `validate:"omitempty,min=1,max=2160"`
	Limit int `validate:"omitempty,min=1,max=1000"`
}

// listResponse is the GET /audit body.
type listResponse struct {
	Entries []audit.Entry `json:"entries"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	Total   int64         `json:"total"`
}

// alertsResponse is the GET /audit/alerts body.
type alertsResponse struct {
	Hours   int           `json:"hours"`
	Since   time.Time     `json:"since"`
	Entries []audit.Entry `json:"entries"`
}
