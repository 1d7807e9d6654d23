// internal/app/features/relationships/types.go
package relationships

import (
	"github.com/dalemusser/coachhub/internal/domain/models"
)

// createRequest is the body of POST /relationships.
type createRequest struct {
	ClientEmail string `json:"client_email" validate:"required,email,max=254"`
}

// respondRequest is the body of POST /relationships/{id}/respond.
type respondRequest struct {
	Status string `json:"status" validate:"required,oneof=active declined"`
}

// deleteRequest is the optional body of DELETE /relationships/{id}.
// Longer reasons are truncated after sanitizing.
type deleteRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// permissionsRule validates the PUT /relationships/{id}/permissions body,
// a map of capability name to granted flag.
const permissionsRule = "required,min=1,dive,keys,oneof=view_entries view_insights view_goals,endkeys"

// capabilitiesResponse is returned by GET /relationships/{id}/capabilities.
type capabilitiesResponse struct {
	RelationshipID string              `json:"relationship_id"`
	Status         string              `json:"status"`
	Capabilities   []models.Capability `json:"capabilities"`
}
