package server

import (
	"reqline/internal/domain"
)

type CreateSolutionRequest struct {
	ID          string  `json:"id"`
	OrgID       string  `json:"org_id"`
	Name        string  `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type SolutionResponse struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func solutionResponse(s domain.Solution) SolutionResponse {
	return SolutionResponse{
		ID:          s.ID,
		OrgID:       s.OrgID,
		Name:        s.Name,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
	}
}

func mapSolutions(items []domain.Solution) []SolutionResponse {
	out := make([]SolutionResponse, 0, len(items))
	for _, s := range items {
		out = append(out, solutionResponse(s))
	}
	return out
}

type ProposeRequirementRequest struct {
	Type  string         `json:"type"`
	Props map[string]any `json:"props,omitempty"`
}

type UpdateRequirementRequest struct {
	Props map[string]any `json:"props"`
}

type RequirementResponse struct {
	ID         string         `json:"id"`
	Version    int            `json:"version"`
	SolutionID string         `json:"solution_id"`
	Type       string         `json:"type"`
	ReqID      string         `json:"req_id,omitempty"`
	State      string         `json:"state"`
	Props      map[string]any `json:"props,omitempty"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  string         `json:"created_at"`
	ModifiedBy string         `json:"modified_by"`
	ModifiedAt string         `json:"modified_at"`
}

func requirementResponse(r domain.Requirement) RequirementResponse {
	return RequirementResponse{
		ID:         r.ID,
		Version:    r.Version,
		SolutionID: r.SolutionID,
		Type:       r.ReqType,
		ReqID:      r.ReqID,
		State:      r.State,
		Props:      r.Props,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
		ModifiedBy: r.ModifiedBy,
		ModifiedAt: r.ModifiedAt,
	}
}

func mapRequirements(items []domain.Requirement) []RequirementResponse {
	out := make([]RequirementResponse, 0, len(items))
	for _, r := range items {
		out = append(out, requirementResponse(r))
	}
	return out
}

type EndorseRequest struct {
	Comments string `json:"comments,omitempty"`
}

type EndorsementResponse struct {
	ID                 string               `json:"id"`
	RequirementID      string               `json:"requirement_id"`
	RequirementVersion int                  `json:"requirement_version"`
	Category           string               `json:"category"`
	Status             string               `json:"status"`
	EndorsedBy         *string              `json:"endorsed_by,omitempty"`
	Comments           string               `json:"comments,omitempty"`
	CheckDetails       *domain.CheckDetails `json:"check_details,omitempty"`
	CreatedAt          string               `json:"created_at"`
	UpdatedAt          string               `json:"updated_at"`
}

func endorsementResponse(e domain.Endorsement) EndorsementResponse {
	return EndorsementResponse{
		ID:                 e.ID,
		RequirementID:      e.RequirementID,
		RequirementVersion: e.RequirementVersion,
		Category:           e.Category,
		Status:             e.Status,
		EndorsedBy:         e.EndorsedBy,
		Comments:           e.Comments,
		CheckDetails:       e.CheckDetails,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

func mapEndorsements(items []domain.Endorsement) []EndorsementResponse {
	out := make([]EndorsementResponse, 0, len(items))
	for _, e := range items {
		out = append(out, endorsementResponse(e))
	}
	return out
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	SolutionID string `json:"solution_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			SolutionID: e.SolutionID,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return out
}

type CreateAPIKeyRequest struct {
	AppUserID string `json:"app_user_id"`
	Name      string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	AppUserID string `json:"app_user_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at"`
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
