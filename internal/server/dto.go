package server

import (
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/lifecycle"
)

// Request payloads

type LoginRequest struct {
	Secret string `json:"secret"`
	Actor  string `json:"actor,omitempty"`
}

type CreateVolunteerRequest struct {
	Handle string `json:"handle"`
	Name   string `json:"name,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"probation,active,lead,inactive"`
}

type SetCommitmentsRequest struct {
	Commitments int `json:"commitments" minimum:"0"`
}

type CreateEventRequest struct {
	Title   string   `json:"title"`
	Date    *string  `json:"date,omitempty" format:"date"`
	Format  string   `json:"format" enum:"service_day,workshop,fundraiser,social,meeting"`
	Venue   string   `json:"venue,omitempty"`
	Details string   `json:"details,omitempty"`
	Tasks   []string `json:"tasks,omitempty"`
}

type UpdateEventRequest struct {
	Title   *string `json:"title,omitempty"`
	Date    *string `json:"date,omitempty" format:"date"`
	Venue   *string `json:"venue,omitempty"`
	Details *string `json:"details,omitempty"`
}

type SetEventStatusRequest struct {
	Status string `json:"status" enum:"planning,published,completed,cancelled"`
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type AssignRequest struct {
	VolunteerID int64  `json:"volunteer_id"`
	AssignedBy  *int64 `json:"assigned_by,omitempty"`
}

type ResetRequest struct {
	EndDate string `json:"end_date" format:"date"`
}

// Response payloads

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type EventResponse struct {
	Event domain.Event  `json:"event"`
	Tasks []domain.Task `json:"tasks,omitempty"`
}

type EventStatusResponse struct {
	Event   domain.Event           `json:"event"`
	Cascade *engine.CascadeSummary `json:"cascade,omitempty"`
}

type ProbationResponse struct {
	Volunteer  domain.Volunteer     `json:"volunteer"`
	Evaluation lifecycle.Evaluation `json:"evaluation"`
}
