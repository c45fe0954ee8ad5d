package dto

import (
	"time"

	"assistant-proxy-be/pkg/upstream"
)

type InteractRequest struct {
	UserId           string   `json:"user_id" validate:"required,max=128"`
	Action           string   `json:"action" validate:"required,oneof=launch text"`
	Message          string   `json:"message" validate:"required_if=Action text,max=4000"`
	SelectedServices []string `json:"selected_services" validate:"max=50,dive,max=120"`
}

type InteractResponse struct {
	UserId string           `json:"user_id"`
	Traces []upstream.Trace `json:"traces"`
}

type SaveTranscriptRequest struct {
	UserId string `json:"user_id" validate:"required,max=128"`
}

type SaveTranscriptResponse struct {
	UserId string `json:"user_id"`
	Saved  bool   `json:"saved"`
}

type CreateSessionResponse struct {
	UserId    string     `json:"user_id"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type AssistantHealthResponse struct {
	InteractConfigured   bool   `json:"interact_configured"`
	TranscriptConfigured bool   `json:"transcript_configured"`
	VersionId            string `json:"version_id"`
	AuditEnabled         bool   `json:"audit_enabled"`
	EventsEnabled        bool   `json:"events_enabled"`
}

type AssistantTurnLogResponse struct {
	Id               string    `json:"id"`
	Action           string    `json:"action"`
	SelectedServices []string  `json:"selected_services"`
	UpstreamStatus   int       `json:"upstream_status"`
	Outcome          string    `json:"outcome"`
	StepCount        int       `json:"step_count"`
	DocumentIds      []string  `json:"document_ids"`
	DurationMs       int64     `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}
