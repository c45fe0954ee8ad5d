package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"assistant-proxy-be/internal/dto"
	"assistant-proxy-be/internal/model"
	"assistant-proxy-be/internal/pkg/logger"
	"assistant-proxy-be/internal/pkg/serverutils"
	"assistant-proxy-be/internal/repository/contract"
	assistantEvents "assistant-proxy-be/pkg/assistant/events"
	"assistant-proxy-be/pkg/docref"
	"assistant-proxy-be/pkg/upstream"

	"gorm.io/datatypes"
)

const (
	ActionTranscript = "transcript"

	OutcomeOK              = "ok"
	OutcomeRejected        = "rejected"
	OutcomeTransportError  = "transport_error"
	OutcomeNotConfigured   = "configuration_error"
	OutcomeUnexpectedError = "internal_error"
)

// ErrAuditDisabled is returned by ListTurns when no database is attached.
var ErrAuditDisabled = errors.New("turn audit log is disabled")

// AssistantUpstream is the dialog runtime and transcript API as seen by the service.
type AssistantUpstream interface {
	InteractConfigured() bool
	TranscriptConfigured() bool
	VersionID() string
	Launch(ctx context.Context, userID string) ([]upstream.Trace, error)
	SendText(ctx context.Context, userID, payload string) ([]upstream.Trace, error)
	SaveTranscript(ctx context.Context, sessionID string) error
}

type IAssistantService interface {
	Interact(ctx context.Context, request *dto.InteractRequest) (*dto.InteractResponse, error)
	SaveTranscript(ctx context.Context, request *dto.SaveTranscriptRequest) (*dto.SaveTranscriptResponse, error)
	ListTurns(ctx context.Context, userId string, limit int) ([]*dto.AssistantTurnLogResponse, error)
	Health(ctx context.Context) *dto.AssistantHealthResponse
}

type assistantService struct {
	upstream  AssistantUpstream
	turnLogs  contract.AssistantTurnLogRepository
	publisher assistantEvents.Publisher
	logger    logger.ILogger
}

// NewAssistantService wires the proxy. turnLogs and publisher may be nil.
func NewAssistantService(
	upstream AssistantUpstream,
	turnLogs contract.AssistantTurnLogRepository,
	publisher assistantEvents.Publisher,
	logger logger.ILogger,
) IAssistantService {
	return &assistantService{
		upstream:  upstream,
		turnLogs:  turnLogs,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *assistantService) Interact(ctx context.Context, request *dto.InteractRequest) (*dto.InteractResponse, error) {
	if err := serverutils.ValidateRequest(request); err != nil {
		return nil, err
	}
	if strings.TrimSpace(request.UserId) == "" {
		return nil, &serverutils.ValidationError{Fields: []string{"user_id is required"}}
	}
	if request.Action == upstream.ActionText && strings.TrimSpace(request.Message) == "" {
		return nil, &serverutils.ValidationError{Fields: []string{"message is required"}}
	}

	start := time.Now()
	var (
		traces []upstream.Trace
		err    error
	)
	switch request.Action {
	case upstream.ActionLaunch:
		traces, err = s.upstream.Launch(ctx, request.UserId)
	default:
		payload := upstream.ComposeMessage(request.Message, request.SelectedServices)
		traces, err = s.upstream.SendText(ctx, request.UserId, payload)
	}
	duration := time.Since(start)

	if err != nil {
		status, outcome := classify(err)
		s.logger.Warn("ASSISTANT", "Interact rejected", map[string]interface{}{
			"user_id":         request.UserId,
			"action":          request.Action,
			"upstream_status": status,
			"outcome":         outcome,
			"error":           err.Error(),
		})
		s.recordTurn(ctx, request.UserId, request.Action, request.SelectedServices, status, outcome, 0, nil, duration)
		if s.publisher != nil {
			s.publisher.PublishTurnRejected(ctx, request.UserId, request.Action, status, outcome == OutcomeTransportError)
		}
		return nil, err
	}

	traces = docref.Normalize(traces)
	documentIds := referencedDocuments(traces)

	s.logger.Info("ASSISTANT", "Interact completed", map[string]interface{}{
		"user_id":     request.UserId,
		"action":      request.Action,
		"trace_count": len(traces),
		"duration_ms": duration.Milliseconds(),
	})
	s.recordTurn(ctx, request.UserId, request.Action, request.SelectedServices, 200, OutcomeOK, len(traces), documentIds, duration)

	if s.publisher != nil {
		if request.Action == upstream.ActionLaunch {
			s.publisher.PublishConversationLaunched(ctx, request.UserId, len(traces))
		} else {
			s.publisher.PublishTurnCompleted(ctx, request.UserId, request.SelectedServices, len(traces), duration.Milliseconds())
		}
		for _, id := range documentIds {
			s.publisher.PublishDocumentReferenced(ctx, request.UserId, id)
		}
	}

	return &dto.InteractResponse{
		UserId: request.UserId,
		Traces: traces,
	}, nil
}

func (s *assistantService) SaveTranscript(ctx context.Context, request *dto.SaveTranscriptRequest) (*dto.SaveTranscriptResponse, error) {
	if err := serverutils.ValidateRequest(request); err != nil {
		return nil, err
	}
	if strings.TrimSpace(request.UserId) == "" {
		return nil, &serverutils.ValidationError{Fields: []string{"user_id is required"}}
	}

	start := time.Now()
	err := s.upstream.SaveTranscript(ctx, request.UserId)
	duration := time.Since(start)

	if err != nil {
		status, outcome := classify(err)
		s.logger.Warn("ASSISTANT", "Transcript save failed", map[string]interface{}{
			"user_id":         request.UserId,
			"upstream_status": status,
			"outcome":         outcome,
			"error":           err.Error(),
		})
		s.recordTurn(ctx, request.UserId, ActionTranscript, nil, status, outcome, 0, nil, duration)
		if s.publisher != nil {
			s.publisher.PublishTranscriptFailed(ctx, request.UserId, status)
		}
		return nil, err
	}

	s.logger.Info("ASSISTANT", "Transcript saved", map[string]interface{}{
		"user_id":     request.UserId,
		"duration_ms": duration.Milliseconds(),
	})
	s.recordTurn(ctx, request.UserId, ActionTranscript, nil, 200, OutcomeOK, 0, nil, duration)
	if s.publisher != nil {
		s.publisher.PublishTranscriptSaved(ctx, request.UserId)
	}

	return &dto.SaveTranscriptResponse{
		UserId: request.UserId,
		Saved:  true,
	}, nil
}

func (s *assistantService) ListTurns(ctx context.Context, userId string, limit int) ([]*dto.AssistantTurnLogResponse, error) {
	if s.turnLogs == nil {
		return nil, ErrAuditDisabled
	}
	if strings.TrimSpace(userId) == "" {
		return nil, &serverutils.ValidationError{Fields: []string{"user_id is required"}}
	}

	logs, err := s.turnLogs.FindByCorrelationId(ctx, userId, limit)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.AssistantTurnLogResponse, 0, len(logs))
	for _, l := range logs {
		item := &dto.AssistantTurnLogResponse{
			Id:               l.Id.String(),
			Action:           l.Action,
			SelectedServices: []string{},
			UpstreamStatus:   l.UpstreamStatus,
			Outcome:          l.Outcome,
			StepCount:        l.StepCount,
			DocumentIds:      []string{},
			DurationMs:       l.DurationMs,
			CreatedAt:        l.CreatedAt,
		}
		if len(l.SelectedServices) > 0 {
			_ = json.Unmarshal(l.SelectedServices, &item.SelectedServices)
		}
		if len(l.DocumentIds) > 0 {
			_ = json.Unmarshal(l.DocumentIds, &item.DocumentIds)
		}
		res = append(res, item)
	}
	return res, nil
}

func (s *assistantService) Health(ctx context.Context) *dto.AssistantHealthResponse {
	return &dto.AssistantHealthResponse{
		InteractConfigured:   s.upstream.InteractConfigured(),
		TranscriptConfigured: s.upstream.TranscriptConfigured(),
		VersionId:            s.upstream.VersionID(),
		AuditEnabled:         s.turnLogs != nil,
		EventsEnabled:        s.publisher != nil && s.publisher.Enabled(),
	}
}

func (s *assistantService) recordTurn(
	ctx context.Context,
	userId, action string,
	services []string,
	status int,
	outcome string,
	stepCount int,
	documentIds []string,
	duration time.Duration,
) {
	if s.turnLogs == nil {
		return
	}

	entry := &model.AssistantTurnLog{
		CorrelationId:    userId,
		Action:           action,
		SelectedServices: toJSON(services),
		UpstreamStatus:   status,
		Outcome:          outcome,
		StepCount:        stepCount,
		DocumentIds:      toJSON(documentIds),
		DurationMs:       duration.Milliseconds(),
	}
	// audit rows must not outlive a cancelled request nor fail it
	if err := s.turnLogs.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("ASSISTANT", "Failed to write turn log", map[string]interface{}{
			"user_id": userId,
			"error":   err.Error(),
		})
	}
}

func classify(err error) (int, string) {
	if rej, ok := upstream.AsRejection(err); ok {
		return rej.Status, OutcomeRejected
	}
	if upstream.IsTransport(err) {
		return 0, OutcomeTransportError
	}
	if errors.Is(err, upstream.ErrNotConfigured) {
		return 0, OutcomeNotConfigured
	}
	return 0, OutcomeUnexpectedError
}

func referencedDocuments(traces []upstream.Trace) []string {
	var ids []string
	for _, tr := range traces {
		msg, ok := tr.Message()
		if !ok {
			continue
		}
		if _, id, found := docref.Split(msg); found {
			ids = append(ids, id)
		}
	}
	return ids
}

func toJSON(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
