package events

import (
	"context"
	"time"

	"assistant-proxy-be/internal/pkg/logger"
	pkgEvents "assistant-proxy-be/pkg/events"
)

// EventPublisher is the transport a Publisher writes to (NATS in production).
type EventPublisher interface {
	Publish(ctx context.Context, event pkgEvents.Event) error
}

// Publisher abstracts event publishing for assistant operations
type Publisher interface {
	PublishConversationLaunched(ctx context.Context, correlationId string, stepCount int)
	PublishTurnCompleted(ctx context.Context, correlationId string, services []string, stepCount int, durationMs int64)
	PublishTurnRejected(ctx context.Context, correlationId, action string, status int, transport bool)
	PublishDocumentReferenced(ctx context.Context, correlationId, documentId string)
	PublishTranscriptSaved(ctx context.Context, correlationId string)
	PublishTranscriptFailed(ctx context.Context, correlationId string, status int)
	Enabled() bool
}

// NatsPublisher implements Publisher. A nil transport turns every call into a no-op.
type NatsPublisher struct {
	publisher EventPublisher
	logger    logger.ILogger
}

func NewNatsPublisher(publisher EventPublisher, logger logger.ILogger) *NatsPublisher {
	return &NatsPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

func (p *NatsPublisher) Enabled() bool {
	return p != nil && p.publisher != nil
}

func (p *NatsPublisher) PublishConversationLaunched(ctx context.Context, correlationId string, stepCount int) {
	p.publish(ctx, pkgEvents.TypeConversationLaunched, map[string]interface{}{
		"correlation_id": correlationId,
		"step_count":     stepCount,
	})
}

func (p *NatsPublisher) PublishTurnCompleted(ctx context.Context, correlationId string, services []string, stepCount int, durationMs int64) {
	p.publish(ctx, pkgEvents.TypeTurnCompleted, map[string]interface{}{
		"correlation_id":    correlationId,
		"selected_services": services,
		"step_count":        stepCount,
		"duration_ms":       durationMs,
	})
}

func (p *NatsPublisher) PublishTurnRejected(ctx context.Context, correlationId, action string, status int, transport bool) {
	p.publish(ctx, pkgEvents.TypeTurnRejected, map[string]interface{}{
		"correlation_id":  correlationId,
		"action":          action,
		"upstream_status": status,
		"transport":       transport,
	})
}

func (p *NatsPublisher) PublishDocumentReferenced(ctx context.Context, correlationId, documentId string) {
	p.publish(ctx, pkgEvents.TypeDocumentReferenced, map[string]interface{}{
		"correlation_id": correlationId,
		"document_id":    documentId,
		"entity_type":    "document",
		"entity_id":      documentId,
	})
}

func (p *NatsPublisher) PublishTranscriptSaved(ctx context.Context, correlationId string) {
	p.publish(ctx, pkgEvents.TypeTranscriptSaved, map[string]interface{}{
		"correlation_id": correlationId,
	})
}

func (p *NatsPublisher) PublishTranscriptFailed(ctx context.Context, correlationId string, status int) {
	p.publish(ctx, pkgEvents.TypeTranscriptFailed, map[string]interface{}{
		"correlation_id":  correlationId,
		"upstream_status": status,
	})
}

func (p *NatsPublisher) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if !p.Enabled() {
		return
	}

	evt := pkgEvents.BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}

	if err := p.publisher.Publish(ctx, evt); err != nil {
		p.logger.Error("ASSISTANT", "Failed to publish "+eventType+" event", map[string]interface{}{"error": err.Error()})
	}
}
