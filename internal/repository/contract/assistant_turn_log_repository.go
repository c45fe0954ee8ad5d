package contract

import (
	"context"

	"assistant-proxy-be/internal/model"
)

type AssistantTurnLogRepository interface {
	Create(ctx context.Context, entry *model.AssistantTurnLog) error
	FindByCorrelationId(ctx context.Context, correlationId string, limit int) ([]model.AssistantTurnLog, error)
}
