package implementation

import (
	"context"

	"assistant-proxy-be/internal/model"
	"assistant-proxy-be/internal/repository/contract"
	"assistant-proxy-be/internal/repository/scope"
	"assistant-proxy-be/internal/repository/specification"

	"gorm.io/gorm"
)

const defaultTurnLogLimit = 50

type assistantTurnLogRepositoryImpl struct {
	db *gorm.DB
}

func NewAssistantTurnLogRepository(db *gorm.DB) contract.AssistantTurnLogRepository {
	return &assistantTurnLogRepositoryImpl{db: db}
}

func (r *assistantTurnLogRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *assistantTurnLogRepositoryImpl) Create(ctx context.Context, entry *model.AssistantTurnLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// FindByCorrelationId returns the newest turns first.
func (r *assistantTurnLogRepositoryImpl) FindByCorrelationId(ctx context.Context, correlationId string, limit int) ([]model.AssistantTurnLog, error) {
	if limit <= 0 {
		limit = defaultTurnLogLimit
	}
	var logs []model.AssistantTurnLog
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByCorrelationId{CorrelationId: correlationId},
		gormScope(scope.OrderByCreatedDesc),
		specification.Pagination{Limit: limit},
	)
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// gormScope adapts a plain gorm scope to a Specification.
type gormScope func(*gorm.DB) *gorm.DB

func (s gormScope) Apply(db *gorm.DB) *gorm.DB {
	return s(db)
}
