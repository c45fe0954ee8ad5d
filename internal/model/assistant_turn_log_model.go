package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AssistantTurnLog is one proxied call to the dialog runtime or transcript API.
type AssistantTurnLog struct {
	Id               uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CorrelationId    string         `gorm:"type:varchar(128);not null;index"`
	Action           string         `gorm:"type:varchar(20);not null"`
	SelectedServices datatypes.JSON `gorm:"type:jsonb"`
	UpstreamStatus   int            `gorm:"not null"`
	Outcome          string         `gorm:"type:varchar(30);not null;index"`
	StepCount        int            `gorm:"not null;default:0"`
	DocumentIds      datatypes.JSON `gorm:"type:jsonb"`
	DurationMs       int64          `gorm:"not null"`
	CreatedAt        time.Time      `gorm:"default:now();not null;index"`
}

func (AssistantTurnLog) TableName() string {
	return "assistant_turn_logs"
}
