package specification

import "gorm.io/gorm"

// ByCorrelationId filters turn logs of one widget user
type ByCorrelationId struct {
	CorrelationId string
}

func (s ByCorrelationId) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("correlation_id = ?", s.CorrelationId)
}

// Pagination
type Pagination struct {
	Limit  int
	Offset int
}

func (s Pagination) Apply(db *gorm.DB) *gorm.DB {
	return db.Limit(s.Limit).Offset(s.Offset)
}
