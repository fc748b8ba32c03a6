package repository

import (
	"context"

	"github.com/leadflow/campaign-gateway/internal/model"
	"github.com/leadflow/campaign-gateway/pkg/pg"
)

type AuditLogRepository struct {
	*pg.DB
}

func NewAuditLogRepository(db *pg.DB) *AuditLogRepository {
	return &AuditLogRepository{
		db,
	}
}

func (r *AuditLogRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	return r.Write(ctx).WithContext(ctx).Create(toAuditLogEntity(entry)).Error
}
