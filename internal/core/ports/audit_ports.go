package ports

import (
	"context"

	"github.com/vncsmyrnk/ideavote/internal/core/domain"
)

type AuditService interface {
	Audit(ctx context.Context) (*domain.AuditReport, error)
}
