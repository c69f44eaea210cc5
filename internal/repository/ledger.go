package repository

import (
	"context"

	"github.com/offspring2k5/neveralone/internal/domain"
)

// LedgerRepository 定义了积分流水的持久化操作，由后台 worker 调用。
type LedgerRepository interface {
	// Save 追加一条积分变动流水。
	Save(ctx context.Context, entry *domain.PointLedgerEntry) error
}
