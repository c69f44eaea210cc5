package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/offspring2k5/neveralone/internal/domain"
)

// GormLedgerRepository 是 LedgerRepository 接口的 GORM 实现。
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository 创建 GormLedgerRepository 实例。
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	if db == nil {
		panic("database connection cannot be nil for GormLedgerRepository")
	}
	return &GormLedgerRepository{db: db}
}

// Save 追加一条积分流水。流水只插入不更新。
func (r *GormLedgerRepository) Save(ctx context.Context, entry *domain.PointLedgerEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("gorm: save ledger entry (user %d, delta %d): %w", entry.UserID, entry.Delta, err)
	}
	return nil
}
