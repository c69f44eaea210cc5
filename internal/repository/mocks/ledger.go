package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/offspring2k5/neveralone/internal/domain"
)

// LedgerRepository 是 repository.LedgerRepository 的 Mock 实现。
type LedgerRepository struct {
	mock.Mock
}

func (m *LedgerRepository) Save(ctx context.Context, entry *domain.PointLedgerEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}
