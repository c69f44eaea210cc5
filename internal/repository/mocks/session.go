// Package mocks 提供 repository 接口的 testify Mock 实现，仅测试使用。
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/offspring2k5/neveralone/internal/domain"
)

// SessionRepository 是 repository.SessionRepository 的 Mock 实现。
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) SaveRoom(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *SessionRepository) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	args := m.Called(ctx, roomID)
	if room, ok := args.Get(0).(*domain.Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) ResolveCode(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *SessionRepository) SweepDanglingCodes(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
