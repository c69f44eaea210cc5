package repository

import (
	"context"

	"github.com/offspring2k5/neveralone/internal/domain"
)

// UserRepository 定义了用户目录的存储和检索操作。
type UserRepository interface {
	// FindByID 根据用户 ID 查找用户；不存在时返回 ErrUserNotFound。
	FindByID(ctx context.Context, id uint) (*domain.User, error)

	// FindByUsername 根据用户名查找用户；不存在时返回 ErrUserNotFound。
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	// Save 保存用户信息。基于 ID 判断是创建还是更新；
	// 违反唯一约束时返回 ErrDuplicateEntry。
	Save(ctx context.Context, user *domain.User) error

	// AdjustPoints 原子地给用户余额加上 delta 并返回新余额。
	// 余额下限为 0：超出下限的负 delta 被钳制，不报错。
	// 用户不存在时返回 ErrUserNotFound。
	AdjustPoints(ctx context.Context, userID uint, delta int) (int, error)
}
