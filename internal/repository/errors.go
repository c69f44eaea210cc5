package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到（或已随 TTL 过期）
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示写入违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
)

// 特定资源的错误（基于通用错误创建，errors.Is 对两者都成立）
var (
	ErrUserNotFound = ErrNotFound
	ErrRoomNotFound = ErrNotFound
	// ErrCodeNotFound 表示分享码索引不存在；分享码和房间主记录可能各自独立过期
	ErrCodeNotFound = ErrNotFound
)
