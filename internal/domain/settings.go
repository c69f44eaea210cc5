package domain

import "fmt"

// ValidationError 表示 Settings 字段校验失败。
// Field 指出出错的字段，Expected 描述期望的类型/取值。
type ValidationError struct {
	Field    string
	Expected string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: expected %s", e.Field, e.Expected)
}

// Settings 是房间的配置值对象（私密标志、容量、主题、自动开始计时器）。
// 构造时严格校验，构造完成后不可变；反序列化时总是重新构造一个新的 Settings，
// 而不是原地修改（见 RoomFromSnapshot）。
type Settings struct {
	isPrivate      bool
	maxUsers       int
	theme          string
	autoStartTimer bool
}

// NewSettings 校验各字段并构造 Settings。
// maxUsers 必须为正整数，theme 不能为空；任何不合法字段都会立刻返回
// *ValidationError（这是唯一在构造期就失败的实体）。
func NewSettings(isPrivate bool, maxUsers int, theme string, autoStartTimer bool) (Settings, error) {
	if maxUsers <= 0 {
		return Settings{}, &ValidationError{Field: "maxUsers", Expected: "positive integer"}
	}
	if theme == "" {
		return Settings{}, &ValidationError{Field: "theme", Expected: "non-empty string"}
	}
	return Settings{
		isPrivate:      isPrivate,
		maxUsers:       maxUsers,
		theme:          theme,
		autoStartTimer: autoStartTimer,
	}, nil
}

func (s Settings) IsPrivate() bool      { return s.isPrivate }
func (s Settings) MaxUsers() int        { return s.maxUsers }
func (s Settings) Theme() string        { return s.theme }
func (s Settings) AutoStartTimer() bool { return s.autoStartTimer }

// SettingsSnapshot 是 Settings 的持久化形态，字段名保持稳定以兼容旧快照。
type SettingsSnapshot struct {
	IsPrivate      bool   `json:"isPrivate"`
	MaxUsers       int    `json:"maxUsers"`
	Theme          string `json:"theme"`
	AutoStartTimer bool   `json:"autoStartTimer"`
}

// Snapshot 导出可序列化的配置。
func (s Settings) Snapshot() SettingsSnapshot {
	return SettingsSnapshot{
		IsPrivate:      s.isPrivate,
		MaxUsers:       s.maxUsers,
		Theme:          s.theme,
		AutoStartTimer: s.autoStartTimer,
	}
}
