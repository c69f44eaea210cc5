// Package tasks 定义异步任务类型和负载的序列化。
package tasks

import (
	"encoding/json"

	"github.com/offspring2k5/neveralone/internal/domain"
)

// 任务类型常量
const (
	TypePointLedger = "points:persist_ledger" // 积分流水落库
	TypeSweepCodes  = "session:sweep_codes"   // 清理悬空分享码索引（周期任务）
)

// PointLedgerPayload 是积分流水任务的负载。
type PointLedgerPayload struct {
	Entry domain.PointLedgerEntry
}

// NewPointLedgerTask 序列化一条流水为任务负载。
func NewPointLedgerTask(entry domain.PointLedgerEntry) ([]byte, error) {
	return json.Marshal(PointLedgerPayload{Entry: entry})
}

// SweepCodesPayload 是分享码清理任务的负载（目前为空，保留扩展位）。
type SweepCodesPayload struct{}

// NewSweepCodesTask 序列化分享码清理任务负载。
func NewSweepCodesTask() ([]byte, error) {
	return json.Marshal(SweepCodesPayload{})
}
