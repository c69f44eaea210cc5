package domain

import "time"

// 积分变动原因，写入流水时使用。
const (
	PointReasonTaskComplete  = "task_complete"
	PointReasonTimerComplete = "timer_complete"
	PointReasonEarlyLeave    = "early_leave"
	PointReasonShopPurchase  = "shop_purchase"
	PointReasonCheat         = "cheat_code"
)

// PointLedgerEntry 是一条积分变动流水。余额本身由 User.Points 承载，
// 流水只做事后审计用，由后台 worker 异步落库。
type PointLedgerEntry struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`       // 积分归属用户
	RoomID    string    `gorm:"type:varchar(64);index"` // 触发变动的房间，商店操作为空
	Delta     int       `gorm:"not null"`             // 变动量，可为负
	Reason    string    `gorm:"size:50;not null"`     // 见上面的 PointReason 常量
	AwardedAt time.Time `gorm:"index;not null"`       // 变动发生时间（非落库时间）
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
