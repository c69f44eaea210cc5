package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/offspring2k5/neveralone/internal/repository"
	"github.com/offspring2k5/neveralone/internal/tasks"
)

// PointLedgerHandler 处理积分流水落库任务。
type PointLedgerHandler struct {
	ledgerRepo repository.LedgerRepository
}

// NewPointLedgerHandler 创建 Handler 实例。
func NewPointLedgerHandler(ledgerRepo repository.LedgerRepository) *PointLedgerHandler {
	return &PointLedgerHandler{ledgerRepo: ledgerRepo}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *PointLedgerHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
	})

	var payload tasks.PointLedgerPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal ledger task payload")
		// 坏负载重试也救不回来
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	entry := payload.Entry
	if err := h.ledgerRepo.Save(ctx, &entry); err != nil {
		logCtx.WithError(err).Errorf("Failed to save ledger entry for user %d", entry.UserID)
		return fmt.Errorf("failed to save ledger entry: %w", err)
	}

	logCtx.WithFields(logrus.Fields{"user_id": entry.UserID, "delta": entry.Delta, "reason": entry.Reason}).
		Info("Ledger entry persisted")
	return nil
}

// SweepCodesHandler 处理悬空分享码清理任务：分享码索引与主记录独立
// 过期，主记录先没了索引还在时，扫描并删掉这些指向空处的索引。
type SweepCodesHandler struct {
	sessionRepo repository.SessionRepository
}

// NewSweepCodesHandler 创建 Handler 实例。
func NewSweepCodesHandler(sessionRepo repository.SessionRepository) *SweepCodesHandler {
	return &SweepCodesHandler{sessionRepo: sessionRepo}
}

// ProcessTask 实现 asynq.Handler 接口。
func (h *SweepCodesHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	removed, err := h.sessionRepo.SweepDanglingCodes(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to sweep dangling room codes")
		return fmt.Errorf("failed to sweep dangling codes: %w", err)
	}
	logrus.WithField("removed", removed).Info("Dangling room codes swept")
	return nil
}
