package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/offspring2k5/neveralone/internal/repository"
	"github.com/offspring2k5/neveralone/internal/tasks"
)

// WorkerServer 封装 Asynq Worker Server 的启动和关闭逻辑。
type WorkerServer struct {
	server      *asynq.Server
	scheduler   *asynq.Scheduler
	log         *logrus.Entry
	ledgerRepo  repository.LedgerRepository
	sessionRepo repository.SessionRepository
}

// NewWorkerServer 创建 WorkerServer 实例，包含任务消费端和周期调度器。
func NewWorkerServer(redisOpt asynq.RedisClientOpt, ledgerRepo repository.LedgerRepository, sessionRepo repository.SessionRepository, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID := ""
				if rw := task.ResultWriter(); rw != nil {
					taskID = rw.TaskID()
				}
				retryCount, _ := asynq.GetRetryCount(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_id":   taskID,
					"task_type": task.Type(),
					"retries":   retryCount,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	scheduler := asynq.NewScheduler(redisOpt, nil)

	return &WorkerServer{
		server:      server,
		scheduler:   scheduler,
		log:         logEntry,
		ledgerRepo:  ledgerRepo,
		sessionRepo: sessionRepo,
	}
}

// Start 运行 Worker Server 和周期调度器。
// 应该在单独的 goroutine 中调用。
func (ws *WorkerServer) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypePointLedger, NewPointLedgerHandler(ws.ledgerRepo).ProcessTask)
	mux.HandleFunc(tasks.TypeSweepCodes, NewSweepCodesHandler(ws.sessionRepo).ProcessTask)

	sweepPayload, err := tasks.NewSweepCodesTask()
	if err != nil {
		ws.log.Fatalf("Could not build sweep task payload: %v", err)
	}
	if _, err := ws.scheduler.Register("@every 1h",
		asynq.NewTask(tasks.TypeSweepCodes, sweepPayload),
		asynq.Queue("low")); err != nil {
		ws.log.Fatalf("Could not register sweep schedule: %v", err)
	}
	go func() {
		if err := ws.scheduler.Run(); err != nil {
			ws.log.Errorf("Scheduler stopped: %v", err)
		}
	}()

	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(mux); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		}
		ws.log.Info("Worker server stopped.")
	}
}

// Shutdown 优雅地关闭 Worker Server 和调度器。
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.scheduler.Shutdown()
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
