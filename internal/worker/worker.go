package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/config"
	"github.com/nbalawat/api-dev-portal-sub001/internal/service"
	"github.com/nbalawat/api-dev-portal-sub001/internal/tasks"
)

// RunWorkers starts the asynq server and scheduler driving the key lifecycle
// and blocks until ctx is cancelled. A failed task is logged by the server's
// error handler and retried on the next scheduled run; one bad cycle never
// stops the loop.
func RunWorkers(ctx context.Context, cfg *config.Config, lifecycle *service.LifecycleService, logger *zap.Logger) error {
	redisConnOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(
		redisConnOpts,
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"default": 5,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Named("AsynqServerErrorHandler").Error("Asynq task processing failed",
					zap.String("task_type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err),
				)
			}),
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqServer")),
		},
	)

	mux := asynq.NewServeMux()
	handler := tasks.NewLifecycleHandler(lifecycle, logger)
	mux.HandleFunc(tasks.TypeKeyExpire, handler.ProcessExpireTask)
	mux.HandleFunc(tasks.TypeKeyExpiryWarn, handler.ProcessExpiryWarnTask)

	scheduler := asynq.NewScheduler(
		redisConnOpts,
		&asynq.SchedulerOpts{
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqScheduler")),
		},
	)

	expireTask, err := tasks.NewKeyExpireTask()
	if err != nil {
		return fmt.Errorf("scheduler task creation error: %w", err)
	}
	if _, err := scheduler.Register(cfg.Lifecycle.ExpireInterval, expireTask); err != nil {
		return fmt.Errorf("could not register key expiry task: %w", err)
	}

	warnTask, err := tasks.NewExpiryWarnTask()
	if err != nil {
		return fmt.Errorf("scheduler task creation error: %w", err)
	}
	if _, err := scheduler.Register(cfg.Lifecycle.WarnInterval, warnTask); err != nil {
		return fmt.Errorf("could not register expiry warning task: %w", err)
	}

	errChan := make(chan error, 2)

	go func() {
		logger.Info("Starting Asynq Server...")
		if err := srv.Run(mux); err != nil {
			errChan <- fmt.Errorf("asynq server error: %w", err)
		}
	}()

	go func() {
		logger.Info("Starting Asynq Scheduler...")
		if err := scheduler.Run(); err != nil {
			errChan <- fmt.Errorf("asynq scheduler error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down Asynq Scheduler...")
		scheduler.Shutdown()
		logger.Info("Shutting down Asynq Server...")
		srv.Shutdown()
		return nil
	case err := <-errChan:
		scheduler.Shutdown()
		srv.Shutdown()
		return err
	}
}

type asynqLoggerAdapter struct {
	logger *zap.Logger
}

func NewAsynqLoggerAdapter(logger *zap.Logger) *asynqLoggerAdapter {
	return &asynqLoggerAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (l *asynqLoggerAdapter) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
