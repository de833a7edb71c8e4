package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "finvisor/internal/adapters/clickhouse"
	"finvisor/internal/adapters/kafka"
	pgclient "finvisor/internal/adapters/postgres"
	redisclient "finvisor/internal/adapters/redis"
	"finvisor/internal/api"
	aiusagesvc "finvisor/internal/services/ai_usage"
	"finvisor/internal/workers"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// Lifecycle manages graceful startup and shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
	// consumerWait bounds the wait for a running ingestion job to finish
	consumerWait time.Duration
	workerWait   time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 2 * time.Minute,
		consumerWait:    90 * time.Second,
		workerWait:      2 * time.Minute,
	}
}

// ShutdownTargets lists what Shutdown stops; nil entries are skipped
type ShutdownTargets struct {
	WG            *sync.WaitGroup
	HTTPServer    *api.Server
	Scheduler     *workers.Scheduler
	KafkaProducer *kafka.Producer
	AIUsage       *aiusagesvc.Service
	PG            *pgclient.Client
	CH            *chclient.Client
	Redis         *redisclient.Client
	ErrorTracker  errors.Tracker
}

// Shutdown performs coordinated cleanup of all components in the correct order:
// 1. No new requests accepted
// 2. Workers and consumers finish their current job
// 3. Producer closes after consumers, which publish results
// 4. Usage rows are flushed to ClickHouse
// 5. Logs and errors flushed
// 6. Database connections last (other components may need them)
func (l *Lifecycle) Shutdown(t ShutdownTargets, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	log.Info("[1/8] Stopping HTTP server...")
	if t.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 15*time.Second)
		if err := t.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	log.Info("[2/8] Stopping workers...")
	if t.Scheduler != nil {
		if err := t.Scheduler.Stop(l.workerWait); err != nil {
			log.Warnw("Worker shutdown incomplete", "error", err)
		}
	}

	log.Info("[3/8] Waiting for consumer goroutines...")
	if t.WG != nil {
		l.waitForGoroutines(t.WG, l.consumerWait, log)
	}

	log.Info("[4/8] Closing Kafka producer...")
	if t.KafkaProducer != nil {
		if err := t.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	log.Info("[5/8] Flushing usage logs...")
	if t.AIUsage != nil {
		usageCtx, usageCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := t.AIUsage.Stop(usageCtx); err != nil {
			log.Errorw("Usage flush failed", "error", err)
		}
		usageCancel()
	}

	log.Info("[6/8] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)

	log.Info("[7/8] Syncing logs...")
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	} else {
		log.Info("✓ Logs synced")
	}

	log.Info("[8/8] Closing database connections...")
	l.closeDatabases(t.PG, t.CH, t.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var errs errors.MultiError

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, "clickhouse"))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			errs.Add(errors.Wrap(err, "redis"))
		}
	}

	if err := errs.ToError(); err != nil {
		log.Errorw("Database close errors", "error", err)
	} else {
		log.Info("✓ Database connections closed")
	}
}
