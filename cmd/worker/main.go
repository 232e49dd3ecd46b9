package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"planner/internal/config"
	"planner/internal/queue"
	"planner/internal/rewards"
	"planner/internal/store"
)

// Worker consumes mark events from the Redis queue and records reward
// signals for the gamification layer.
func main() {
	cfg := config.Load()
	cfg.SetupLogging()

	if cfg.QueueBackend != "redis" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the in-memory queue is drained by the api itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := store.NewRedis(cfg.RedisAddr)
	defer rc.Close()
	if err := rc.Ping(ctx); err != nil {
		log.Fatal("redis not reachable", "addr", cfg.RedisAddr, "err", err)
	}

	q := queue.NewRedisQueue(rc.Client, cfg.QueueKey)
	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", "err", err)
	}

	log.Info("worker started", "queue", cfg.QueueKey)
	rewards.NewProcessor(rewards.NewRedis(rc.Client, "")).Run(ctx, msgs)
	log.Info("worker stopped")
}
