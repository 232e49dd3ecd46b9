// Package rewards is the gamification side of mark events: it turns an
// attended class into a reward signal and tracks the latest streak. How
// much a signal is worth is decided downstream.
package rewards

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"planner/internal/ledger"
	"planner/internal/queue"
)

// Notice is the queued form of a mark event together with the ledger's
// streak at the time of the mark.
type Notice struct {
	ledger.MarkEvent
	Streak int `json:"streak"`
}

// Recorder persists reward signals. RecordSignal must ignore an event ID
// it has already seen and report false in that case.
type Recorder interface {
	RecordSignal(ctx context.Context, n Notice) (bool, error)
	SetStreak(ctx context.Context, streak int) error
}

// Processor consumes attendance.marked messages.
type Processor struct {
	rec Recorder
}

// NewProcessor creates a processor writing to rec.
func NewProcessor(rec Recorder) *Processor {
	return &Processor{rec: rec}
}

// Handle processes one message. Messages of other types are ignored.
func (p *Processor) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeAttendanceMarked {
		return nil
	}
	var n Notice
	if err := msg.Decode(&n); err != nil {
		return err
	}
	if err := p.rec.SetStreak(ctx, n.Streak); err != nil {
		return err
	}
	if !n.Attended {
		return nil
	}
	fresh, err := p.rec.RecordSignal(ctx, n)
	if err != nil {
		return err
	}
	if fresh {
		log.Info("reward signal", "event", n.ID, "course", n.CourseCode, "date", n.Date, "streak", n.Streak)
	}
	return nil
}

// Run drains msgs until the channel closes. Failures are logged and the
// message is dropped.
func (p *Processor) Run(ctx context.Context, msgs <-chan queue.Message) {
	for msg := range msgs {
		if err := p.Handle(ctx, msg); err != nil {
			log.Error("reward processing failed", "type", msg.Type, "err", err)
		}
	}
}

// Memory is an in-process Recorder.
type Memory struct {
	mu      sync.Mutex
	seen    map[string]bool
	signals map[string]int
	streak  int
}

// NewMemory creates an empty in-process recorder.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]bool), signals: make(map[string]int)}
}

func (m *Memory) RecordSignal(_ context.Context, n Notice) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[n.ID] {
		return false, nil
	}
	m.seen[n.ID] = true
	m.signals[n.Date]++
	return true, nil
}

func (m *Memory) SetStreak(_ context.Context, streak int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streak = streak
	return nil
}

// Signals returns the number of signals recorded for a date.
func (m *Memory) Signals(date string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signals[date]
}

// Streak returns the last streak seen.
func (m *Memory) Streak() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streak
}

// Redis stores signals in a per-day hash keyed by course.
type Redis struct {
	client  *redis.Client
	prefix  string
	seenTTL time.Duration
}

// NewRedis creates a recorder using keys under prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "planner:rewards"
	}
	return &Redis{client: client, prefix: prefix, seenTTL: 7 * 24 * time.Hour}
}

func (r *Redis) RecordSignal(ctx context.Context, n Notice) (bool, error) {
	fresh, err := r.client.SetNX(ctx, r.prefix+":seen:"+n.ID, 1, r.seenTTL).Result()
	if err != nil {
		return false, errors.Wrap(err, "dedupe reward signal")
	}
	if !fresh {
		return false, nil
	}
	if err := r.client.HIncrBy(ctx, r.prefix+":signals:"+n.Date, n.CourseCode, 1).Err(); err != nil {
		return false, errors.Wrap(err, "record reward signal")
	}
	return true, nil
}

func (r *Redis) SetStreak(ctx context.Context, streak int) error {
	return errors.Wrap(r.client.Set(ctx, r.prefix+":streak", streak, 0).Err(), "store streak")
}
