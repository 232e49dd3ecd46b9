// Package ledger stores per-day attendance records materialized from a
// weekly schedule and applies attendance marks to them.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"planner/internal/schedule"
	"planner/internal/store"
)

// Store is the durable key-value collaborator the ledger writes through to.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// MarkEvent describes one applied mark.
type MarkEvent struct {
	ID         string    `json:"id"`
	Date       string    `json:"date"`
	SlotID     string    `json:"slotId"`
	CourseCode string    `json:"courseCode"`
	Attended   bool      `json:"attended"`
	At         time.Time `json:"at"`
}

// Listener receives mark events after the change is persisted.
type Listener func(ctx context.Context, evt MarkEvent)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the source of "now".
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithListener registers a mark event listener.
func WithListener(fn Listener) Option {
	return func(l *Ledger) { l.listeners = append(l.listeners, fn) }
}

// Ledger owns the ordered-by-date record collection. Every mutation is
// applied to a copy, persisted, and only then made visible.
type Ledger struct {
	mu        sync.RWMutex
	store     Store
	records   []AttendanceRecord
	listeners []Listener
	now       func() time.Time
}

// Open loads the persisted snapshot (if any) and returns a ready ledger.
func Open(ctx context.Context, st Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{store: st, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}

	raw, err := st.Get(ctx, SnapshotKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return l, nil
	case err != nil:
		return nil, errors.Wrap(err, "load attendance")
	}
	records, err := decodeSnapshot(raw)
	if err != nil {
		return nil, err
	}
	l.records = records
	log.Info("attendance ledger loaded", "records", len(records))
	return l, nil
}

// Today is the ledger clock's current calendar day.
func (l *Ledger) Today() time.Time {
	return schedule.Day(l.now())
}

// EnsureRecordsForTerm inserts a record for every day of the term that has
// scheduled classes and no record yet. Existing records are left untouched,
// so repeated calls are no-ops. Returns the number of records inserted.
func (l *Ledger) EnsureRecordsForTerm(ctx context.Context, term schedule.Term) (int, error) {
	if !term.HasRange() {
		return 0, nil
	}
	start, err := schedule.ParseDate(term.StartDate)
	if err != nil {
		return 0, err
	}
	end, err := schedule.ParseDate(term.EndDate)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.records
	inserted := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		iso := d.Format(schedule.DateLayout)
		if _, ok := find(next, iso); ok {
			continue
		}
		classes := schedule.Materialize(term, d)
		if len(classes) == 0 {
			continue
		}
		next = insert(next, newRecord(iso, classes))
		inserted++
	}
	if inserted == 0 {
		return 0, nil
	}
	if err := l.commit(ctx, next); err != nil {
		return 0, err
	}
	log.Debug("term backfilled", "term", term.Name, "inserted", inserted)
	return inserted, nil
}

// EnsureRecordForDate materializes a single day on demand. The boolean is
// false when the term schedules nothing on that day.
func (l *Ledger) EnsureRecordForDate(ctx context.Context, term schedule.Term, date time.Time) (AttendanceRecord, bool, error) {
	iso := schedule.FormatDate(date)

	l.mu.Lock()
	defer l.mu.Unlock()

	if i, ok := find(l.records, iso); ok {
		return l.records[i].clone(), true, nil
	}
	classes := schedule.Materialize(term, date)
	if len(classes) == 0 {
		return AttendanceRecord{}, false, nil
	}
	rec := newRecord(iso, classes)
	if err := l.commit(ctx, insert(l.records, rec)); err != nil {
		return AttendanceRecord{}, false, err
	}
	return rec.clone(), true, nil
}

// GetRecord is an exact lookup; it never materializes.
func (l *Ledger) GetRecord(date time.Time) (AttendanceRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := find(l.records, schedule.FormatDate(date))
	if !ok {
		return AttendanceRecord{}, false
	}
	return l.records[i].clone(), true
}

// Mark records attendance for one class. A missing record or slot is a
// no-op. Listeners are notified once the change is persisted.
func (l *Ledger) Mark(ctx context.Context, date time.Time, slotID string, attended bool) error {
	iso := schedule.FormatDate(date)

	l.mu.Lock()
	i, ok := find(l.records, iso)
	if !ok {
		l.mu.Unlock()
		return nil
	}
	rec := l.records[i].clone()
	j := -1
	for k := range rec.Classes {
		if rec.Classes[k].SlotID == slotID {
			j = k
			break
		}
	}
	if j < 0 {
		l.mu.Unlock()
		return nil
	}
	rec.Classes[j].Marked = true
	rec.Classes[j].Attended = attended
	rec.recompute()

	next := append([]AttendanceRecord(nil), l.records...)
	next[i] = rec
	if err := l.commit(ctx, next); err != nil {
		l.mu.Unlock()
		return err
	}
	listeners := l.listeners
	l.mu.Unlock()

	evt := MarkEvent{
		ID:         uuid.NewString(),
		Date:       iso,
		SlotID:     slotID,
		CourseCode: rec.Classes[j].CourseCode,
		Attended:   attended,
		At:         l.now().UTC(),
	}
	for _, fn := range listeners {
		fn(ctx, evt)
	}
	return nil
}

// HasUnmarked reports whether the date has a record with an unmarked class.
func (l *Ledger) HasUnmarked(date time.Time) bool {
	rec, ok := l.GetRecord(date)
	return ok && len(rec.Unmarked()) > 0
}

// PendingForToday returns today's unmarked classes.
func (l *Ledger) PendingForToday() []schedule.ClassInstance {
	rec, ok := l.GetRecord(l.Today())
	if !ok {
		return nil
	}
	return rec.Unmarked()
}

// Records returns a copy of the collection ordered by date ascending.
func (l *Ledger) Records() []AttendanceRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]AttendanceRecord, len(l.records))
	for i, r := range l.records {
		out[i] = r.clone()
	}
	return out
}

// commit persists next and swaps it in. Callers hold l.mu.
func (l *Ledger) commit(ctx context.Context, next []AttendanceRecord) error {
	buf, err := encodeSnapshot(next)
	if err != nil {
		return err
	}
	if err := l.store.Put(ctx, SnapshotKey, buf); err != nil {
		return errors.Wrap(err, "persist attendance")
	}
	l.records = next
	return nil
}

func find(records []AttendanceRecord, iso string) (int, bool) {
	i := sort.Search(len(records), func(i int) bool { return records[i].Date >= iso })
	return i, i < len(records) && records[i].Date == iso
}

// insert returns a new slice with rec placed in date order.
func insert(records []AttendanceRecord, rec AttendanceRecord) []AttendanceRecord {
	i, _ := find(records, rec.Date)
	out := make([]AttendanceRecord, 0, len(records)+1)
	out = append(out, records[:i]...)
	out = append(out, rec)
	return append(out, records[i:]...)
}
