package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type dayKey struct {
	doctorID uuid.UUID
	date     civil.Date
}

// keyedMutex hands out one mutex per (doctor, date). Days never contend with
// each other.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[dayKey]*sync.Mutex
}

func (k *keyedMutex) lock(key dayKey) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}

type memoryRepo struct {
	days keyedMutex

	// mu guards the maps themselves. Values are only read or written while
	// holding the day lock of the key they belong to.
	mu           sync.RWMutex
	availability map[dayKey]*Availability
	tokens       map[uuid.UUID]*Token
	byDay        map[dayKey][]uuid.UUID

	now func() time.Time
}

// NewMemoryRepository returns a Repository kept entirely in process memory.
func NewMemoryRepository() Repository {
	return &memoryRepo{
		days:         keyedMutex{locks: make(map[dayKey]*sync.Mutex)},
		availability: make(map[dayKey]*Availability),
		tokens:       make(map[uuid.UUID]*Token),
		byDay:        make(map[dayKey][]uuid.UUID),
		now:          time.Now,
	}
}

func (r *memoryRepo) row(key dayKey) *Availability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availability[key]
}

// ensureRow must be called with the day lock held.
func (r *memoryRepo) ensureRow(key dayKey) *Availability {
	if a := r.row(key); a != nil {
		return a
	}
	now := r.now()
	a := &Availability{DoctorID: key.doctorID, Date: key.date, Configured: true, CreatedAt: now, UpdatedAt: now}
	r.mu.Lock()
	r.availability[key] = a
	r.mu.Unlock()
	return a
}

func copyAvailability(a *Availability) *Availability {
	cp := *a
	if a.PauseReason != nil {
		s := *a.PauseReason
		cp.PauseReason = &s
	}
	return &cp
}

func (r *memoryRepo) GetAvailability(_ context.Context, doctorID uuid.UUID, date civil.Date) (*Availability, error) {
	key := dayKey{doctorID, date}
	defer r.days.lock(key)()
	a := r.row(key)
	if a == nil {
		return nil, &NotFoundError{Resource: "availability", ID: doctorID.String() + "/" + date.String()}
	}
	return copyAvailability(a), nil
}

func (r *memoryRepo) UpsertCapacity(_ context.Context, doctorID uuid.UUID, date civil.Date, cfg CapacityConfig) (*Availability, error) {
	key := dayKey{doctorID, date}
	defer r.days.lock(key)()
	a := r.ensureRow(key)
	a.TotalTokenCount = cfg.TotalTokenCount
	a.IsStopped = cfg.IsStopped
	a.IsLeave = cfg.IsLeave
	a.UpdatedAt = r.now()
	return copyAvailability(a), nil
}

func (r *memoryRepo) SetPause(_ context.Context, doctorID uuid.UUID, date civil.Date, paused bool, reason *string) (*Availability, error) {
	key := dayKey{doctorID, date}
	defer r.days.lock(key)()
	a := r.ensureRow(key)
	a.IsPaused = paused
	a.PauseReason = reason
	a.UpdatedAt = r.now()
	return copyAvailability(a), nil
}

func (r *memoryRepo) MarkLeave(_ context.Context, doctorID uuid.UUID, date civil.Date) (*Availability, error) {
	key := dayKey{doctorID, date}
	defer r.days.lock(key)()
	a := r.ensureRow(key)
	a.IsLeave = true
	a.UpdatedAt = r.now()
	return copyAvailability(a), nil
}

func (r *memoryRepo) ClearLeave(_ context.Context, doctorID uuid.UUID, date civil.Date) (bool, error) {
	key := dayKey{doctorID, date}
	defer r.days.lock(key)()
	a := r.row(key)
	if a == nil || !a.IsLeave {
		return false, nil
	}
	a.IsLeave = false
	a.UpdatedAt = r.now()
	return true, nil
}

func (r *memoryRepo) ListLeaveDates(_ context.Context, doctorID uuid.UUID, from, to civil.Date) ([]civil.Date, error) {
	r.mu.RLock()
	var keys []dayKey
	for key := range r.availability {
		if key.doctorID == doctorID && !key.date.Before(from) && !key.date.After(to) {
			keys = append(keys, key)
		}
	}
	r.mu.RUnlock()

	dates := []civil.Date{}
	for _, key := range keys {
		unlock := r.days.lock(key)
		if r.row(key).IsLeave {
			dates = append(dates, key.date)
		}
		unlock()
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (r *memoryRepo) IssueToken(_ context.Context, t *Token) (*Availability, error) {
	key := dayKey{t.DoctorID, t.Date}
	defer r.days.lock(key)()

	a := r.ensureRow(key)
	if reason := capacityReason(a); reason != "" {
		return nil, &CapacityError{DoctorID: t.DoctorID, Date: t.Date, Reason: reason}
	}

	now := r.now()
	a.FilledTokenCount++
	a.UpdatedAt = now
	t.QueueNumber = a.FilledTokenCount
	t.CreatedAt = now
	t.UpdatedAt = now

	r.mu.Lock()
	r.tokens[t.ID] = t.clone()
	r.byDay[key] = append(r.byDay[key], t.ID)
	r.mu.Unlock()

	return copyAvailability(a), nil
}

func (r *memoryRepo) tokenKey(id uuid.UUID) (dayKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[id]
	if !ok {
		return dayKey{}, false
	}
	// DoctorID and Date never change after issuance.
	return dayKey{t.DoctorID, t.Date}, true
}

func (r *memoryRepo) token(id uuid.UUID) *Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokens[id]
}

func (r *memoryRepo) GetToken(_ context.Context, id uuid.UUID) (*Token, error) {
	key, ok := r.tokenKey(id)
	if !ok {
		return nil, &NotFoundError{Resource: "token", ID: id.String()}
	}
	defer r.days.lock(key)()
	return r.token(id).clone(), nil
}

func (r *memoryRepo) UpdateToken(_ context.Context, id uuid.UUID, apply func(t *Token) error) (*Token, error) {
	key, ok := r.tokenKey(id)
	if !ok {
		return nil, &NotFoundError{Resource: "token", ID: id.String()}
	}
	defer r.days.lock(key)()

	stored := r.token(id)
	next := stored.clone()
	if err := apply(next); err != nil {
		return nil, err
	}
	now := r.now()
	if next.Status == StatusCompleted && stored.Status != StatusCompleted {
		a := r.ensureRow(key)
		a.ConsultationsDone++
		a.UpdatedAt = now
	}
	next.UpdatedAt = now

	r.mu.Lock()
	r.tokens[id] = next
	r.mu.Unlock()
	return next.clone(), nil
}

func (r *memoryRepo) ListTokens(_ context.Context, doctorID uuid.UUID, date civil.Date) ([]*Token, error) {
	key := dayKey{doctorID, date}
	defer r.days.lock(key)()

	r.mu.RLock()
	ids := r.byDay[key]
	out := make([]*Token, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.tokens[id].clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].QueueNumber < out[j].QueueNumber })
	return out, nil
}
