package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Repository used by the memory store driver and by
// tests.
type Memory struct {
	mu        sync.RWMutex
	hospitals map[uuid.UUID]*Hospital
	doctors   map[uuid.UUID]*Doctor
}

func NewMemory() *Memory {
	return &Memory{
		hospitals: make(map[uuid.UUID]*Hospital),
		doctors:   make(map[uuid.UUID]*Doctor),
	}
}

func (m *Memory) AddHospital(h Hospital) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hospitals[h.ID] = &h
}

func (m *Memory) AddDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Specializations = append([]string(nil), d.Specializations...)
	sort.Strings(d.Specializations)
	m.doctors[d.ID] = &d
}

func (m *Memory) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoctor(d), nil
}

func (m *Memory) GetHospital(_ context.Context, id uuid.UUID) (*Hospital, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hospitals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *Memory) ListHospitalDoctors(_ context.Context, hospitalID uuid.UUID) ([]*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.hospitals[hospitalID]; !ok {
		return nil, ErrNotFound
	}
	out := []*Doctor{}
	for _, d := range m.doctors {
		if d.HospitalID == hospitalID {
			out = append(out, copyDoctor(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func copyDoctor(d *Doctor) *Doctor {
	cp := *d
	cp.Specializations = append([]string{}, d.Specializations...)
	return &cp
}
