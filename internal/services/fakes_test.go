package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tbourn/go-community-directory/internal/domain"
	"github.com/tbourn/go-community-directory/internal/repo"
)

// memStore is an in-memory SubmissionStore. Delay is applied to every call
// (honouring ctx) so tests can interleave concurrent writers or force
// timeouts. Err, when set, fails every call.
type memStore struct {
	mu    sync.Mutex
	rows  map[string]domain.Submission
	seq   int
	Delay time.Duration
	Err   error

	// hang makes calls ignore ctx and block until released.
	hang chan struct{}

	updates int
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]domain.Submission{}}
}

func (m *memStore) wait(ctx context.Context) error {
	if m.hang != nil {
		<-m.hang
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.Err
}

func (m *memStore) Insert(ctx context.Context, s *domain.Submission) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		m.seq++
		s.ID = "sub-" + strconv.Itoa(m.seq)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.UpdatedAt = s.CreatedAt
	m.rows[s.ID] = *s
	return nil
}

func (m *memStore) Select(ctx context.Context, f repo.SubmissionFilter) ([]domain.Submission, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Submission{}
	for _, s := range m.rows {
		if f.ID != "" && s.ID != f.ID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.SubmittedBy != "" && s.SubmittedBy != f.SubmittedBy {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []domain.Submission{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) Get(ctx context.Context, id string) (*domain.Submission, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, expect domain.Status, p repo.StatusPatch) (int64, error) {
	if err := m.wait(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.Status != expect {
		return 0, nil
	}
	at := p.ReviewedAt
	s.Status = p.Status
	s.ReviewedAt = &at
	s.ReviewedBy = p.ReviewedBy
	s.ReviewNotes = p.ReviewNotes
	s.UpdatedAt = at
	m.rows[id] = s
	m.updates++
	return 1, nil
}

func (m *memStore) Delete(ctx context.Context, id string) (int64, error) {
	if err := m.wait(ctx); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return 0, nil
	}
	delete(m.rows, id)
	return 1, nil
}

func (m *memStore) Count(ctx context.Context, f repo.SubmissionFilter) (int64, error) {
	f.Limit, f.Offset = 0, 0
	rows, err := m.Select(ctx, f)
	return int64(len(rows)), err
}

func (m *memStore) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.Status]int64{}
	for _, s := range domain.Statuses() {
		out[s] = 0
	}
	for _, s := range m.rows {
		out[s.Status]++
	}
	return out, nil
}

func (m *memStore) status(id string) domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

// recBus records published events.
type recBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recBus) Publish(ev domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *recBus) all() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.events...)
}

// recNotifier records change notifications and can be told to fail.
type recNotifier struct {
	mu     sync.Mutex
	events []domain.Event
	fail   bool
}

func (n *recNotifier) Notify(_ context.Context, ev domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("redis down")
	}
	n.events = append(n.events, ev)
	return nil
}

// staticAuth grants admin to the listed user ids and ownership by map.
type staticAuth struct {
	admins map[string]bool
	owners map[string]string
}

func (a staticAuth) IsAdmin(_ context.Context, c domain.Identity) bool { return a.admins[c.UserID] }

func (a staticAuth) IsOwner(_ context.Context, c domain.Identity, id string) (bool, error) {
	return a.owners[id] == c.UserID && c.UserID != "", nil
}

func intp(v int) *int { return &v }

func freeInput(name string) SubmissionInput {
	return SubmissionInput{Name: name, JoinType: domain.JoinFree, JoinLink: "https://x.com/y"}
}
