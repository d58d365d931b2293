package link

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/apperr"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

// -- Mocks --

type mockDirectory struct {
	users map[uuid.UUID]*user.User
}

func newMockDirectory(users ...*user.User) *mockDirectory {
	d := &mockDirectory{users: make(map[uuid.UUID]*user.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *mockDirectory) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (d *mockDirectory) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

type mockRepo struct {
	mu    sync.Mutex
	links map[uuid.UUID]*Link // keyed by client
	dir   *mockDirectory
}

func newMockRepo(dir *mockDirectory) *mockRepo {
	return &mockRepo{links: make(map[uuid.UUID]*Link), dir: dir}
}

func (m *mockRepo) Create(_ context.Context, therapistID, clientID uuid.UUID) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.links[clientID]; ok {
		if l.TherapistID == therapistID {
			return nil, ErrLinkExists
		}
		return nil, ErrClientAlreadyTaken
	}
	l := &Link{ID: uuid.New(), TherapistID: therapistID, ClientID: clientID, CreatedAt: time.Now()}
	m.links[clientID] = l
	return l, nil
}

func (m *mockRepo) GetByClient(_ context.Context, clientID uuid.UUID) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[clientID]
	if !ok {
		return nil, ErrLinkNotFound
	}
	return l, nil
}

func (m *mockRepo) Exists(_ context.Context, therapistID, clientID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[clientID]
	return ok && l.TherapistID == therapistID, nil
}

func (m *mockRepo) ListClients(_ context.Context, therapistID uuid.UUID) ([]user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []user.User
	for clientID, l := range m.links {
		if l.TherapistID == therapistID {
			out = append(out, *m.dir.users[clientID])
		}
	}
	return out, nil
}

type fixture struct {
	svc       *Service
	therapist *user.User
	other     *user.User
	client    *user.User
	owner     *user.User
}

func newFixture() *fixture {
	f := &fixture{
		therapist: &user.User{ID: uuid.New(), Name: "Dr. A", Email: "a@practice.test", Role: access.RoleTherapist},
		other:     &user.User{ID: uuid.New(), Name: "Intern B", Email: "b@practice.test", Role: access.RoleIntern},
		client:    &user.User{ID: uuid.New(), Name: "Client C", Email: "c@mail.test", Role: access.RoleClient},
		owner:     &user.User{ID: uuid.New(), Name: "Owner", Email: "owner@practice.test", Role: access.RoleOwner},
	}
	dir := newMockDirectory(f.therapist, f.other, f.client, f.owner)
	f.svc = NewService(newMockRepo(dir), dir, access.NewGate(), zap.NewNop())
	return f
}

func callerOf(u *user.User) access.Caller {
	return access.Caller{ID: u.ID, Role: u.Role}
}

// -- Tests --

func TestLinkByTherapist(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	l, err := f.svc.Link(ctx, callerOf(f.therapist), uuid.Nil, "C@mail.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.TherapistID != f.therapist.ID || l.ClientID != f.client.ID {
		t.Fatalf("unexpected link %+v", l)
	}

	again, err := f.svc.Link(ctx, callerOf(f.therapist), uuid.Nil, "c@mail.test")
	if err != nil {
		t.Fatalf("relinking same pair: %v", err)
	}
	if again.ID != l.ID {
		t.Error("relinking should return the existing link")
	}

	linked, err := f.svc.IsLinked(ctx, f.client.ID, f.therapist.ID)
	if err != nil || !linked {
		t.Errorf("IsLinked reversed = %v, %v", linked, err)
	}
}

func TestLinkSecondTherapistConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Link(ctx, callerOf(f.therapist), uuid.Nil, f.client.Email); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.Link(ctx, callerOf(f.other), uuid.Nil, f.client.Email)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

// racingRepo hides the first GetByClient result, as when a concurrent Link
// inserts between the service's check and its own insert.
type racingRepo struct {
	*mockRepo
	hidden bool
}

func (r *racingRepo) GetByClient(ctx context.Context, clientID uuid.UUID) (*Link, error) {
	if !r.hidden {
		r.hidden = true
		return nil, ErrLinkNotFound
	}
	return r.mockRepo.GetByClient(ctx, clientID)
}

func TestLinkConcurrentInsert(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	dir := newMockDirectory(f.therapist, f.other, f.client)

	t.Run("same pair returns the existing link", func(t *testing.T) {
		repo := &racingRepo{mockRepo: newMockRepo(dir)}
		winner, _ := repo.Create(ctx, f.therapist.ID, f.client.ID)
		svc := NewService(repo, dir, access.NewGate(), zap.NewNop())

		l, err := svc.Link(ctx, callerOf(f.therapist), uuid.Nil, f.client.Email)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if l.ID != winner.ID {
			t.Errorf("got link %s, want %s", l.ID, winner.ID)
		}
	})

	t.Run("other therapist still conflicts", func(t *testing.T) {
		repo := &racingRepo{mockRepo: newMockRepo(dir)}
		if _, err := repo.Create(ctx, f.other.ID, f.client.ID); err != nil {
			t.Fatal(err)
		}
		svc := NewService(repo, dir, access.NewGate(), zap.NewNop())

		_, err := svc.Link(ctx, callerOf(f.therapist), uuid.Nil, f.client.Email)
		if !errors.Is(err, ErrClientAlreadyTaken) {
			t.Fatalf("expected client already taken, got %v", err)
		}
	})

	t.Run("parallel relinks all succeed", func(t *testing.T) {
		svc := NewService(newMockRepo(dir), dir, access.NewGate(), zap.NewNop())
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Link(ctx, callerOf(f.therapist), uuid.Nil, f.client.Email)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("relink: %v", err)
			}
		}
	})
}

func TestLinkByOwner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Link(ctx, callerOf(f.owner), uuid.Nil, f.client.Email); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error without therapist, got %v", err)
	}
	if _, err := f.svc.Link(ctx, callerOf(f.owner), f.client.ID, f.client.Email); !errors.Is(err, ErrTherapistNotFound) {
		t.Errorf("expected therapist not found for a client id, got %v", err)
	}

	l, err := f.svc.Link(ctx, callerOf(f.owner), f.other.ID, f.client.Email)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.TherapistID != f.other.ID {
		t.Errorf("linked to %s", l.TherapistID)
	}

	th, err := f.svc.TherapistOf(ctx, f.client.ID)
	if err != nil || th.ID != f.other.ID {
		t.Errorf("TherapistOf = %v, %v", th, err)
	}
}

func TestLinkRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Link(ctx, callerOf(f.client), f.therapist.ID, f.client.Email); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("client linking: expected forbidden, got %v", err)
	}
	if _, err := f.svc.Link(ctx, callerOf(f.therapist), f.other.ID, f.client.Email); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("therapist linking for someone else: expected forbidden, got %v", err)
	}
	if _, err := f.svc.Link(ctx, callerOf(f.therapist), uuid.Nil, "nobody@mail.test"); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("unknown email: expected client not found, got %v", err)
	}
	if _, err := f.svc.Link(ctx, callerOf(f.therapist), uuid.Nil, f.owner.Email); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("non-client email: expected client not found, got %v", err)
	}
}

func TestListClients(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if _, err := f.svc.Link(ctx, callerOf(f.therapist), uuid.Nil, f.client.Email); err != nil {
		t.Fatal(err)
	}

	clients, err := f.svc.ListClients(ctx, callerOf(f.therapist))
	if err != nil {
		t.Fatal(err)
	}
	if len(clients) != 1 || clients[0].ID != f.client.ID {
		t.Errorf("clients = %+v", clients)
	}

	if _, err := f.svc.ListClients(ctx, callerOf(f.owner)); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("owner listing clients: expected forbidden, got %v", err)
	}
}
