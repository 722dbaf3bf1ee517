package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Hello-Vince/crm-system/pkg/event"
)

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	events []*event.Envelope
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, env *event.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, env)
	return nil
}

func newTestService(t *testing.T) (*CompanyService, *MemoryCompanyRepository, *Index, *capturePublisher) {
	t.Helper()
	repo := NewMemoryCompanyRepository()
	index := NewIndex()
	pub := &capturePublisher{}
	svc := NewCompanyService(repo, index, pub, nil)
	return svc, repo, index, pub
}

func TestCompanyService_Create(t *testing.T) {
	svc, repo, index, pub := newTestService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, &CreateCompanyRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if root.ID == "" || root.Name != "Acme" || root.ParentID != "" {
		t.Errorf("created company = %+v", root)
	}

	child, err := svc.Create(ctx, &CreateCompanyRequest{Name: "West", ParentID: root.ID})
	if err != nil {
		t.Fatalf("Create(child) error = %v", err)
	}

	stored, err := repo.GetByID(ctx, child.ID)
	if err != nil || stored == nil {
		t.Fatalf("child not persisted: %v", err)
	}
	if stored.ParentID != root.ID {
		t.Errorf("stored parent = %q, want %q", stored.ParentID, root.ID)
	}

	if got := index.Ancestors(child.ID); len(got) != 1 || got[0] != root.ID {
		t.Errorf("index ancestors = %v", got)
	}

	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	env := pub.events[1]
	if pub.topics[1] != event.TopicCompanyCreated {
		t.Errorf("topic = %q", pub.topics[1])
	}
	if env.EventType != event.TopicCompanyCreated {
		t.Errorf("event_type = %q", env.EventType)
	}
	if env.CompanyID != child.ID || env.PartitionKey != child.ID {
		t.Errorf("envelope company/partition = %q/%q", env.CompanyID, env.PartitionKey)
	}
	if got, _ := env.PayloadString("parent_id"); got != root.ID {
		t.Errorf("payload parent_id = %q", got)
	}
}

func TestCompanyService_CreateValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, &CreateCompanyRequest{}); !errors.Is(err, ErrCompanyNameRequired) {
		t.Errorf("Create(no name) error = %v", err)
	}
	if _, err := svc.Create(ctx, &CreateCompanyRequest{Name: "X", ParentID: "ghost"}); !errors.Is(err, ErrParentNotFound) {
		t.Errorf("Create(unknown parent) error = %v", err)
	}
}

func TestCompanyService_CreateSurvivesPublishFailure(t *testing.T) {
	svc, repo, _, pub := newTestService(t)
	pub.err = errors.New("brokers unreachable")
	ctx := context.Background()

	company, err := svc.Create(ctx, &CreateCompanyRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("Create() error = %v; the write already committed", err)
	}
	stored, _ := repo.GetByID(ctx, company.ID)
	if stored == nil {
		t.Error("company must be persisted even when publish fails")
	}
}

func TestCompanyService_SetParentCycleRejected(t *testing.T) {
	svc, repo, index, _ := newTestService(t)
	ctx := context.Background()

	acme, _ := svc.Create(ctx, &CreateCompanyRequest{Name: "Acme"})
	west, _ := svc.Create(ctx, &CreateCompanyRequest{Name: "West", ParentID: acme.ID})

	err := svc.SetParent(ctx, acme.ID, west.ID)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("SetParent(root under descendant) error = %v, want cycle", err)
	}

	// Neither the store nor the index may have changed.
	stored, _ := repo.GetByID(ctx, acme.ID)
	if stored.ParentID != "" {
		t.Errorf("stored parent = %q after rejected reparent", stored.ParentID)
	}
	if got := index.Ancestors(acme.ID); len(got) != 0 {
		t.Errorf("index ancestors = %v after rejected reparent", got)
	}
}

func TestCompanyService_SetParent(t *testing.T) {
	svc, repo, index, _ := newTestService(t)
	ctx := context.Background()

	acme, _ := svc.Create(ctx, &CreateCompanyRequest{Name: "Acme"})
	global, _ := svc.Create(ctx, &CreateCompanyRequest{Name: "GlobalTech"})

	if err := svc.SetParent(ctx, global.ID, acme.ID); err != nil {
		t.Fatalf("SetParent() error = %v", err)
	}
	stored, _ := repo.GetByID(ctx, global.ID)
	if stored.ParentID != acme.ID {
		t.Errorf("stored parent = %q", stored.ParentID)
	}
	if got := index.Ancestors(global.ID); len(got) != 1 || got[0] != acme.ID {
		t.Errorf("index ancestors = %v", got)
	}

	// Detach back to a root.
	if err := svc.SetParent(ctx, global.ID, ""); err != nil {
		t.Fatalf("SetParent(detach) error = %v", err)
	}
	if got := index.Ancestors(global.ID); len(got) != 0 {
		t.Errorf("index ancestors = %v after detach", got)
	}
}

func TestCompanyService_LoadIndex(t *testing.T) {
	repo := NewMemoryCompanyRepository()
	ctx := context.Background()
	_ = repo.Create(ctx, &Company{ID: "acme", Name: "Acme"})
	_ = repo.Create(ctx, &Company{ID: "west", Name: "West", ParentID: "acme"})

	index := NewIndex()
	svc := NewCompanyService(repo, index, &capturePublisher{}, nil)
	if err := svc.LoadIndex(ctx); err != nil {
		t.Fatalf("LoadIndex() error = %v", err)
	}
	if got := index.Ancestors("west"); len(got) != 1 || got[0] != "acme" {
		t.Errorf("ancestors after load = %v", got)
	}
}

func TestCompanyService_ListVisible(t *testing.T) {
	svc, _, index, _ := newTestService(t)
	ctx := context.Background()

	acme, _ := svc.Create(ctx, &CreateCompanyRequest{Name: "Acme"})
	west, _ := svc.Create(ctx, &CreateCompanyRequest{Name: "West", ParentID: acme.ID})
	_, _ = svc.Create(ctx, &CreateCompanyRequest{Name: "GlobalTech"})

	resolver := NewResolver(index)

	got, err := svc.ListVisible(ctx, resolver, Principal{UserID: "u", Role: RoleUser, CompanyID: west.ID})
	if err != nil {
		t.Fatalf("ListVisible() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("visible companies = %d, want 2 (west + acme)", len(got))
	}

	all, err := svc.ListVisible(ctx, resolver, Principal{UserID: "a", Role: RoleSystemAdmin})
	if err != nil {
		t.Fatalf("ListVisible(admin) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("system admin sees %d companies, want 3", len(all))
	}

	none, err := svc.ListVisible(ctx, resolver, Principal{UserID: "n", Role: RoleUser})
	if err != nil {
		t.Fatalf("ListVisible(no company) error = %v", err)
	}
	if len(none) != 0 {
		t.Errorf("principal without company sees %d companies, want 0", len(none))
	}
}
