package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/Hello-Vince/crm-system/internal/identity"
	"github.com/Hello-Vince/crm-system/pkg/event"
	"github.com/Hello-Vince/crm-system/pkg/kafkax"
)

func customerCreatedMessage(t *testing.T, payload map[string]interface{}) *kafkax.Message {
	t.Helper()
	env := event.New(event.TopicCustomerCreated, payload)
	env.CompanyID = "company-1"
	raw, err := env.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return &kafkax.Message{
		Envelope: env,
		Topic:    event.TopicCustomerCreated,
		Raw:      raw,
	}
}

func TestHandler_FansOutNotification(t *testing.T) {
	store := NewMemoryStore()
	h := NewHandler(store, nil)

	msg := customerCreatedMessage(t, map[string]interface{}{
		"customer_id":            "cust-1",
		"name":                   "Jane Doe",
		"visible_to_company_ids": []interface{}{"company-1", "company-2"},
	})
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	recent, _ := store.ListRecent(context.Background(), 10)
	if len(recent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(recent))
	}
	n := recent[0]
	if n.RelatedEntityID != "cust-1" {
		t.Errorf("related_entity_id = %q", n.RelatedEntityID)
	}
	if len(n.VisibleToCompanyIDs) != 2 {
		t.Errorf("visible_to = %v", n.VisibleToCompanyIDs)
	}
	if n.Title != "New customer" || n.Message != "Jane Doe was added" {
		t.Errorf("rendered = %q / %q", n.Title, n.Message)
	}
}

func TestHandler_FallsBackToOriginCompany(t *testing.T) {
	store := NewMemoryStore()
	h := NewHandler(store, nil)

	msg := customerCreatedMessage(t, map[string]interface{}{
		"customer_id": "cust-2",
	})
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	recent, _ := store.ListRecent(context.Background(), 10)
	if len(recent) != 1 || len(recent[0].VisibleToCompanyIDs) != 1 || recent[0].VisibleToCompanyIDs[0] != "company-1" {
		t.Errorf("notifications = %+v", recent)
	}
}

func TestHandler_Classification(t *testing.T) {
	tests := []struct {
		name    string
		msg     func(t *testing.T) *kafkax.Message
		wantErr kafkax.FailureClass
	}{
		{
			name: "missing customer_id is permanent",
			msg: func(t *testing.T) *kafkax.Message {
				return customerCreatedMessage(t, map[string]interface{}{"name": "x"})
			},
			wantErr: kafkax.FailurePermanent,
		},
		{
			name: "no envelope is permanent",
			msg: func(t *testing.T) *kafkax.Message {
				return &kafkax.Message{Topic: "t"}
			},
			wantErr: kafkax.FailurePermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(NewMemoryStore(), nil)
			err := h.Handle(context.Background(), tt.msg(t))
			if err == nil {
				t.Fatal("Handle() should fail")
			}
			if got := kafkax.Classify(err); got != tt.wantErr {
				t.Errorf("classified %s, want %s", got, tt.wantErr)
			}
		})
	}
}

func TestHandler_StoreFailureIsRetryable(t *testing.T) {
	store := NewMemoryStore()
	store.FailWith(errors.New("redis: connection refused"))
	h := NewHandler(store, nil)

	err := h.Handle(context.Background(), customerCreatedMessage(t, map[string]interface{}{
		"customer_id": "cust-3",
	}))
	if err == nil {
		t.Fatal("Handle() should fail when store is down")
	}
	if got := kafkax.Classify(err); got != kafkax.FailureRetryable {
		t.Errorf("classified %s, want RETRYABLE", got)
	}
}

func TestService_ListVisible(t *testing.T) {
	ix := identity.NewIndex()
	ix.Rebuild([]*identity.Company{
		{ID: "acme"},
		{ID: "west", ParentID: "acme"},
		{ID: "globaltech"},
	})
	resolver := identity.NewResolver(ix)

	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Save(ctx, &Notification{ID: "n1", VisibleToCompanyIDs: []string{"west"}})
	_ = store.Save(ctx, &Notification{ID: "n2", VisibleToCompanyIDs: []string{"globaltech"}})
	_ = store.Save(ctx, &Notification{ID: "n3", VisibleToCompanyIDs: []string{"acme", "west"}})

	svc := NewService(store, resolver)

	t.Run("user at west sees west-visible records", func(t *testing.T) {
		got, err := svc.ListVisible(ctx, identity.Principal{UserID: "u", Role: identity.RoleUser, CompanyID: "west"}, 10)
		if err != nil {
			t.Fatalf("ListVisible() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("visible = %d, want 2", len(got))
		}
		// Newest first.
		if got[0].ID != "n3" || got[1].ID != "n1" {
			t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
		}
	})

	t.Run("system admin sees all", func(t *testing.T) {
		got, err := svc.ListVisible(ctx, identity.Principal{UserID: "a", Role: identity.RoleSystemAdmin}, 10)
		if err != nil {
			t.Fatalf("ListVisible() error = %v", err)
		}
		if len(got) != 3 {
			t.Errorf("visible = %d, want 3", len(got))
		}
	})

	t.Run("principal without company sees nothing", func(t *testing.T) {
		got, err := svc.ListVisible(ctx, identity.Principal{UserID: "n", Role: identity.RoleUser}, 10)
		if err != nil {
			t.Fatalf("ListVisible() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("visible = %d, want 0", len(got))
		}
	})
}
