package notify

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func ts(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return &parsed
}

func TestIdentityIsDeterministic(t *testing.T) {
	at := time.UnixMilli(1714400000000)
	first := Identity("proj-1", at)
	second := Identity("proj-1", at)
	if first != second {
		t.Fatalf("identity not stable: %s vs %s", first, second)
	}
	if first != "proj-1_1714400000000" {
		t.Fatalf("unexpected identity: %s", first)
	}
}

func TestDeriveSkipsSelfSender(t *testing.T) {
	projects := []ProjectActivity{{
		ProjectID:           "proj-1",
		ProjectName:         "Website Redesign",
		LastMessageText:     "uploaded the drafts",
		LastMessageSenderID: "viewer-1",
		LastMessageAt:       ts(t, "2024-05-01T10:00:00Z"),
	}}
	if got := Derive(projects, "viewer-1", nil); len(got) != 0 {
		t.Fatalf("expected no notifications for own message, got %d", len(got))
	}
	if got := Derive(projects, "viewer-2", nil); len(got) != 1 {
		t.Fatalf("expected one notification for other viewer, got %d", len(got))
	}
}

func TestDeriveSkipsPendingTimestamp(t *testing.T) {
	projects := []ProjectActivity{{
		ProjectID:           "proj-1",
		LastMessageText:     "just sent",
		LastMessageSenderID: "user-9",
		LastMessageAt:       nil, // server timestamp not settled yet
	}}
	if got := Derive(projects, "viewer-1", nil); len(got) != 0 {
		t.Fatalf("expected pending timestamp to be skipped, got %d notifications", len(got))
	}
}

func TestDeriveSkipsProjectsWithoutMessages(t *testing.T) {
	projects := []ProjectActivity{{ProjectID: "proj-1", ProjectName: "Quiet"}}
	if got := Derive(projects, "viewer-1", nil); len(got) != 0 {
		t.Fatalf("expected no notifications for silent project, got %d", len(got))
	}
}

func TestDeriveHonorsAckSet(t *testing.T) {
	at := ts(t, "2024-05-01T10:00:00Z")
	projects := []ProjectActivity{{
		ProjectID:           "proj-1",
		LastMessageText:     "ping",
		LastMessageSenderID: "user-9",
		LastMessageAt:       at,
	}}

	acked := map[string]struct{}{Identity("proj-1", *at): {}}
	if got := Derive(projects, "viewer-1", acked); len(got) != 0 {
		t.Fatalf("acknowledged notification should not re-derive, got %d", len(got))
	}

	// A newer message carries a new identity and surfaces again.
	later := at.Add(5 * time.Minute)
	projects[0].LastMessageAt = &later
	got := Derive(projects, "viewer-1", acked)
	if len(got) != 1 {
		t.Fatalf("new message should surface despite old ack, got %d", len(got))
	}
	if got[0].ID != Identity("proj-1", later) {
		t.Fatalf("unexpected identity: %s", got[0].ID)
	}
}

func TestDerivePreservesInputOrder(t *testing.T) {
	projects := []ProjectActivity{
		{ProjectID: "proj-b", LastMessageText: "b", LastMessageSenderID: "u", LastMessageAt: ts(t, "2024-05-01T12:00:00Z")},
		{ProjectID: "proj-a", LastMessageText: "a", LastMessageSenderID: "u", LastMessageAt: ts(t, "2024-05-01T09:00:00Z")},
		{ProjectID: "proj-c", LastMessageText: "c", LastMessageSenderID: "u", LastMessageAt: ts(t, "2024-05-01T15:00:00Z")},
	}
	got := Derive(projects, "viewer-1", nil)
	var order []string
	for _, n := range got {
		order = append(order, n.ProjectID)
	}
	if !reflect.DeepEqual(order, []string{"proj-b", "proj-a", "proj-c"}) {
		t.Fatalf("expected input order preserved, got %v", order)
	}
}

func setupAckStore(t *testing.T) *RedisAckStore {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisAckStore(client)
}

func TestRedisAckStoreRoundTrip(t *testing.T) {
	acks := setupAckStore(t)
	ctx := context.Background()
	scope := Scope{OrgID: "org-1", Role: "client", ViewerID: "viewer-1"}

	acked, err := acks.Acked(ctx, scope)
	if err != nil {
		t.Fatalf("Acked on empty scope failed: %v", err)
	}
	if len(acked) != 0 {
		t.Fatalf("expected empty ack set, got %d entries", len(acked))
	}

	if err := acks.Add(ctx, scope, "proj-1_100", "proj-2_200"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	acked, err = acks.Acked(ctx, scope)
	if err != nil {
		t.Fatalf("Acked failed: %v", err)
	}
	if _, ok := acked["proj-1_100"]; !ok {
		t.Error("proj-1_100 missing from ack set")
	}
	if _, ok := acked["proj-2_200"]; !ok {
		t.Error("proj-2_200 missing from ack set")
	}

	// Adding the same id twice is a no-op, not an error.
	if err := acks.Add(ctx, scope, "proj-1_100"); err != nil {
		t.Fatalf("duplicate Add failed: %v", err)
	}
}

func TestAckScopesAreIndependent(t *testing.T) {
	acks := setupAckStore(t)
	ctx := context.Background()

	clientScope := Scope{OrgID: "org-1", Role: "client", ViewerID: "user-1"}
	employeeScope := Scope{OrgID: "org-1", Role: "employee", ViewerID: "user-1"}
	otherOrgScope := Scope{OrgID: "org-2", Role: "client", ViewerID: "user-1"}

	if err := acks.Add(ctx, clientScope, "proj-1_100"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	for name, scope := range map[string]Scope{"employee": employeeScope, "other org": otherOrgScope} {
		acked, err := acks.Acked(ctx, scope)
		if err != nil {
			t.Fatalf("Acked(%s) failed: %v", name, err)
		}
		if len(acked) != 0 {
			t.Errorf("%s scope should be empty, got %d entries", name, len(acked))
		}
	}
}
