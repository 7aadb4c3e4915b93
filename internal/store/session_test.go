package store

import (
	"context"
	"testing"
	"time"
)

func TestSessionCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	ss, us := NewSessionStore(db), NewUserStore(db)
	ctx := context.Background()
	u := mustUser(t, us, "alice@example.com", false)

	sess, err := ss.Create(ctx, u.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(sess.Token) != 64 { // 32 bytes hex-encoded
		t.Errorf("token length = %d, want 64", len(sess.Token))
	}

	got, err := ss.GetByToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got == nil || got.UserID != u.ID {
		t.Fatalf("session = %+v, want user %d", got, u.ID)
	}
}

func TestSessionExpired(t *testing.T) {
	db := setupTestDB(t)
	ss, us := NewSessionStore(db), NewUserStore(db)
	ctx := context.Background()
	u := mustUser(t, us, "alice@example.com", false)

	sess, err := ss.Create(ctx, u.ID, -time.Minute)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	got, err := ss.GetByToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got != nil {
		t.Error("expected nil for expired session")
	}

	n, err := ss.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

func TestSessionDeleteByToken(t *testing.T) {
	db := setupTestDB(t)
	ss, us := NewSessionStore(db), NewUserStore(db)
	ctx := context.Background()
	u := mustUser(t, us, "alice@example.com", false)

	sess, _ := ss.Create(ctx, u.ID, time.Hour)
	if err := ss.DeleteByToken(ctx, sess.Token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := ss.GetByToken(ctx, sess.Token)
	if got != nil {
		t.Error("expected session to be gone")
	}
}
