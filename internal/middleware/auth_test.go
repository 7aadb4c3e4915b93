package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/savory/internal/auth"
	"github.com/dukerupert/savory/internal/database"
	"github.com/dukerupert/savory/internal/store"
)

func setupAuthMiddlewareDB(t *testing.T) (*store.SessionStore, *store.UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewSessionStore(db), store.NewUserStore(db)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Success {
		t.Error("expected success = false")
	}
	return body.Error
}

func TestRequireAuthNoToken(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)
	handler := RequireAuth(ss, us)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/pantry", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if msg := decodeError(t, rec); msg != "authentication required" {
		t.Errorf("error = %q", msg)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)
	handler := RequireAuth(ss, us)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)
	ctx := context.Background()
	u, err := us.Create(ctx, "alice@example.com", "alice", "correct horse", true)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := ss.Create(ctx, u.ID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var gotAC auth.AuthContext
	handler := RequireAuth(ss, us)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		gotAC = ac
		w.WriteHeader(http.StatusOK)
	}))

	for _, withCookie := range []bool{true, false} {
		req := httptest.NewRequest("GET", "/", nil)
		if withCookie {
			req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
		} else {
			req.Header.Set("Authorization", "Bearer "+sess.Token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("cookie=%v: status = %d, want %d", withCookie, rec.Code, http.StatusOK)
		}
		if gotAC.UserID != u.ID || gotAC.SessionID != sess.ID || !gotAC.IsSuperuser {
			t.Errorf("cookie=%v: AuthContext = %+v", withCookie, gotAC)
		}
	}
}

func TestRequireAuthExpiredSession(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)
	ctx := context.Background()
	u, _ := us.Create(ctx, "bob@example.com", "bob", "correct horse", false)
	sess, _ := ss.Create(ctx, u.ID, -time.Minute)

	handler := RequireAuth(ss, us)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestOptionalAuth(t *testing.T) {
	ss, us := setupAuthMiddlewareDB(t)
	ctx := context.Background()
	u, _ := us.Create(ctx, "carol@example.com", "carol", "correct horse", false)
	sess, _ := ss.Create(ctx, u.ID, time.Hour)

	var gotUser int64 = -1
	handler := OptionalAuth(ss, us)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = auth.UserID(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	if gotUser != 0 {
		t.Errorf("anonymous UserID = %d, want 0", gotUser)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.Token})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if gotUser != u.ID {
		t.Errorf("UserID = %d, want %d", gotUser, u.ID)
	}
}

func TestRequireSuperuser(t *testing.T) {
	ok := RequireSuperuser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("POST", "/", nil).WithContext(
		auth.WithAuth(context.Background(), auth.AuthContext{UserID: 1, IsSuperuser: true}))
	rec := httptest.NewRecorder()
	ok.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("superuser status = %d", rec.Code)
	}

	req = httptest.NewRequest("POST", "/", nil).WithContext(
		auth.WithAuth(context.Background(), auth.AuthContext{UserID: 2}))
	rec = httptest.NewRecorder()
	ok.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("regular user status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
