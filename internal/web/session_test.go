package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newToken(access string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session, err := store.Create(ctx, newToken("tok1"), "user1", "User One")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if session.ID == "" {
		t.Fatal("empty session ID")
	}

	got := store.Get(ctx, session.ID)
	if got == nil || got.UserID != "user1" || got.Token.AccessToken != "tok1" {
		t.Fatalf("Get = %+v", got)
	}

	store.UpdateToken(ctx, session.ID, newToken("tok2"))
	if got := store.Get(ctx, session.ID); got.Token.AccessToken != "tok2" {
		t.Errorf("token not updated, got %q", got.Token.AccessToken)
	}

	store.Delete(ctx, session.ID)
	if store.Get(ctx, session.ID) != nil {
		t.Error("session survived delete")
	}
}

func TestSessionStoreUnknownID(t *testing.T) {
	store := NewSessionStore()
	if got := store.Get(context.Background(), "nope"); got != nil {
		t.Errorf("Get(unknown) = %+v, want nil", got)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session, err := store.Create(ctx, newToken("tok"), "user1", "User One")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	session.CreatedAt = time.Now().Add(-sessionTTL - time.Minute)

	if got := store.Get(ctx, session.ID); got != nil {
		t.Errorf("expired session returned: %+v", got)
	}
}

func TestGetFromRequest(t *testing.T) {
	store := NewSessionStore()
	session, err := store.Create(context.Background(), newToken("tok"), "user1", "User One")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if store.GetFromRequest(req) != nil {
		t.Error("request without cookie must yield no session")
	}

	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: session.ID})
	if got := store.GetFromRequest(req); got == nil || got.ID != session.ID {
		t.Errorf("GetFromRequest = %+v", got)
	}
}

func TestSessionCookieFlags(t *testing.T) {
	rec := httptest.NewRecorder()
	setCookie(rec, &Session{ID: "abc"})

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies", len(cookies))
	}
	c := cookies[0]
	if c.Name != sessionCookieName || c.Value != "abc" {
		t.Errorf("cookie = %+v", c)
	}
	if !c.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if c.MaxAge != int(sessionTTL.Seconds()) {
		t.Errorf("MaxAge = %d", c.MaxAge)
	}
}
