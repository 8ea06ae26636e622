package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestManager(accessTTL, refreshTTL time.Duration) (*Manager, *InMemorySessionStore) {
	store := NewInMemorySessionStore()
	return NewManager(accessTTL, refreshTTL, "test-secret", store), store
}

func TestIssueAndVerify(t *testing.T) {
	manager, _ := newTestManager(time.Minute, time.Hour)

	tokens, err := manager.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("expected both tokens populated")
	}

	uid, err := manager.Verify(tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if uid != "u1" {
		t.Fatalf("expected subject u1, got %q", uid)
	}
}

func TestIssueRequiresUserID(t *testing.T) {
	manager, _ := newTestManager(time.Minute, time.Hour)
	if _, err := manager.Issue(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	manager, _ := newTestManager(time.Minute, time.Hour)
	if _, err := manager.Verify("not-a-token"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	manager, _ := newTestManager(time.Minute, time.Hour)
	other := NewManager(time.Minute, time.Hour, "different-secret", NewInMemorySessionStore())

	tokens, err := other.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := manager.Verify(tokens.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	manager, _ := newTestManager(-time.Minute, time.Hour)

	tokens, err := manager.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := manager.Verify(tokens.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestRefreshRotates(t *testing.T) {
	manager, store := newTestManager(time.Minute, time.Hour)
	ctx := context.Background()

	first, err := manager.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	second, err := manager.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	if _, err := store.Find(ctx, first.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected old token deleted, got %v", err)
	}
	if _, err := manager.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected reuse to fail, got %v", err)
	}
}

func TestRefreshExpired(t *testing.T) {
	manager, store := newTestManager(time.Minute, -time.Hour)
	ctx := context.Background()

	tokens, err := manager.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := manager.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}
	if _, err := store.Find(ctx, tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session removed, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	manager, store := newTestManager(time.Minute, time.Hour)
	ctx := context.Background()

	tokens, err := manager.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	manager.Revoke(ctx, tokens.RefreshToken)
	if _, err := store.Find(ctx, tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session removed, got %v", err)
	}
}

func TestPruneExpired(t *testing.T) {
	store := NewInMemorySessionStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = store.Save(ctx, Session{RefreshToken: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour)})
	_ = store.Save(ctx, Session{RefreshToken: "dead", UserID: "u1", ExpiresAt: now.Add(-time.Hour)})

	store.PruneExpired(now)

	if _, err := store.Find(ctx, "live"); err != nil {
		t.Fatalf("expected live session kept: %v", err)
	}
	if _, err := store.Find(ctx, "dead"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected dead session pruned, got %v", err)
	}
}
