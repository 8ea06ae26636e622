package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/syncovids/backend/internal/apperr"
	"github.com/syncovids/backend/internal/auth"
	"github.com/syncovids/backend/internal/models"
	"github.com/syncovids/backend/internal/repositories"
)

type fakeAccountRepo struct {
	byEmail map[string]*models.Account
	byID    map[string]*models.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		byEmail: make(map[string]*models.Account),
		byID:    make(map[string]*models.Account),
	}
}

func (r *fakeAccountRepo) Create(_ context.Context, account *models.Account) error {
	if _, exists := r.byEmail[account.Email]; exists {
		return repositories.ErrConflict
	}
	r.byEmail[account.Email] = account
	r.byID[account.ID] = account
	return nil
}

func (r *fakeAccountRepo) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	account, ok := r.byEmail[email]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return account, nil
}

func (r *fakeAccountRepo) FindByID(_ context.Context, id string) (*models.Account, error) {
	account, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return account, nil
}

func newTestProvider() (*Provider, *fakeAccountRepo) {
	repo := newFakeAccountRepo()
	sessions := auth.NewManager(time.Minute, time.Hour, "test-secret", auth.NewInMemorySessionStore())
	return NewProvider(repo, sessions, nil), repo
}

func TestSignUpIssuesSession(t *testing.T) {
	provider, _ := newTestProvider()

	account, tokens, err := provider.SignUp(context.Background(), " Ada@Example.com ", "hunter22", "ada")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if account.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", account.Email)
	}
	if account.Password == "hunter22" {
		t.Fatal("password stored in the clear")
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("expected session tokens")
	}
}

func TestSignUpValidation(t *testing.T) {
	provider, _ := newTestProvider()
	ctx := context.Background()

	cases := []struct {
		name                      string
		email, password, username string
		want                      error
	}{
		{"bad email", "not-an-email", "hunter22", "ada", ErrInvalidEmail},
		{"short password", "a@b.com", "12345", "ada", ErrWeakPassword},
		{"short username", "a@b.com", "hunter22", "ab", ErrUsernameTooShort},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := provider.SignUp(ctx, tc.email, tc.password, tc.username)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, apperr.ErrAuth) {
				t.Fatalf("expected auth classification, got %v", err)
			}
		})
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	provider, _ := newTestProvider()
	ctx := context.Background()

	if _, _, err := provider.SignUp(ctx, "a@b.com", "hunter22", "ada"); err != nil {
		t.Fatalf("first sign up: %v", err)
	}
	if _, _, err := provider.SignUp(ctx, "a@b.com", "hunter22", "ada2"); !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	provider, _ := newTestProvider()
	ctx := context.Background()

	if _, _, err := provider.SignUp(ctx, "a@b.com", "hunter22", "ada"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if _, _, err := provider.SignIn(ctx, "a@b.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSignInUnknownEmail(t *testing.T) {
	provider, _ := newTestProvider()
	if _, _, err := provider.SignIn(context.Background(), "nobody@b.com", "hunter22"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestSignInRoundTrip(t *testing.T) {
	provider, _ := newTestProvider()
	ctx := context.Background()

	created, _, err := provider.SignUp(ctx, "a@b.com", "hunter22", "ada")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	account, tokens, err := provider.SignIn(ctx, "A@B.com", "hunter22")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if account.ID != created.ID {
		t.Fatalf("expected same account, got %q and %q", account.ID, created.ID)
	}
	if tokens.RefreshToken == "" {
		t.Fatal("expected a session")
	}
}

func TestRefreshAndSignOut(t *testing.T) {
	provider, _ := newTestProvider()
	ctx := context.Background()

	_, tokens, err := provider.SignUp(ctx, "a@b.com", "hunter22", "ada")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	rotated, err := provider.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	provider.SignOut(ctx, rotated.RefreshToken)
	if _, err := provider.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected session revoked, got %v", err)
	}
}

func TestAccountNotFound(t *testing.T) {
	provider, _ := newTestProvider()
	if _, err := provider.Account(context.Background(), "nobody"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOnStateChange(t *testing.T) {
	provider, _ := newTestProvider()
	ctx := context.Background()

	var events []string
	unsubscribe := provider.OnStateChange(func(account *models.Account) {
		if account == nil {
			events = append(events, "signed-out")
		} else {
			events = append(events, "signed-in:"+account.Email)
		}
	})

	_, tokens, err := provider.SignUp(ctx, "a@b.com", "hunter22", "ada")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	provider.SignOut(ctx, tokens.RefreshToken)

	unsubscribe()
	if _, _, err := provider.SignIn(ctx, "a@b.com", "hunter22"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	want := "signed-in:a@b.com,signed-out"
	if got := strings.Join(events, ","); got != want {
		t.Fatalf("expected events %q, got %q", want, got)
	}
}

func TestMessageMapping(t *testing.T) {
	if got := Message(ErrEmailInUse); got != "An account with this email already exists." {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Message(errors.New("boom")); got != "Authentication failed. Please try again." {
		t.Fatalf("expected generic fallback, got %q", got)
	}
}
