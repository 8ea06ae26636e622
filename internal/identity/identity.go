// Package identity implements account registration, sign-in, and session
// lifecycle, and publishes auth state transitions to interested subscribers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/syncovids/backend/internal/apperr"
	"github.com/syncovids/backend/internal/auth"
	"github.com/syncovids/backend/internal/models"
	"github.com/syncovids/backend/internal/profiles"
	"github.com/syncovids/backend/internal/repositories"
)

const (
	minPasswordLength = 6
	minUsernameLength = 3
)

// Sign-up and sign-in failures carry one of these sentinels so callers can
// map them to stable user-facing messages.
var (
	ErrEmailInUse         = fmt.Errorf("%w: email already in use", apperr.ErrAuth)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperr.ErrAuth)
	ErrAccountNotFound    = fmt.Errorf("%w: account not found", apperr.ErrAuth)
	ErrWeakPassword       = fmt.Errorf("%w: weak password", apperr.ErrAuth)
	ErrUsernameTooShort   = fmt.Errorf("%w: username too short", apperr.ErrAuth)
	ErrInvalidEmail       = fmt.Errorf("%w: invalid email", apperr.ErrAuth)
	ErrTooManyAttempts    = fmt.Errorf("%w: too many attempts", apperr.ErrAuth)
)

// Message translates an authentication failure into the text shown to the user.
// Unknown errors fall back to a generic message so internals never leak.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrEmailInUse):
		return "An account with this email already exists."
	case errors.Is(err, ErrInvalidCredentials):
		return "Incorrect email or password."
	case errors.Is(err, ErrAccountNotFound):
		return "No account found with this email."
	case errors.Is(err, ErrWeakPassword):
		return fmt.Sprintf("Password must be at least %d characters.", minPasswordLength)
	case errors.Is(err, ErrUsernameTooShort):
		return fmt.Sprintf("Username must be at least %d characters.", minUsernameLength)
	case errors.Is(err, ErrInvalidEmail):
		return "Please enter a valid email address."
	case errors.Is(err, ErrTooManyAttempts):
		return "Too many attempts. Please try again later."
	default:
		return "Authentication failed. Please try again."
	}
}

// AccountRepository persists user accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
}

// StateListener receives the signed-in account after sign-up or sign-in, and
// nil after sign-out.
type StateListener func(account *models.Account)

// Provider coordinates accounts, sessions, and profile synchronization.
type Provider struct {
	accounts AccountRepository
	sessions *auth.Manager
	profiles *profiles.Service

	mu        sync.Mutex
	listeners map[int]StateListener
	nextID    int
}

// NewProvider wires an identity provider from its collaborators. The profiles
// service may be nil when directory sync is not needed.
func NewProvider(accounts AccountRepository, sessions *auth.Manager, profileSvc *profiles.Service) *Provider {
	return &Provider{
		accounts:  accounts,
		sessions:  sessions,
		profiles:  profileSvc,
		listeners: make(map[int]StateListener),
	}
}

// OnStateChange registers a listener for auth state transitions. The returned
// function removes the listener.
func (p *Provider) OnStateChange(listener StateListener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = listener
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Provider) notify(account *models.Account) {
	p.mu.Lock()
	listeners := make([]StateListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()
	for _, l := range listeners {
		l(account)
	}
}

// SignUp registers a new account, synchronizes its directory profile, and
// issues a session.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (*models.Account, models.SessionTokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, models.SessionTokens{}, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, models.SessionTokens{}, ErrWeakPassword
	}
	if len(displayName) < minUsernameLength {
		return nil, models.SessionTokens{}, ErrUsernameTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.SessionTokens{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:          uuid.NewString(),
		Email:       email,
		Password:    string(hash),
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := p.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, models.SessionTokens{}, ErrEmailInUse
		}
		return nil, models.SessionTokens{}, fmt.Errorf("create account: %w", err)
	}

	if p.profiles != nil {
		if err := p.profiles.Sync(ctx, *account); err != nil {
			return nil, models.SessionTokens{}, fmt.Errorf("sync profile: %w", err)
		}
	}

	tokens, err := p.sessions.Issue(ctx, account.ID)
	if err != nil {
		return nil, models.SessionTokens{}, err
	}

	p.notify(account)
	return account, tokens, nil
}

// SignIn validates credentials and issues a session. The account's directory
// profile is created on first sign-in if it does not already exist.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*models.Account, models.SessionTokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := p.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, models.SessionTokens{}, ErrAccountNotFound
		}
		return nil, models.SessionTokens{}, fmt.Errorf("find account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)); err != nil {
		return nil, models.SessionTokens{}, ErrInvalidCredentials
	}

	if p.profiles != nil {
		if err := p.profiles.Sync(ctx, *account); err != nil {
			return nil, models.SessionTokens{}, fmt.Errorf("sync profile: %w", err)
		}
	}

	tokens, err := p.sessions.Issue(ctx, account.ID)
	if err != nil {
		return nil, models.SessionTokens{}, err
	}

	p.notify(account)
	return account, tokens, nil
}

// SignOut revokes the refresh token and notifies listeners of the signed-out state.
func (p *Provider) SignOut(ctx context.Context, refreshToken string) {
	p.sessions.Revoke(ctx, refreshToken)
	p.notify(nil)
}

// Refresh exchanges a refresh token for a fresh session pair.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	return p.sessions.Refresh(ctx, refreshToken)
}

// Account loads the account for a verified user identifier.
func (p *Provider) Account(ctx context.Context, id string) (*models.Account, error) {
	account, err := p.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound("account")
		}
		return nil, err
	}
	return account, nil
}
