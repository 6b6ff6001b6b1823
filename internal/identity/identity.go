// Package identity issues and verifies bearer tokens for storefront users.
// Credentials live in the document store; the user profile document is keyed
// by the same subject.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

// Credentials are what a user signs in with.
type Credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string    `json:"token"`
	Subject   string    `json:"uid"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type credentialRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Locker serializes registrations for one email address.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Provider is a self-hosted identity provider
type Provider struct {
	store  docstore.Store
	locker Locker
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewProvider creates a new identity provider
func NewProvider(store docstore.Store, locker Locker, secret, issuer string, ttl time.Duration) *Provider {
	return &Provider{
		store:  store,
		locker: locker,
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates credentials for a new subject and returns a session.
func (p *Provider) Register(ctx context.Context, creds Credentials) (*Session, error) {
	email := normalizeEmail(creds.Email)
	if len(creds.Password) < 6 {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	subject := uuid.New().String()
	err = p.locker.WithLock(ctx, "email:"+email, func(ctx context.Context) error {
		existing, err := p.store.List(ctx, models.CollectionCredentials, docstore.Where("email", docstore.OpEq, email))
		if err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if len(existing) > 0 {
			return ErrEmailTaken
		}
		rec := credentialRecord{Email: email, PasswordHash: string(hash), CreatedAt: p.now()}
		if err := p.store.Set(ctx, models.CollectionCredentials, subject, rec); err != nil {
			return fmt.Errorf("failed to store credentials: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("Registered identity", zap.String("uid", subject))
	return p.issue(subject)
}

// SignIn checks credentials and issues a token.
func (p *Provider) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	recs, err := docstore.ListAs[credentialRecord](ctx, p.store, models.CollectionCredentials,
		docstore.Where("email", docstore.OpEq, normalizeEmail(creds.Email)))
	if err != nil {
		return nil, fmt.Errorf("failed to look up credentials: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrInvalidCredentials
	}

	rec := recs[0]
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return p.issue(rec.ID)
}

// Email returns the address a subject registered with.
func (p *Provider) Email(ctx context.Context, subject string) (string, error) {
	rec, err := docstore.GetAs[credentialRecord](ctx, p.store, models.CollectionCredentials, subject)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up credentials: %w", err)
	}
	return rec.Email, nil
}

func (p *Provider) issue(subject string) (*Session, error) {
	now := p.now()
	expires := now.Add(p.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    p.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.New().String(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Session{Token: token, Subject: subject, ExpiresAt: expires}, nil
}

// VerifyToken returns the subject of a valid, unexpired token.
func (p *Provider) VerifyToken(ctx context.Context, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

type subjectKey struct{}

// WithSubject stores the authenticated subject on the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// CurrentUser returns the subject authenticated for this request, or "".
func CurrentUser(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}
