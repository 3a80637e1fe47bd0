package claims

import (
	"context"
	"fmt"
	"strings"
	"sync"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// User is an account known to the identity provider.
type User struct {
	UID    string
	Email  string
	Claims map[string]any
}

// Provider is the identity backend.
type Provider interface {
	// GetUserByEmail returns ErrNotFound for unknown accounts.
	GetUserByEmail(ctx context.Context, email string) (User, error)
	// SetCustomClaims replaces the account's custom claims.
	SetCustomClaims(ctx context.Context, uid string, claims map[string]any) error
	// VerifyIDToken returns ErrUnauthenticated for invalid tokens.
	VerifyIDToken(ctx context.Context, token string) (Identity, error)
}

// FirebaseProvider is a Provider backed by Firebase Authentication.
type FirebaseProvider struct {
	client *auth.Client
}

// NewFirebaseProvider initialises the Firebase Auth client for projectID.
func NewFirebaseProvider(ctx context.Context, projectID, credentialsFile string) (*FirebaseProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &FirebaseProvider{client: client}, nil
}

// GetUserByEmail implements Provider.
func (p *FirebaseProvider) GetUserByEmail(ctx context.Context, email string) (User, error) {
	u, err := p.client.GetUserByEmail(ctx, email)
	if auth.IsUserNotFound(err) {
		return User{}, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return User{UID: u.UID, Email: u.Email, Claims: u.CustomClaims}, nil
}

// SetCustomClaims implements Provider.
func (p *FirebaseProvider) SetCustomClaims(ctx context.Context, uid string, claims map[string]any) error {
	if err := p.client.SetCustomUserClaims(ctx, uid, claims); err != nil {
		return fmt.Errorf("set custom claims: %w", err)
	}
	return nil
}

// VerifyIDToken implements Provider.
func (p *FirebaseProvider) VerifyIDToken(ctx context.Context, token string) (Identity, error) {
	tok, err := p.client.VerifyIDToken(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	email, _ := tok.Claims[ClaimEmail].(string)
	return Identity{UID: tok.UID, Email: email, Claims: tok.Claims}, nil
}

// MemoryProvider is an in-process Provider for development and tests.
type MemoryProvider struct {
	mu     sync.RWMutex
	users  map[string]User   // by uid
	tokens map[string]string // token -> uid
}

// NewMemoryProvider creates a provider preloaded with users.
func NewMemoryProvider(users ...User) *MemoryProvider {
	p := &MemoryProvider{users: make(map[string]User), tokens: make(map[string]string)}
	for _, u := range users {
		p.AddUser(u)
	}
	return p
}

// AddUser registers or replaces an account. A missing UID is generated.
func (p *MemoryProvider) AddUser(u User) User {
	if u.UID == "" {
		u.UID = uuid.NewString()
	}
	u.Claims = copyClaims(u.Claims)
	p.mu.Lock()
	p.users[u.UID] = u
	p.mu.Unlock()
	return u
}

// IssueToken returns a bearer token that VerifyIDToken accepts for uid.
func (p *MemoryProvider) IssueToken(uid string) string {
	tok := uuid.NewString()
	p.mu.Lock()
	p.tokens[tok] = uid
	p.mu.Unlock()
	return tok
}

// GetUserByEmail implements Provider.
func (p *MemoryProvider) GetUserByEmail(_ context.Context, email string) (User, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, u := range p.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			u.Claims = copyClaims(u.Claims)
			return u, nil
		}
	}
	return User{}, fmt.Errorf("%w: %s", ErrNotFound, email)
}

// SetCustomClaims implements Provider.
func (p *MemoryProvider) SetCustomClaims(_ context.Context, uid string, claims map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[uid]
	if !ok {
		return fmt.Errorf("%w: uid %s", ErrNotFound, uid)
	}
	u.Claims = copyClaims(claims)
	p.users[uid] = u
	return nil
}

// VerifyIDToken implements Provider.
func (p *MemoryProvider) VerifyIDToken(_ context.Context, token string) (Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	uid, ok := p.tokens[token]
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	u, ok := p.users[uid]
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	claims := copyClaims(u.Claims)
	claims[ClaimEmail] = u.Email
	return Identity{UID: u.UID, Email: u.Email, Claims: claims}, nil
}

func copyClaims(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
