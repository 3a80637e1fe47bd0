package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ninahq/nina/internal/adapters/repository"
	"github.com/ninahq/nina/internal/domain/model"
	"github.com/ninahq/nina/pkg/logger"
	"github.com/ninahq/nina/pkg/metrics"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBootstrapEmails sets who may run the one-time admin bootstrap.
func WithBootstrapEmails(emails ...string) Option {
	return func(s *Service) {
		for _, e := range emails {
			if e = normalizeEmail(e); e != "" {
				s.bootstrap[e] = struct{}{}
			}
		}
	}
}

// WithRoleTable sets the email to role lookup.
func WithRoleTable(t *RoleTable) Option {
	return func(s *Service) { s.roles = t }
}

// WithDevIdentity disables token verification; every request is
// authenticated as an admin with the given email.
func WithDevIdentity(email string) Option {
	return func(s *Service) {
		s.dev = &Identity{
			UID:    "dev",
			Email:  email,
			Claims: map[string]any{ClaimAdmin: true, ClaimEmail: email},
		}
	}
}

// Service authenticates callers and manages admin claims.
type Service struct {
	provider  Provider
	ledger    repository.Ledger
	bootstrap map[string]struct{}
	roles     *RoleTable
	dev       *Identity
	log       logger.Logger
}

// NewService creates a claims service.
func NewService(provider Provider, ledger repository.Ledger, opts ...Option) *Service {
	s := &Service{
		provider:  provider,
		ledger:    ledger,
		bootstrap: make(map[string]struct{}),
		log:       logger.Named("claims"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate turns a bearer token into an Identity.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	if s.dev != nil {
		return *s.dev, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}
	return s.provider.VerifyIDToken(ctx, token)
}

// Role resolves the caller's role.
func (s *Service) Role(id Identity) model.Role {
	return ResolveRole(id, s.roles)
}

// GrantAdmin merges admin: true into the target account's claims.
// The caller must resolve to the admin role, by claim or by role table.
func (s *Service) GrantAdmin(ctx context.Context, caller Identity, email string) (err error) {
	defer func() { metrics.RecordClaimOperation("grant", outcome(err)) }()

	if s.Role(caller) != model.RoleAdmin {
		return fmt.Errorf("%w: %s is not an admin", ErrPermissionDenied, caller.Email)
	}
	if err := s.setAdmin(ctx, email); err != nil {
		return err
	}
	s.log.Info(ctx, "admin granted", logger.String("by", caller.Email), logger.String("email", email))
	return nil
}

// BootstrapAdmin grants the first admin. The caller's email must be on the
// configured allow-list and the operation succeeds at most once.
func (s *Service) BootstrapAdmin(ctx context.Context, caller Identity, email string) (err error) {
	defer func() { metrics.RecordClaimOperation("bootstrap", outcome(err)) }()

	if _, ok := s.bootstrap[normalizeEmail(caller.Email)]; !ok {
		return fmt.Errorf("%w: %s may not bootstrap", ErrPermissionDenied, caller.Email)
	}
	target, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	if err := s.ledger.ConsumeBootstrap(ctx, target.Email); err != nil {
		if errors.Is(err, repository.ErrBootstrapRetired) {
			return ErrBootstrapRetired
		}
		return fmt.Errorf("bootstrap ledger: %w", err)
	}
	if err := s.merge(ctx, target); err != nil {
		return err
	}
	s.log.Info(ctx, "admin bootstrapped", logger.String("by", caller.Email), logger.String("email", target.Email))
	return nil
}

func (s *Service) lookup(ctx context.Context, email string) (User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return s.provider.GetUserByEmail(ctx, email)
}

func (s *Service) setAdmin(ctx context.Context, email string) error {
	target, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	return s.merge(ctx, target)
}

// merge keeps the account's other claims intact.
func (s *Service) merge(ctx context.Context, target User) error {
	claims := copyClaims(target.Claims)
	claims[ClaimAdmin] = true
	return s.provider.SetCustomClaims(ctx, target.UID, claims)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPermissionDenied):
		return "denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBootstrapRetired):
		return "retired"
	case errors.Is(err, ErrInvalidEmail):
		return "invalid"
	default:
		return "error"
	}
}
