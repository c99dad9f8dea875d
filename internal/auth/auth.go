// Package auth interprets identity assertions from the external identity
// provider. It does not log users in: it verifies HS256 bearer tokens, maps
// their claims to a domain.Identity, and answers the two capability questions
// the lifecycle needs (is this caller an admin, does this caller own that
// submission).
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-community-directory/internal/domain"
)

var (
	// ErrNoToken means the request carried no bearer token.
	ErrNoToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token body. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier returns a verifier for secret. When issuer is non-empty the
// iss claim must match it.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}, nil
}

// Verify parses raw and returns the identity it asserts.
func (v *Verifier) Verify(raw string) (domain.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return domain.Identity{UserID: claims.Subject, Roles: claims.Roles}, nil
}

// Issue signs a token for id valid for ttl. The service itself never hands
// tokens to end users; this exists for the operator CLI and tests.
func (v *Verifier) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: id.Roles,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("can not sign jwt: %w", err)
	}
	return tok, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrNoToken
	}
	scheme, tok, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
		return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	return strings.TrimSpace(tok), nil
}

type ctxKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, or the anonymous identity.
func FromContext(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(ctxKey{}).(domain.Identity)
	return id
}

// OwnerLookup loads a submission so Policy can compare its submitter.
type OwnerLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
}

// Policy decides admin and owner capabilities. A caller is an admin when the
// token carries the admin role or its user id is in the configured allow
// list.
type Policy struct {
	admins map[string]struct{}
	lookup OwnerLookup
}

// NewPolicy builds a Policy. lookup may be nil, in which case nobody owns
// anything.
func NewPolicy(adminIDs []string, lookup OwnerLookup) *Policy {
	p := &Policy{admins: make(map[string]struct{}, len(adminIDs)), lookup: lookup}
	for _, id := range adminIDs {
		if id = strings.TrimSpace(id); id != "" {
			p.admins[id] = struct{}{}
		}
	}
	return p
}

// IsAdmin reports whether caller may run lifecycle actions.
func (p *Policy) IsAdmin(_ context.Context, caller domain.Identity) bool {
	if caller.Anonymous() {
		return false
	}
	if caller.HasRole(domain.RoleAdmin) {
		return true
	}
	_, ok := p.admins[caller.UserID]
	return ok
}

// IsOwner reports whether caller submitted submissionID. Lookup errors are
// returned as-is so callers can tell NotFound from a store failure.
func (p *Policy) IsOwner(ctx context.Context, caller domain.Identity, submissionID string) (bool, error) {
	if caller.Anonymous() || p.lookup == nil {
		return false, nil
	}
	sub, err := p.lookup.GetByID(ctx, submissionID)
	if err != nil {
		return false, err
	}
	return sub.SubmittedBy != "" && sub.SubmittedBy == caller.UserID, nil
}
