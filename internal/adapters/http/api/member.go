package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/routedata/internal/domain/query"
)

// Member identity headers, honored only when no token secret is configured.
const (
	HeaderMemberID     = "X-Member-Id"
	HeaderMemberStatus = "X-Member-Status"
)

// MemberClaims is the token payload identifying a member. The subject is
// the member id.
type MemberClaims struct {
	jwt.RegisteredClaims
	UUID   string `json:"uuid,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// MemberResolver derives the requesting member from a request.
type MemberResolver struct {
	secret []byte
}

// NewMemberResolver returns a resolver. With an empty secret members are
// taken from the X-Member-Id header; otherwise a bearer token is required
// to identify one.
func NewMemberResolver(secret string) *MemberResolver {
	return &MemberResolver{secret: []byte(secret)}
}

// Resolve returns the member, nil for anonymous requests, or an error
// wrapping ErrUnauthorized for a bad token.
func (m *MemberResolver) Resolve(r *http.Request) (*query.Member, error) {
	if len(m.secret) == 0 {
		id := strings.TrimSpace(r.Header.Get(HeaderMemberID))
		if id == "" {
			return nil, nil
		}
		return &query.Member{ID: id, Status: r.Header.Get(HeaderMemberStatus)}, nil
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil, nil
	}
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return nil, fmt.Errorf("%w: expected bearer token", ErrUnauthorized)
	}
	claims, err := m.validate(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return &query.Member{
		ID:     claims.Subject,
		UUID:   claims.UUID,
		Email:  claims.Email,
		Name:   claims.Name,
		Status: claims.Status,
	}, nil
}

func (m *MemberResolver) validate(token string) (*MemberClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &MemberClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*MemberClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// NewMemberToken signs an HS256 token for member, valid for ttl.
func NewMemberToken(secret string, member query.Member, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("no secret configured")
	}
	now := time.Now().UTC()
	claims := &MemberClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   member.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UUID:   member.UUID,
		Email:  member.Email,
		Name:   member.Name,
		Status: member.Status,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
