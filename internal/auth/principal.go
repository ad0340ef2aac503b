package auth

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidAPIKey      = errors.New("invalid api key")
)

// DefaultPlan applies when a user carries no plan claim
const DefaultPlan = "free"

type Method string

const (
	MethodJWT    Method = "jwt"
	MethodAPIKey Method = "api_key"
)

// Principal is the authenticated caller of a request
type Principal struct {
	UserID   string
	Email    string
	Plan     string
	Method   Method
	APIKeyID string
	// RequestsPerMinute overrides the plan rate when positive
	RequestsPerMinute int
}

// RateKey identifies the token bucket of the caller
func (p *Principal) RateKey() string {
	if p.APIKeyID != "" {
		return "key:" + p.APIKeyID
	}
	return "user:" + p.UserID
}

const principalKey = "auth.principal"

// SetPrincipal stores p on the gin context
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(principalKey, p)
}

// FromContext returns the principal stored by SetPrincipal
func FromContext(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}

type contextKey struct{}

// WithPrincipal attaches p to ctx for code below the HTTP layer
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFrom returns the principal attached by WithPrincipal
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok
}

func planFrom(appMetadata map[string]interface{}) string {
	if plan, ok := appMetadata["plan"].(string); ok && plan != "" {
		return plan
	}
	return DefaultPlan
}
