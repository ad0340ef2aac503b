package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/supabase-community/supabase-go"
)

// TokenVerifier turns a bearer access token into a principal
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

const tokenAudience = "authenticated"

type accessClaims struct {
	Email       string                 `json:"email"`
	AppMetadata map[string]interface{} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// LocalVerifier checks HS256 access tokens signed with the project JWT secret
type LocalVerifier struct {
	secret []byte
}

func NewLocalVerifier(secret string) *LocalVerifier {
	return &LocalVerifier{secret: []byte(secret)}
}

func (v *LocalVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Plan:   planFrom(claims.AppMetadata),
		Method: MethodJWT,
	}, nil
}

// RemoteVerifier asks the auth API who owns the token
type RemoteVerifier struct {
	lookup func(token string) (*Principal, error)
}

func NewRemoteVerifier(client *supabase.Client) *RemoteVerifier {
	return newRemoteVerifier(func(token string) (*Principal, error) {
		user, err := client.Auth.WithToken(token).GetUser()
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, errors.New("user not found")
		}
		return &Principal{
			UserID: user.ID.String(),
			Email:  user.Email,
			Plan:   planFrom(user.AppMetadata),
			Method: MethodJWT,
		}, nil
	})
}

func newRemoteVerifier(lookup func(token string) (*Principal, error)) *RemoteVerifier {
	return &RemoteVerifier{lookup: lookup}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := v.lookup(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return p, nil
}
