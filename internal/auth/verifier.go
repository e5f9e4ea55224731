package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/yoockh/vaihub/internal/models"
	"github.com/yoockh/vaihub/internal/utils"
)

// Verifier turns a bearer credential into the identity it proves.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*models.Identity, error)
}

// RoleLookup reads a user's role from the profile store. Implementations must
// not cache: authorization decisions depend on the current row.
type RoleLookup interface {
	RoleOf(ctx context.Context, userID string) (models.Role, error)
}

type supabaseClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"` // usually "authenticated" / "anon"
}

// JWTVerifier checks HS256 access tokens signed with the project JWT secret.
type JWTVerifier struct {
	secret   []byte
	issuer   string // optional
	audience string // optional
	now      func() time.Time
}

func NewJWTVerifier(secret, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, audience: audience, now: time.Now}
}

func (v *JWTVerifier) Verify(_ context.Context, credential string) (*models.Identity, error) {
	const op = "JWTVerifier.Verify"

	if len(v.secret) == 0 {
		return nil, utils.E(utils.CodeInternal, op, "jwt secret is not configured", nil)
	}
	raw := strings.TrimSpace(credential)
	if raw == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "missing bearer token", nil)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &supabaseClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || tok == nil || !tok.Valid {
		return nil, utils.E(utils.CodeUnauthorized, op, "invalid token", err)
	}

	// anon tokens carry no user
	if claims.Subject == "" || claims.Role == "anon" {
		return nil, utils.E(utils.CodeUnauthorized, op, "missing subject", nil)
	}

	return &models.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
