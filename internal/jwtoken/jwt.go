package jwtoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"presenza/internal/platform/middleware"
	dErrors "presenza/pkg/domain-errors"
)

// Claims are the JWT claims carried by operator access tokens. Tokens
// are minted by the external identity system; we only validate them.
type Claims struct {
	OperatorID   string `json:"operator_id"`
	ConferenceID string `json:"conference_id"`
	jwt.RegisteredClaims
}

// Service validates (and, for tests and dev tooling, mints) operator
// tokens with a shared HMAC key.
type Service struct {
	signingKey []byte
	issuer     string
}

func New(signingKey string, issuer string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// GenerateToken mints a short-lived operator token. Used by dev tooling
// and the test suites; production tokens come from the identity system.
func (s *Service) GenerateToken(operatorID, conferenceID string, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OperatorID:   operatorID,
		ConferenceID: conferenceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken checks signature and expiry and adapts the claims to
// the middleware's expectations.
func (s *Service) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return &middleware.JWTClaims{
		OperatorID:   claims.OperatorID,
		ConferenceID: claims.ConferenceID,
	}, nil
}
