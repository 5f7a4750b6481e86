package identity

import (
	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

const tokenAudience = "internquest-console"

// TokenClaims represents the claims transmitted via an ID token.
type TokenClaims struct {
	jwt.StandardClaims
	Email           string `json:"email,omitempty"`
	Name            string `json:"name,omitempty"`
	Role            string `json:"role,omitempty"`
	MustSetPassword bool   `json:"mustSetPassword,omitempty"`
}

// Valid checks the registered claims, then the audience and the subject.
func (c *TokenClaims) Valid() error {
	if err := c.StandardClaims.Valid(); err != nil {
		return err
	}
	if !c.VerifyAudience(tokenAudience, true) || c.Subject == "" {
		return ErrInvalidToken
	}
	return nil
}

// SigningMethod is the algorithm ID tokens are signed with.
var SigningMethod = jwt.SigningMethodHS256

func (svc *Service) claimsFor(id Identity) *TokenClaims {
	now := svc.nowFunc()
	return &TokenClaims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    svc.issuer,
			Subject:   id.UID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(svc.tokenTTL).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email:           id.Email,
		Name:            id.DisplayName,
		Role:            id.Claims.Role,
		MustSetPassword: id.Claims.MustSetPassword,
	}
}

// IssueIDToken generates a signed ID token representing the identity and its current custom claims.
func (svc *Service) IssueIDToken(id Identity) (string, error) {
	token := jwt.NewWithClaims(SigningMethod, svc.claimsFor(id))
	ss, err := token.SignedString(svc.secretKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// VerifyIDToken checks the signature, expiry and audience of an ID token and returns its claims.
func (svc *Service) VerifyIDToken(tokenStr string) (*TokenClaims, error) {
	claims := new(TokenClaims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != SigningMethod.Alg() {
			return nil, errors.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return svc.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SigningKey is the key the transport layer verifies bearer tokens with.
func (svc *Service) SigningKey() []byte { return svc.secretKey }

