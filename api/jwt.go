package api

import (
	"crypto"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"recall/models"
)

type JWT struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func ParseAndValidateJWT(tokenString string, secret crypto.Signer) (*JWT, error) {
	const op = "ParseJWT"
	token, err := jwt.ParseWithClaims(tokenString, &JWT{}, func(token *jwt.Token) (interface{}, error) {
		return secret.Public(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%s: token is invalid", op)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	return claims, nil
}

// issueAccessToken 簽發一個以User ID為subject的access token
func (impl *ServerImpl) issueAccessToken(user *models.User) (string, error) {
	const op = "issueAccessToken"
	token := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, JWT{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(impl.config.Auth.ExpireDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    impl.config.Auth.Issuer,
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			Audience:  []string{impl.config.Auth.Audience},
		},
	})
	tokenString, err := token.SignedString(impl.config.Auth.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to sign JWT, err=%w", op, err)
	}
	return tokenString, nil
}
