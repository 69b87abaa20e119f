package user

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service validates the JWTs that gate the websocket endpoint. Token
// issuance lives in the account service; IssueToken exists for tooling and
// tests.
type Service struct {
	repo      *Repository
	jwtSecret string
}

type ChatClaims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
	}
}

func (s *Service) IssueToken(userID, username string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ChatClaims{
		ID:       userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "social-chat-server",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	return token.SignedString([]byte(s.jwtSecret))
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &ChatClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid || claims.ID == "" {
		return "", "", errors.New("invalid token")
	}
	return claims.ID, claims.Username, nil
}
