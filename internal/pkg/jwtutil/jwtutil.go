package jwtutil

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"enterprise-kb/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID       uint   `json:"uid"`
	Username     string `json:"username"`
	DepartmentID string `json:"dept,omitempty"`
	IsSuperuser  bool   `json:"su,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Principal() model.Principal {
	return model.Principal{UserID: c.UserID, DepartmentID: c.DepartmentID, IsSuperuser: c.IsSuperuser}
}

func GenerateToken(secret string, expiration time.Duration, user *model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:       user.ID,
		Username:     user.Username,
		DepartmentID: user.DepartmentID,
		IsSuperuser:  user.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return token, nil
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
