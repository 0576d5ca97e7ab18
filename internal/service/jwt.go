package service

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret []byte

func InitJWT() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		panic("JWT_SECRET is not set")
	}
	jwtSecret = []byte(secret)
}

// GenerateJWT issues a session token for a wallet address. Verifying
// the wallet signature that proves ownership happens upstream.
func GenerateJWT(address string) (string, error) {
	now := time.Now().Unix()
	claims := jwt.MapClaims{
		"address": address,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     now,
		"nbf":     now,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseJWT validates a session token and returns the wallet address.
func ParseJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})

	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := time.Now().Unix()
	if exp, ok := claims["exp"].(float64); ok {
		if int64(exp) < now {
			return "", errors.New("token expired")
		}
	}
	if nbf, ok := claims["nbf"].(float64); ok {
		if int64(nbf) > now {
			return "", errors.New("token not valid yet")
		}
	}

	address, ok := claims["address"].(string)
	if !ok || address == "" {
		return "", errors.New("address not found")
	}

	return address, nil
}
