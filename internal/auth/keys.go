package auth

import (
	"crypto/rsa"
	"os"

	"github.com/golang-jwt/jwt"
)

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, err
	}

	return pub, nil
}
