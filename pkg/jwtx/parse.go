package jwtx

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ParseUnverified decodes a token's claims without verifying its signature.
// The result is advisory only (extracting expiry, subject, and so on) and
// must never gate access.
func ParseUnverified(tokenStr string) (Claims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenStr, &Claims{})
	if err != nil {
		return Claims{}, ErrMalformed
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return Claims{}, ErrMalformed
	}
	return *claims, nil
}

// CheckFormat performs a structural check independent of signature validity:
// three dot-separated segments, a decodable header naming an algorithm, and
// a non-empty payload.
func CheckFormat(tokenStr string) error {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return ErrMalformed
	}

	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrMalformed
	}

	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerRaw, &header); err != nil || header.Alg == "" {
		return ErrMalformed
	}

	if parts[1] == "" {
		return ErrMalformed
	}
	return nil
}
