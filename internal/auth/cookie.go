package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidFormat    = errors.New("invalid cookie format")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signer produces and verifies HMAC-signed cookie values.
type Signer struct {
	key []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

// Sign creates a signed cookie value in the format "value|signature"
func (s *Signer) Sign(value string) string {
	return fmt.Sprintf("%s|%s",
		base64.URLEncoding.EncodeToString([]byte(value)),
		base64.URLEncoding.EncodeToString(s.mac(value)))
}

// Verify checks the signed cookie and returns the original value
func (s *Signer) Verify(signedValue string) (string, error) {
	valueBase64, signatureBase64, ok := strings.Cut(signedValue, "|")
	if !ok {
		return "", ErrInvalidFormat
	}

	valueBytes, err := base64.URLEncoding.DecodeString(valueBase64)
	if err != nil {
		return "", fmt.Errorf("invalid value encoding: %w", err)
	}
	value := string(valueBytes)

	signature, err := base64.URLEncoding.DecodeString(signatureBase64)
	if err != nil {
		return "", fmt.Errorf("invalid signature encoding: %w", err)
	}

	if !hmac.Equal(signature, s.mac(value)) {
		return "", ErrInvalidSignature
	}
	return value, nil
}

func (s *Signer) mac(value string) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(value))
	return mac.Sum(nil)
}
