package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/yourusername/identity-api/internal/domain/entity"
)

// CredentialSynthesizer derives stable secondary credentials for accounts created
// through an external provider, so the password-based store paths can be reused.
// Output depends only on the identifier and the configured key.
type CredentialSynthesizer struct {
	key []byte
}

func NewCredentialSynthesizer(secret string) (*CredentialSynthesizer, error) {
	if secret == "" {
		return nil, errors.New("federation secret is required")
	}
	return &CredentialSynthesizer{key: []byte(secret)}, nil
}

// Password returns the synthetic password for an email or provider uid.
// The fixed prefix and suffix guarantee an upper, a lower and a digit for the store's password policy.
func (c *CredentialSynthesizer) Password(identifier string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte("password\x00" + identifier))
	return "Xf" + hex.EncodeToString(mac.Sum(nil))[:40] + "9"
}

// Username derives the username of an account auto-provisioned for a provider subject,
// e.g. fb_<digest> for Firebase.
func (c *CredentialSynthesizer) Username(provider entity.AuthProvider, subject string) string {
	return providerTag(provider) + "_" + unkeyedDigest(string(provider)+"\x00username", subject)
}

// Email derives the email of an auto-provisioned account. Unkeyed, so the address
// survives a federation key rotation.
func (c *CredentialSynthesizer) Email(provider entity.AuthProvider, subject string) string {
	return providerTag(provider) + "." + unkeyedDigest(string(provider)+"\x00email", subject) +
		"@users." + strings.ToLower(string(provider)) + ".invalid"
}

func providerTag(provider entity.AuthProvider) string {
	if provider == entity.ProviderFirebase {
		return "fb"
	}
	return strings.ToLower(string(provider))
}

func unkeyedDigest(label, identifier string) string {
	sum := sha256.Sum256([]byte(label + "\x00" + identifier))
	return hex.EncodeToString(sum[:])[:24]
}
