package telemetry

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
)

// generateKeyPair creates the P-256 key the provider may bind tokens to.
// Both halves are persisted with the credential so the binding survives
// process restarts.
func generateKeyPair() (privateKeyPEM string, publicKeyJWK string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	jwk, err := json.Marshal(publicJWK(key))
	if err != nil {
		return "", "", fmt.Errorf("marshal public jwk: %w", err)
	}

	return string(block), string(jwk), nil
}

func parsePrivateKey(privateKeyPEM string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in stored private key")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func publicJWK(key *ecdsa.PrivateKey) map[string]string {
	coord := func(b []byte) string {
		// Coordinates are fixed-width per RFC 7518.
		padded := make([]byte, 32)
		copy(padded[32-len(b):], b)
		return base64.RawURLEncoding.EncodeToString(padded)
	}
	return map[string]string{
		"kty": "EC",
		"crv": "P-256",
		"x":   coord(key.PublicKey.X.Bytes()),
		"y":   coord(key.PublicKey.Y.Bytes()),
	}
}
