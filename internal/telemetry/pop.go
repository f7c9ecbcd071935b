package telemetry

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PoPHeader is the request header carrying the proof-of-possession token.
const PoPHeader = "DPoP"

// signProof builds the per-request proof-of-possession JWT: an ES256
// assertion of the method, full URL, issue time and a fresh nonce. When a
// bearer token accompanies the request its hash is bound in as well, so a
// replayed proof cannot be paired with a different token.
func signProof(key *ecdsa.PrivateKey, publicKeyJWK string, method, url, accessToken string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"htm": method,
		"htu": url,
		"iat": now.Unix(),
		"jti": uuid.NewString(),
	}
	if accessToken != "" {
		sum := sha256.Sum256([]byte(accessToken))
		claims["ath"] = base64.RawURLEncoding.EncodeToString(sum[:])
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["typ"] = "dpop+jwt"

	var jwk map[string]string
	if err := json.Unmarshal([]byte(publicKeyJWK), &jwk); err != nil {
		return "", err
	}
	token.Header["jwk"] = jwk

	return token.SignedString(key)
}
