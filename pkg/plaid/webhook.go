package plaid

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MaxWebhookAge bounds how old a Plaid-Verification token may be.
const MaxWebhookAge = 5 * time.Minute

var ErrWebhookVerification = errors.New("webhook verification failed")

type webhookClaims struct {
	RequestBodySHA256 string `json:"request_body_sha256"`
	jwt.RegisteredClaims
}

// VerifyWebhook checks the Plaid-Verification header against the raw body:
// ES256 signature by a current Plaid key, iat no older than MaxWebhookAge,
// and a matching body digest.
func (c *Client) VerifyWebhook(ctx context.Context, token string, body []byte) error {
	if token == "" {
		return fmt.Errorf("%w: missing Plaid-Verification header", ErrWebhookVerification)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)

	var claims webhookClaims
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}
		return c.verificationKey(ctx, kid)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookVerification, err)
	}

	if claims.IssuedAt == nil || c.now().Sub(claims.IssuedAt.Time) > MaxWebhookAge {
		return fmt.Errorf("%w: token is too old", ErrWebhookVerification)
	}

	sum := sha256.Sum256(body)
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(claims.RequestBodySHA256)) != 1 {
		return fmt.Errorf("%w: body digest mismatch", ErrWebhookVerification)
	}
	return nil
}

// verificationKey returns the cached public key for kid, fetching it on a miss.
func (c *Client) verificationKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	c.keysMu.Lock()
	jwk, ok := c.keys[kid]
	c.keysMu.Unlock()

	if !ok {
		fetched, err := c.getVerificationKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		jwk = fetched
		c.keysMu.Lock()
		c.keys[kid] = jwk
		c.keysMu.Unlock()
	}

	if jwk.ExpiredAt != nil && *jwk.ExpiredAt > 0 && c.now().Unix() >= *jwk.ExpiredAt {
		return nil, fmt.Errorf("verification key %s expired", kid)
	}
	return jwk.PublicKey()
}

// PublicKey converts a P-256 JWK to an ECDSA key.
func (k *JWK) PublicKey() (*ecdsa.PublicKey, error) {
	if k.Kty != "EC" || k.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported key type %s/%s", k.Kty, k.Crv)
	}
	x, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("decode x: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("decode y: %w", err)
	}
	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.New("point is not on P-256")
	}
	return pub, nil
}
