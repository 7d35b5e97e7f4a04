// Package engine is the conversation engine bounded context: consumer
// auth, per-sender rate limiting, intent classification, decision
// routing, and action execution for each queued message.
package engine

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"leadchat_backend/platform/config"
)

const (
	operatorKeyHeader  = "X-Operator-Key"
	signatureJWTHeader = "X-Queue-Signature"
)

// AuthSurface names which tier accepted the request, for logging.
type AuthSurface string

const (
	SurfaceOperator  AuthSurface = "operator"
	SurfaceSignature AuthSurface = "signature"
	SurfaceDevBypass AuthSurface = "dev-bypass"
)

// Authenticator verifies that a consumer request came from the queue
// dispatcher or an operator. Three tiers, checked in order: operator key,
// queue signature, development bypass.
type Authenticator struct {
	cfg config.QueueAuthConfig
}

func NewAuthenticator(cfg config.QueueAuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Authenticate checks the request headers against each tier. The body is
// needed because queue signatures bind to the body digest.
func (a *Authenticator) Authenticate(operatorKey, signature string, body []byte) (AuthSurface, error) {
	if a.checkOperatorKey(operatorKey) {
		return SurfaceOperator, nil
	}

	if signature != "" {
		if err := a.verifyQueueSignature(signature, body); err == nil {
			return SurfaceSignature, nil
		}
	}

	if a.cfg.GetAllowDevBypass() && !strings.EqualFold(a.cfg.GetEnv(), "production") {
		return SurfaceDevBypass, nil
	}

	return "", fmt.Errorf("no auth tier accepted the request")
}

func (a *Authenticator) checkOperatorKey(provided string) bool {
	key := a.cfg.GetOperatorKey()
	if key == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(provided)) == 1
}

// verifyQueueSignature validates a JWT signed by the queue dispatcher.
// The token's sub claim carries the hex SHA-256 of the request body, and
// verification tries the current signing key then the next one so key
// rotation never drops jobs mid-flight.
func (a *Authenticator) verifyQueueSignature(token string, body []byte) error {
	keys := []string{a.cfg.GetQueueSigningKeyCurrent(), a.cfg.GetQueueSigningKeyNext()}

	var lastErr error
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := verifySignedToken(token, key, body); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no signing keys configured")
	}
	return lastErr
}

func verifySignedToken(token, key string, body []byte) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(key), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return err
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return fmt.Errorf("missing body digest claim: %w", err)
	}

	digest := sha256.Sum256(body)
	expected := hex.EncodeToString(digest[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(subject)) != 1 {
		return fmt.Errorf("body digest mismatch")
	}

	return nil
}

// SignBody issues a queue signature for a request body using the current
// signing key. Used by the dispatcher side and by tests.
func SignBody(key string, body []byte) (string, error) {
	digest := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": hex.EncodeToString(digest[:]),
		"iss": "leadchat-queue",
	})
	return token.SignedString([]byte(key))
}
