package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/goliatone/go-leads/core"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type DeliveryIDExtractor func(req core.InboundRequest) (string, error)

// HeaderHMACVerifier recomputes an HMAC over the raw request body and accepts
// only on exact match. The digest algorithm is chosen by the signature's
// prefix marker ("sha256=" or the legacy "sha1="); an unknown marker fails
// closed. Verification must run against the raw bytes as received:
// re-serializing a parsed body changes byte layout and breaks the signature.
type HeaderHMACVerifier struct {
	Header string
	Secret string
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}

	marker, signature, found := strings.Cut(header, "=")
	if !found {
		return fmt.Errorf("webhooks: signature prefix marker is required")
	}
	var digest func() hash.Hash
	switch strings.ToLower(strings.TrimSpace(marker)) {
	case "sha256":
		digest = sha256.New
	case "sha1":
		digest = sha1.New
	default:
		return fmt.Errorf("webhooks: unsupported signature algorithm %q", marker)
	}

	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("webhooks: decode hex signature: %w", err)
	}

	mac := hmac.New(digest, []byte(secret))
	_, _ = mac.Write(req.Body)
	if subtle.ConstantTimeCompare(decoded, mac.Sum(nil)) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

type HeaderTokenVerifier struct {
	Header string
	Token  string
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("webhooks: verification token is required")
	}
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if actual == "" {
		return fmt.Errorf("webhooks: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("webhooks: verification token mismatch")
	}
	return nil
}

// AllowAllVerifier accepts every request. Used for push providers that carry
// no signature at all; their gate is payload-level (batch status attribute)
// rather than transport-level.
type AllowAllVerifier struct{}

func (AllowAllVerifier) Verify(context.Context, core.InboundRequest) error {
	return nil
}

// ChainVerifiers tries each verifier in order and accepts on the first
// success. Used when a provider sends either a current or a legacy signature
// header; rejection requires every variant to fail.
func ChainVerifiers(verifiers ...Verifier) Verifier {
	list := append([]Verifier(nil), verifiers...)
	return chainVerifier{verifiers: list}
}

type chainVerifier struct {
	verifiers []Verifier
}

func (c chainVerifier) Verify(ctx context.Context, req core.InboundRequest) error {
	var lastErr error
	for _, verifier := range c.verifiers {
		if verifier == nil {
			continue
		}
		if err := verifier.Verify(ctx, req); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("webhooks: no signature verifier matched")
}

// ChallengeGate implements the subscription verification handshake: the
// provider-supplied challenge is echoed back iff the shared verify token
// matches exactly. Not protected by HMAC by design.
type ChallengeGate struct {
	Token string
}

func (g ChallengeGate) Echo(mode string, token string, challenge string) (string, error) {
	expected := strings.TrimSpace(g.Token)
	if expected == "" {
		return "", fmt.Errorf("webhooks: verify token is not configured")
	}
	if strings.TrimSpace(strings.ToLower(mode)) != "subscribe" {
		return "", fmt.Errorf("webhooks: unsupported verification mode %q", mode)
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(expected)) != 1 {
		return "", fmt.Errorf("webhooks: verify token mismatch")
	}
	challenge = strings.TrimSpace(challenge)
	if challenge == "" {
		return "", fmt.Errorf("webhooks: challenge is required")
	}
	return challenge, nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
