package paymentswebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/practivahq/practiva-backend/pkg/errors"
)

// SignatureHeader is the processor's signature header name.
const SignatureHeader = "X-Payments-Signature"

const signaturePrefix = "sha256="

// Verifier authenticates inbound deliveries. The processor signs the literal
// request bytes with HMAC-SHA256 over the shared signing secret; verification
// must therefore run against the raw body, never a re-serialized form.
type Verifier struct {
	secret []byte
}

func NewVerifier(signingSecret string) (*Verifier, error) {
	if signingSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signing secret is required")
	}
	return &Verifier{secret: []byte(signingSecret)}, nil
}

// Verify checks the signature header against the raw body and, only when the
// signature holds, parses the event envelope. Every failure path rejects with
// a validation error before any storage access happens.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) (*Event, error) {
	if len(rawBody) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request body is empty")
	}
	header := strings.TrimSpace(signatureHeader)
	if header == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signature header missing")
	}
	header = strings.TrimPrefix(header, signaturePrefix)

	provided, err := hex.DecodeString(header)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode signature")
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	if !hmac.Equal(provided, expected) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "signature mismatch")
	}

	return ParseEvent(rawBody)
}

// Sign computes the signature the processor would send for a body. Used by
// tests and the local replay tooling.
func (v *Verifier) Sign(rawBody []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
