package registry

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

// Signer computes HMAC-SHA256 manifest signatures.
type Signer struct {
	key []byte
}

// NewSigner returns a signer for key.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.WrapInvalid(nil, "Signer", "NewSigner", "empty signing key")
	}
	return &Signer{key: append([]byte(nil), key...)}, nil
}

// Sign returns the hex signature of m with its Signature field cleared.
func (s *Signer) Sign(m Manifest) (string, error) {
	sum, err := s.mac(m)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// Verify reports whether m.Signature matches its content.
func (s *Signer) Verify(m Manifest) bool {
	want, err := hex.DecodeString(m.Signature)
	if err != nil || len(want) == 0 {
		return false
	}
	got, err := s.mac(m)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}

func (s *Signer) mac(m Manifest) ([]byte, error) {
	m.Signature = ""
	canonical, err := json.Marshal(m)
	if err != nil {
		return nil, errors.WrapFatal(err, "Signer", "Sign", "encode manifest")
	}
	h := hmac.New(sha256.New, s.key)
	h.Write(canonical)
	return h.Sum(nil), nil
}
