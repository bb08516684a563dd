// Package obfuscate encodes numeric amounts for storage.
//
// The sealed codec derives one key per user from a master secret with HKDF
// and seals the value with XChaCha20-Poly1305, so a leaked document of one
// user says nothing about another user's values. The plain codec stores the
// number as text and offers no confidentiality at all; it exists for local
// setups where the store itself is trusted.
package obfuscate

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	ModeSealed = "sealed"
	ModePlain  = "plain"

	sealedPrefix = "v2:"
	keyInfo      = "lifesync/amount/v2/"
)

var (
	ErrMalformed   = errors.New("malformed encoded amount")
	ErrShortSecret = errors.New("obfuscation secret must be at least 16 bytes")
)

// Codec converts amounts to and from their stored text form.
type Codec interface {
	Encode(uid string, v float64) (string, error)
	Decode(uid string, s string) (float64, error)
	Mode() string
}

// New returns the codec for mode. secret is only used by the sealed codec.
func New(mode string, secret []byte) (Codec, error) {
	switch mode {
	case ModePlain:
		return Plain{}, nil
	case ModeSealed, "":
		return NewSealed(secret)
	default:
		return nil, fmt.Errorf("unknown obfuscation mode %q", mode)
	}
}

// Sealed is the per-user authenticated codec.
type Sealed struct {
	secret []byte

	mu   sync.Mutex
	keys map[string][]byte
}

func NewSealed(secret []byte) (*Sealed, error) {
	if len(secret) < 16 {
		return nil, ErrShortSecret
	}
	return &Sealed{secret: append([]byte(nil), secret...), keys: map[string][]byte{}}, nil
}

func (s *Sealed) Mode() string { return ModeSealed }

func (s *Sealed) Encode(uid string, v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", fmt.Errorf("cannot encode %v", v)
	}
	aead, err := s.aead(uid)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	plain := []byte(strconv.FormatFloat(v, 'g', -1, 64))
	sealed := aead.Seal(nonce, nonce, plain, []byte(uid))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *Sealed) Decode(uid string, text string) (float64, error) {
	if !strings.HasPrefix(text, sealedPrefix) {
		// Values written by the plain codec stay readable.
		return Plain{}.Decode(uid, text)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(text, sealedPrefix))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	aead, err := s.aead(uid)
	if err != nil {
		return 0, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return 0, ErrMalformed
	}
	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, []byte(uid))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	v, err := strconv.ParseFloat(string(plain), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

func (s *Sealed) aead(uid string) (cipher.AEAD, error) {
	s.mu.Lock()
	key, ok := s.keys[uid]
	if !ok {
		key = make([]byte, chacha20poly1305.KeySize)
		r := hkdf.New(sha256.New, s.secret, nil, []byte(keyInfo+uid))
		if _, err := io.ReadFull(r, key); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("derive key: %w", err)
		}
		s.keys[uid] = key
	}
	s.mu.Unlock()
	return chacha20poly1305.NewX(key)
}

// Plain stores amounts as decimal text. Not confidential.
type Plain struct{}

func (Plain) Mode() string { return ModePlain }

func (Plain) Encode(_ string, v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", fmt.Errorf("cannot encode %v", v)
	}
	return strconv.FormatFloat(v, 'g', -1, 64), nil
}

func (Plain) Decode(_ string, s string) (float64, error) {
	if strings.HasPrefix(s, sealedPrefix) {
		return 0, fmt.Errorf("%w: sealed value needs the sealed codec", ErrMalformed)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrMalformed
	}
	return v, nil
}
