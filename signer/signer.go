// Package signer produces self-contained signed activity envelopes. Every
// call generates a fresh RSA key pair, signs the canonical form of the
// activity with RSA-PSS over SHA-256 and ships the public key alongside the
// signature, so verification never needs a key registry.
package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"io"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/canonical"
)

// KeyBits is the modulus size of every per-activity key.
const KeyBits = 2048

var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthAuto,
	Hash:       crypto.SHA256,
}

// Envelope carries a signed activity. The private key is discarded after
// signing and never leaves the Sign call.
type Envelope struct {
	ActivityDataJSON     string `json:"activityDataJson"`
	ActivitySignature    string `json:"activitySignature"`
	ActivityPublicKeyPem string `json:"activityPublicKeyPem"`
}

// Signer signs activity bags with one-off keys.
type Signer struct {
	random io.Reader
}

// NewSigner returns a signer backed by crypto/rand.
func NewSigner() *Signer {
	return &Signer{random: rand.Reader}
}

// Sign canonicalizes bag, generates a new key pair and signs the bytes.
func (s *Signer) Sign(bag *canonical.Bag) (*Envelope, error) {
	data, err := canonical.Canonicalize(bag)
	if err != nil {
		return nil, apperr.ContractViolation("ACTIVITY_NOT_SERIALIZABLE", "Activity data could not be canonicalized", err)
	}

	key, err := rsa.GenerateKey(s.random, KeyBits)
	if err != nil {
		return nil, apperr.Internal("KEY_GENERATION_FAILED", "Failed to generate activity key pair", err)
	}

	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(s.random, key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, apperr.Internal("SIGNING_FAILED", "Failed to sign activity data", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, apperr.Internal("PUBLIC_KEY_ENCODING_FAILED", "Failed to encode activity public key", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	return &Envelope{
		ActivityDataJSON:     string(data),
		ActivitySignature:    hex.EncodeToString(sig),
		ActivityPublicKeyPem: string(pubPEM),
	}, nil
}

// Verify checks the envelope signature against its embedded public key.
func Verify(env *Envelope) error {
	if env == nil {
		return apperr.Validation("ENVELOPE_MISSING", "No envelope to verify", nil)
	}

	block, _ := pem.Decode([]byte(env.ActivityPublicKeyPem))
	if block == nil {
		return apperr.Validation("PUBLIC_KEY_INVALID", "Public key is not PEM encoded", nil)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return apperr.Validation("PUBLIC_KEY_INVALID", "Public key could not be parsed", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return apperr.Validation("PUBLIC_KEY_INVALID", "Public key is not an RSA key", nil)
	}

	sig, err := hex.DecodeString(env.ActivitySignature)
	if err != nil {
		return apperr.Validation("SIGNATURE_INVALID", "Signature is not hex encoded", err)
	}

	digest := sha256.Sum256([]byte(env.ActivityDataJSON))
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions); err != nil {
		return apperr.Validation("SIGNATURE_MISMATCH", "Signature does not match activity data", err)
	}
	return nil
}
