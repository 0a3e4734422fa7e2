package cryptoutil

import (
	"crypto/ed25519"
	"fmt"
)

// Sign signs the given canonical JSON bytes with an Ed25519 private key.
// The protocol signs the raw UTF-8 canonical bytes directly; there is no
// domain-separation prefix or intermediate hash, so any RFC 8032-compliant
// Ed25519 verifier on the other end can check it without knowing anything
// about this protocol.
func Sign(priv ed25519.PrivateKey, canonicalJSON []byte) []byte {
	return ed25519.Sign(priv, canonicalJSON)
}

// Verify checks an Ed25519 signature over canonical JSON bytes.
func Verify(pub ed25519.PublicKey, canonicalJSON, signature []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, canonicalJSON, signature)
}

// ParsePublicKey validates and wraps a raw Ed25519 public key.
func ParsePublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("cryptoutil: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
