// Package cryptoutil holds the signing and key-encoding primitives shared
// by the identity registry and the envelope auth pipeline: Ed25519
// signing/verification over canonical JSON, X25519 key-agreement key
// generation, and multibase/multicodec encoding of public keys for DID
// documents.
package cryptoutil

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-varint"
)

// KeyPair bundles the two key types a DID document carries: one Ed25519
// signing key and one X25519 key-agreement key.
type KeyPair struct {
	SigningPublic  ed25519.PublicKey
	SigningPrivate ed25519.PrivateKey
	AgreementPublic  *ecdh.PublicKey
	AgreementPrivate *ecdh.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 signing key and X25519 agreement
// key, as required for a new DID document.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: generate ed25519 key: %w", err)
	}

	agreementPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: generate x25519 key: %w", err)
	}

	return &KeyPair{
		SigningPublic:    pub,
		SigningPrivate:   priv,
		AgreementPublic:  agreementPriv.PublicKey(),
		AgreementPrivate: agreementPriv,
	}, nil
}

// EncodeEd25519PublicKey multibase/multicodec-encodes an Ed25519 public key
// for embedding in a DID document, as `z`-prefixed base58btc per the
// did:key convention.
func EncodeEd25519PublicKey(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("cryptoutil: ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return encodeMulticodec(multicodec.Ed25519Pub, pub)
}

// DecodeEd25519PublicKey reverses EncodeEd25519PublicKey.
func DecodeEd25519PublicKey(encoded string) (ed25519.PublicKey, error) {
	data, err := decodeMulticodec(encoded, multicodec.Ed25519Pub)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("cryptoutil: decoded ed25519 key has %d bytes, want %d", len(data), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(data), nil
}

// EncodeX25519PublicKey multibase/multicodec-encodes an X25519 public key.
func EncodeX25519PublicKey(pub *ecdh.PublicKey) (string, error) {
	raw := pub.Bytes()
	return encodeMulticodec(multicodec.X25519Pub, raw)
}

// DecodeX25519PublicKey reverses EncodeX25519PublicKey.
func DecodeX25519PublicKey(encoded string) (*ecdh.PublicKey, error) {
	data, err := decodeMulticodec(encoded, multicodec.X25519Pub)
	if err != nil {
		return nil, err
	}
	pub, err := ecdh.X25519().NewPublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: invalid x25519 public key: %w", err)
	}
	return pub, nil
}

func encodeMulticodec(code multicodec.Code, raw []byte) (string, error) {
	prefix := varint.ToUvarint(uint64(code))
	tagged := append(prefix, raw...)
	encoded, err := multibase.Encode(multibase.Base58BTC, tagged)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: multibase encode: %w", err)
	}
	return encoded, nil
}

func decodeMulticodec(encoded string, want multicodec.Code) ([]byte, error) {
	_, tagged, err := multibase.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: multibase decode: %w", err)
	}
	code, n, err := varint.FromUvarint(tagged)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: read multicodec prefix: %w", err)
	}
	if multicodec.Code(code) != want {
		return nil, fmt.Errorf("cryptoutil: unexpected multicodec %#x, want %#x", code, want)
	}
	return tagged[n:], nil
}
