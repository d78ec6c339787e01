// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"

	cfgtypes "github.com/cloudfoundry/config-server/types"
)

// ErrCryptographicFailure marks errors after which an identity cannot be used.
var ErrCryptographicFailure = errors.New("cryptographic failure")

// CryptographicFailure wraps an underlying crypto library error.
type CryptographicFailure struct {
	Op  string
	Err error
}

func (e *CryptographicFailure) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrCryptographicFailure, e.Op, e.Err)
}

func (e *CryptographicFailure) Unwrap() error { return e.Err }

func (e *CryptographicFailure) Is(target error) bool { return target == ErrCryptographicFailure }

func cryptoFailure(op string, err error) error {
	return &CryptographicFailure{Op: op, Err: err}
}

// KeyPair is the RSA identity of one control-plane cluster.
// Its PEM export is derived once and never changes afterwards.
type KeyPair struct {
	key *rsa.PrivateKey

	pemOnce sync.Once
	pem     string
	pemErr  error
}

// GenerateKeyPair returns a fresh 2048-bit RSA key pair.
func GenerateKeyPair() (*KeyPair, error) {
	gen := cfgtypes.NewRSAKeyGenerator()

	rsaKeyVal, err := gen.Generate(nil)
	if err != nil {
		return nil, cryptoFailure("Generating rsa key", err)
	}

	key, err := ParsePrivateKeyPEM([]byte(rsaKeyVal.(cfgtypes.RSAKey).PrivateKey))
	if err != nil {
		return nil, cryptoFailure("Parsing generated rsa key", err)
	}

	return NewKeyPair(key), nil
}

// NewKeyPair wraps an existing key.
func NewKeyPair(key *rsa.PrivateKey) *KeyPair {
	return &KeyPair{key: key}
}

func (k *KeyPair) PrivateKey() *rsa.PrivateKey { return k.key }

func (k *KeyPair) PublicKey() *rsa.PublicKey { return &k.key.PublicKey }

// PrivateKeyPEM returns the unencrypted PKCS8 encoding of the private key.
func (k *KeyPair) PrivateKeyPEM() (string, error) {
	k.pemOnce.Do(func() {
		keyBytes, err := x509.MarshalPKCS8PrivateKey(k.key)
		if err != nil {
			k.pemErr = cryptoFailure("Encoding private key", err)
			return
		}
		k.pem = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes}))
	})
	return k.pem, k.pemErr
}

// ParsePrivateKeyPEM decodes a PKCS8 or PKCS1 PEM encoded RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("Private key did not contain PEM formatted block")
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("Parsing pkcs8 private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("Expected rsa private key but was %T", key)
		}
		return rsaKey, nil

	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("Parsing private key: %w", err)
		}
		return key, nil

	default:
		return nil, fmt.Errorf("Unknown private key type '%s'", block.Type)
	}
}
