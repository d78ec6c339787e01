// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package identity_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/primaza/clustertrust/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var oidSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}

func Test_GenerateKeyPair(t *testing.T) {
	kp1, err := identity.GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, kp1.PrivateKey().N.BitLen(), 2048)
	assert.Equal(t, 65537, kp1.PublicKey().E)
	assert.False(t, kp1.PublicKey().Equal(kp2.PublicKey()), "identities must not share key material")
}

func Test_KeyPair_PrivateKeyPEM(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	pem1, err := kp.PrivateKeyPEM()
	require.NoError(t, err)
	pem2, err := kp.PrivateKeyPEM()
	require.NoError(t, err)
	assert.Equal(t, pem1, pem2)

	block, _ := pem.Decode([]byte(pem1))
	require.NotNil(t, block)
	assert.Equal(t, "PRIVATE KEY", block.Type)
	assert.Empty(t, block.Headers, "key must not be encrypted")

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	assert.True(t, kp.PrivateKey().Equal(parsed))
}

func Test_ParsePrivateKeyPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	t.Run("pkcs1", func(t *testing.T) {
		data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
		parsed, err := identity.ParsePrivateKeyPEM(data)
		require.NoError(t, err)
		assert.True(t, key.Equal(parsed))
	})

	t.Run("pkcs8", func(t *testing.T) {
		pkcs8, err := identity.NewKeyPair(key).PrivateKeyPEM()
		require.NoError(t, err)
		parsed, err := identity.ParsePrivateKeyPEM([]byte(pkcs8))
		require.NoError(t, err)
		assert.True(t, key.Equal(parsed))
	})

	t.Run("not pem", func(t *testing.T) {
		_, err := identity.ParsePrivateKeyPEM([]byte("garbage"))
		require.Error(t, err)
	})

	t.Run("unknown block", func(t *testing.T) {
		_, err := identity.ParsePrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unknown private key type")
	})
}

func Test_BuildSigningRequest(t *testing.T) {
	kp, err := identity.GenerateKeyPair()
	require.NoError(t, err)

	csrPEM, err := identity.BuildSigningRequest(kp)
	require.NoError(t, err)

	csr, err := identity.ParseSigningRequestPEM(csrPEM)
	require.NoError(t, err)

	t.Run("subject is fixed", func(t *testing.T) {
		assert.Equal(t, "primaza", csr.Subject.CommonName)
		assert.Equal(t, []string{"primaza"}, csr.Subject.Organization)
		assert.Equal(t, []string{"US"}, csr.Subject.Country)
		assert.Equal(t, []string{""}, csr.Subject.Province)
		assert.Equal(t, []string{""}, csr.Subject.Locality)
	})

	t.Run("single non-critical SAN", func(t *testing.T) {
		assert.Equal(t, []string{"primaza.io"}, csr.DNSNames)
		assert.Empty(t, csr.IPAddresses)
		assert.Empty(t, csr.EmailAddresses)
		assert.Empty(t, csr.URIs)

		var sanExts []pkix.Extension
		for _, ext := range csr.Extensions {
			if ext.Id.Equal(oidSubjectAltName) {
				sanExts = append(sanExts, ext)
			}
		}
		require.Len(t, sanExts, 1)
		assert.False(t, sanExts[0].Critical)
	})

	t.Run("signed with the identity key", func(t *testing.T) {
		assert.Equal(t, x509.SHA256WithRSA, csr.SignatureAlgorithm)
		assert.True(t, kp.PublicKey().Equal(csr.PublicKey))

		keyPEM, err := kp.PrivateKeyPEM()
		require.NoError(t, err)
		exported, err := identity.ParsePrivateKeyPEM([]byte(keyPEM))
		require.NoError(t, err)
		assert.True(t, exported.PublicKey.Equal(csr.PublicKey))
	})

	t.Run("rebuilt on demand", func(t *testing.T) {
		again, err := identity.BuildSigningRequest(kp)
		require.NoError(t, err)
		csr2, err := identity.ParseSigningRequestPEM(again)
		require.NoError(t, err)
		assert.Equal(t, csr.RawSubject, csr2.RawSubject)
		assert.True(t, kp.PublicKey().Equal(csr2.PublicKey))
	})
}

func Test_ParseSigningRequestPEM_Errors(t *testing.T) {
	_, err := identity.ParseSigningRequestPEM([]byte("not a pem"))
	require.Error(t, err)

	_, err = identity.ParseSigningRequestPEM(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CERTIFICATE REQUEST")

	_, err = identity.ParseSigningRequestPEM(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: []byte{1, 2, 3}}))
	require.Error(t, err)
}

func Test_CryptographicFailure(t *testing.T) {
	err := error(&identity.CryptographicFailure{Op: "Encoding", Err: errors.New("boom")})
	assert.True(t, errors.Is(err, identity.ErrCryptographicFailure))
	assert.Contains(t, err.Error(), "boom")
}
