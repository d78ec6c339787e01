// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
)

// Fixed subject of the signing request. Only one logical actor (the
// control plane) ever authenticates with it.
const (
	SubjectCountry      = "US"
	SubjectOrganization = "primaza"
	SubjectCommonName   = "primaza"
	SANDNSName          = "primaza.io"

	signingRequestPEMType = "CERTIFICATE REQUEST"
)

// BuildSigningRequest returns a PEM encoded PKCS#10 request signed by kp.
func BuildSigningRequest(kp *KeyPair) ([]byte, error) {
	template := &x509.CertificateRequest{
		Subject: pkix.Name{
			Country:      []string{SubjectCountry},
			Province:     []string{""},
			Locality:     []string{""},
			Organization: []string{SubjectOrganization},
			CommonName:   SubjectCommonName,
		},
		// Encoded as a non-critical subjectAltName extension
		DNSNames:           []string{SANDNSName},
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, template, kp.PrivateKey())
	if err != nil {
		return nil, cryptoFailure("Creating certificate signing request", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: signingRequestPEMType, Bytes: der}), nil
}

// ParseSigningRequestPEM decodes a PEM signing request and verifies its self-signature.
func ParseSigningRequestPEM(data []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("Certificate signing request did not contain PEM formatted block")
	}
	if block.Type != signingRequestPEMType {
		return nil, fmt.Errorf("Expected PEM block '%s' but was '%s'", signingRequestPEMType, block.Type)
	}

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("Parsing certificate signing request: %w", err)
	}

	err = csr.CheckSignature()
	if err != nil {
		return nil, fmt.Errorf("Verifying certificate signing request signature: %w", err)
	}

	return csr, nil
}
