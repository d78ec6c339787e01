// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/primaza/clustertrust/pkg/gateway"
	"github.com/primaza/clustertrust/pkg/poller"
	certificatesv1 "k8s.io/api/certificates/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	DefaultUser = "primaza"

	approvalReason  = "PrimazaRegistration"
	approvalMessage = "Approved for primaza cluster registration"
	managedByLabel  = "app.kubernetes.io/managed-by"
	managedByValue  = "primazactl"
)

var ErrSigningRequestDenied = errors.New("Signing request was not approved")

// Request describes the identity to register on a worker cluster.
type Request struct {
	CSRName           string
	SigningRequestPEM []byte
	PrivateKeyPEM     string

	// Server and CAData describe how the worker API server is reached
	// from the control plane.
	Server string
	CAData []byte

	// User defaults to DefaultUser.
	User              string
	ExpirationSeconds *int32
}

func (r Request) validate() error {
	switch {
	case r.CSRName == "":
		return fmt.Errorf("Expected CSR name to be non-empty")
	case len(r.SigningRequestPEM) == 0:
		return fmt.Errorf("Expected signing request to be non-empty")
	case r.PrivateKeyPEM == "":
		return fmt.Errorf("Expected private key to be non-empty")
	case r.Server == "":
		return fmt.Errorf("Expected server to be non-empty")
	}
	return nil
}

// Registrar gets a signing request issued by a worker cluster and turns
// the issued certificate into an access context kubeconfig.
type Registrar struct {
	gw       *gateway.Gateway
	poller   *poller.Poller
	log      logr.Logger
	interval time.Duration
	timeout  time.Duration
}

func NewRegistrar(gw *gateway.Gateway, p *poller.Poller, log logr.Logger) *Registrar {
	return &Registrar{gw: gw, poller: p, log: log.WithName("worker"),
		interval: poller.DefaultInterval, timeout: poller.DefaultTimeout}
}

// WithPolling overrides how long Register waits for the certificate.
func (r *Registrar) WithPolling(interval, timeout time.Duration) *Registrar {
	r.interval = interval
	r.timeout = timeout
	return r
}

// Register returns kubeconfig YAML for the identity in req.
func (r *Registrar) Register(ctx context.Context, req Request) (string, error) {
	err := req.validate()
	if err != nil {
		return "", err
	}
	if req.User == "" {
		req.User = DefaultUser
	}

	log := r.log.WithValues("csr", req.CSRName)

	err = r.gw.DeleteCertificateSigningRequest(ctx, req.CSRName)
	if err != nil && !gateway.IsNotFound(err) {
		return "", fmt.Errorf("Removing previous signing request: %w", err)
	}

	csr := &certificatesv1.CertificateSigningRequest{
		ObjectMeta: metav1.ObjectMeta{
			Name:   req.CSRName,
			Labels: map[string]string{managedByLabel: managedByValue},
		},
		Spec: certificatesv1.CertificateSigningRequestSpec{
			Request:           req.SigningRequestPEM,
			SignerName:        certificatesv1.KubeAPIServerClientSignerName,
			Usages:            []certificatesv1.KeyUsage{certificatesv1.UsageClientAuth},
			ExpirationSeconds: req.ExpirationSeconds,
		},
	}

	created, err := r.gw.CreateCertificateSigningRequest(ctx, csr)
	if err != nil {
		return "", fmt.Errorf("Submitting signing request: %w", err)
	}

	_, err = r.gw.ApproveCertificateSigningRequest(ctx, created, approvalReason, approvalMessage)
	if err != nil {
		return "", fmt.Errorf("Approving signing request: %w", err)
	}

	log.Info("Signing request approved")

	var certificate []byte

	err = r.poller.Wait(ctx, poller.Check{
		Name:     "certificate-issued/" + req.CSRName,
		Interval: r.interval,
		Timeout:  r.timeout,
		Condition: func(ctx context.Context) (bool, error) {
			current, err := r.gw.GetCertificateSigningRequest(ctx, req.CSRName)
			if err != nil {
				return false, err
			}
			for _, cond := range current.Status.Conditions {
				if cond.Type == certificatesv1.CertificateDenied || cond.Type == certificatesv1.CertificateFailed {
					return false, fmt.Errorf("%w: %s %s", ErrSigningRequestDenied, cond.Type, cond.Message)
				}
			}
			if len(current.Status.Certificate) == 0 {
				return false, nil
			}
			certificate = current.Status.Certificate
			return true, nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("Waiting for issued certificate: %w", err)
	}

	kubeconfig, err := BuildKubeconfig(req.Server, req.User, req.CAData, certificate, []byte(req.PrivateKeyPEM))
	if err != nil {
		return "", err
	}

	log.Info("Worker access context built", "user", req.User, "server", req.Server)

	return string(kubeconfig), nil
}
