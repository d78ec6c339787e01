// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/primaza/clustertrust/pkg/gateway"
)

// Publisher installs access context secrets. Publishing replaces any
// existing secret of the same name: it is a delete followed by a create,
// so the secret is briefly absent while a publish is in flight.
type Publisher struct {
	gw  *gateway.Gateway
	log logr.Logger
}

func New(gw *gateway.Gateway, log logr.Logger) *Publisher {
	return &Publisher{gw, log}
}

// Publish stores payload under the kubeconfig key of secret namespace/name.
func (p *Publisher) Publish(ctx context.Context, namespace, name, payload string) error {
	return p.PublishWithTemplate(ctx, namespace, name, payload, SecretTemplate{})
}

func (p *Publisher) PublishWithTemplate(ctx context.Context, namespace, name, payload string, template SecretTemplate) error {
	log := p.log.WithValues("namespace", namespace, "name", name)

	err := p.Remove(ctx, namespace, name)
	if err != nil {
		return err
	}

	secret := NewContextSecret(namespace, name, payload)
	secret.ApplyTemplate(template)

	_, err = p.gw.CreateSecret(ctx, secret.AsSecret())
	if err != nil {
		return fmt.Errorf("Publishing access context: %w", err)
	}

	log.Info("Published access context")

	return nil
}

// Remove deletes secret namespace/name if it exists.
func (p *Publisher) Remove(ctx context.Context, namespace, name string) error {
	_, err := p.gw.GetSecret(ctx, namespace, name)
	if err != nil {
		if gateway.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("Replacing access context: %w", err)
	}

	err = p.gw.DeleteSecret(ctx, namespace, name)
	if err != nil && !gateway.IsNotFound(err) {
		return fmt.Errorf("Replacing access context: %w", err)
	}

	p.log.V(1).Info("Deleted previous access context", "namespace", namespace, "name", name)

	return nil
}
