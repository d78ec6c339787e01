// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/primaza/clustertrust/pkg/cluster"
	"github.com/primaza/clustertrust/pkg/gateway"
	"github.com/primaza/clustertrust/pkg/identity"
	"github.com/primaza/clustertrust/pkg/poller"
	"github.com/primaza/clustertrust/pkg/publisher"
	"github.com/primaza/clustertrust/pkg/status"
	"github.com/primaza/clustertrust/pkg/worker"
)

const (
	DefaultNamespace = "primaza-system"

	ServiceClaimGroup   = "primaza.io"
	ServiceClaimVersion = "v1alpha1"
	ServiceClaimPlural  = "serviceclaims"
)

type AgentKind string

const (
	AgentApplication AgentKind = "application"
	AgentService     AgentKind = "service"
)

// DeploymentName returns the name of the deployment running the agent.
func (k AgentKind) DeploymentName() (string, error) {
	switch k {
	case AgentApplication:
		return "primaza-controller-agentapp", nil
	case AgentService:
		return "primaza-controller-agentsvc", nil
	default:
		return "", fmt.Errorf("Unknown agent kind '%s'", k)
	}
}

type Options struct {
	// Namespace where access contexts are installed and custom resources are read.
	Namespace string

	// Interval and Timeout apply to every Wait operation.
	Interval time.Duration
	Timeout  time.Duration

	Logger  logr.Logger
	Metrics *poller.Metrics
}

func (o Options) withDefaults() Options {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.Interval == 0 {
		o.Interval = poller.DefaultInterval
	}
	if o.Timeout == 0 {
		o.Timeout = poller.DefaultTimeout
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
	return o
}

// Cluster is the identity of a control-plane cluster together with the
// operations used to install access contexts on it and to verify that
// remote reconciliation converged. A Cluster is meant to be driven by a
// single caller.
type Cluster struct {
	handle  *cluster.Handle
	opts    Options
	keyPair *identity.KeyPair

	publisher *publisher.Publisher
	reader    *status.Reader
	poller    *poller.Poller
	log       logr.Logger
}

// New generates the cluster identity. The key pair is never rotated.
func New(handle *cluster.Handle, opts Options) (*Cluster, error) {
	if handle == nil || handle.Gateway == nil {
		return nil, fmt.Errorf("Expected cluster handle with a gateway")
	}

	opts = opts.withDefaults()

	keyPair, err := identity.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("Generating identity of cluster '%s': %w", handle.Name, err)
	}

	log := opts.Logger.WithName("controlplane").WithValues("cluster", handle.Name)

	return &Cluster{
		handle:    handle,
		opts:      opts,
		keyPair:   keyPair,
		publisher: publisher.New(handle.Gateway, log.WithName("publisher")),
		reader:    status.NewReader(handle.Gateway, log.WithName("status")),
		poller:    poller.New(log.WithName("poller"), opts.Metrics),
		log:       log,
	}, nil
}

func (c *Cluster) Handle() *cluster.Handle { return c.handle }

func (c *Cluster) Namespace() string { return c.opts.Namespace }

// CreateSigningRequest builds a new PEM signing request for the cluster identity.
func (c *Cluster) CreateSigningRequest() ([]byte, error) {
	return identity.BuildSigningRequest(c.keyPair)
}

func (c *Cluster) PrivateKeyPEM() (string, error) {
	return c.keyPair.PrivateKeyPEM()
}

// InstallAccessContext stores payload in secret secretName, replacing any previous one.
func (c *Cluster) InstallAccessContext(ctx context.Context, secretName, payload string) error {
	return c.publisher.Publish(ctx, c.opts.Namespace, secretName, payload)
}

// WaitForAgentPresence waits until the agent deployment exists in namespace.
func (c *Cluster) WaitForAgentPresence(ctx context.Context, namespace string, kind AgentKind) error {
	deploymentName, err := kind.DeploymentName()
	if err != nil {
		return err
	}

	return c.wait(ctx, fmt.Sprintf("agent-present/%s/%s", namespace, deploymentName), func(ctx context.Context) (bool, error) {
		_, err := c.handle.Gateway.GetDeployment(ctx, namespace, deploymentName)
		switch {
		case err == nil:
			return true, nil
		case gateway.IsNotFound(err):
			return false, nil
		default:
			return false, err
		}
	})
}

// WaitForCustomResourceStatus waits until status.state of the named custom
// resource in the cluster namespace equals expectedState.
func (c *Cluster) WaitForCustomResourceStatus(ctx context.Context,
	group, version, plural, name, expectedState string) error {

	res := c.customResource(group, version, plural, name)

	return c.wait(ctx, fmt.Sprintf("status-state/%s/%s", res.GVR().GroupResource(), name), func(ctx context.Context) (bool, error) {
		obj, err := c.reader.ReadStatus(ctx, res)
		if err != nil {
			return false, err
		}
		state, found, err := status.State(obj)
		if err != nil {
			return false, fmt.Errorf("Reading state of %s: %w", res, err)
		}
		return found && state == expectedState, nil
	})
}

func (c *Cluster) WaitForServiceClaimStatus(ctx context.Context, name, expectedState string) error {
	return c.WaitForCustomResourceStatus(ctx, ServiceClaimGroup, ServiceClaimVersion, ServiceClaimPlural, name, expectedState)
}

// WaitForCustomResourceField waits until the status field selected by path equals expected.
func (c *Cluster) WaitForCustomResourceField(ctx context.Context,
	group, version, plural, name string, path status.FieldPath, expected string) error {

	res := c.customResource(group, version, plural, name)

	return c.wait(ctx, fmt.Sprintf("status-field/%s/%s", res.GVR().GroupResource(), name), func(ctx context.Context) (bool, error) {
		obj, err := c.reader.ReadStatus(ctx, res)
		if err != nil {
			return false, err
		}
		val, found, err := path.EvaluateWith(obj)
		if err != nil {
			return false, err
		}
		return found && val == expected, nil
	})
}

// WaitForSecretValue waits until key of the secret holds expectedValue.
// A secret that does not exist yet is still propagating.
func (c *Cluster) WaitForSecretValue(ctx context.Context, namespace, secretName, key, expectedValue string) error {
	return c.wait(ctx, fmt.Sprintf("secret-value/%s/%s/%s", namespace, secretName, key), func(ctx context.Context) (bool, error) {
		secret, err := c.handle.Gateway.GetSecret(ctx, namespace, secretName)
		switch {
		case gateway.IsNotFound(err):
			return false, nil
		case err != nil:
			return false, err
		}
		val, found := publisher.SecretValue(secret, key)
		return found && string(val) == expectedValue, nil
	})
}

// DeployAgent applies an agent manifest in namespace.
func (c *Cluster) DeployAgent(ctx context.Context, namespace string, manifest []byte) error {
	objs, err := c.handle.Gateway.ApplyManifest(ctx, namespace, manifest)
	if err != nil {
		return fmt.Errorf("Deploying agent: %w", err)
	}
	c.log.Info("Applied agent manifest", "namespace", namespace, "objects", len(objs))
	return nil
}

// RegisterOn obtains an access context for this identity from a worker cluster.
func (c *Cluster) RegisterOn(ctx context.Context, workerHandle *cluster.Handle, csrName string) (string, error) {
	csrPEM, err := c.CreateSigningRequest()
	if err != nil {
		return "", err
	}

	keyPEM, err := c.PrivateKeyPEM()
	if err != nil {
		return "", err
	}

	registrar := worker.NewRegistrar(workerHandle.Gateway, c.poller, c.log).
		WithPolling(c.opts.Interval, c.opts.Timeout)

	return registrar.Register(ctx, worker.Request{
		CSRName:           csrName,
		SigningRequestPEM: csrPEM,
		PrivateKeyPEM:     keyPEM,
		Server:            workerHandle.Server(),
		CAData:            workerHandle.CAData(),
	})
}

// JoinWorker registers on the worker and installs the resulting access
// context as secretName.
func (c *Cluster) JoinWorker(ctx context.Context, workerHandle *cluster.Handle, csrName, secretName string) error {
	kubeconfig, err := c.RegisterOn(ctx, workerHandle, csrName)
	if err != nil {
		return fmt.Errorf("Registering on worker '%s': %w", workerHandle.Name, err)
	}
	return c.InstallAccessContext(ctx, secretName, kubeconfig)
}

func (c *Cluster) customResource(group, version, plural, name string) gateway.CustomResource {
	return gateway.CustomResource{
		Group:     group,
		Version:   version,
		Namespace: c.opts.Namespace,
		Plural:    plural,
		Name:      name,
	}
}

func (c *Cluster) wait(ctx context.Context, name string, condition poller.ConditionFunc) error {
	return c.poller.Wait(ctx, poller.Check{
		Name:      name,
		Interval:  c.opts.Interval,
		Timeout:   c.opts.Timeout,
		Condition: condition,
	})
}
