// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/primaza/clustertrust/pkg/gateway"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

type Flavor string

const (
	FlavorKind       Flavor = "kind"
	FlavorMinikube   Flavor = "minikube"
	FlavorKubeconfig Flavor = "kubeconfig"
)

// Provisioner attaches to an already running cluster.
type Provisioner interface {
	Name() string
	Start(ctx context.Context) (*Handle, error)
}

type ProvisionerOpts struct {
	// KubeconfigPath defaults to the standard loading rules ($KUBECONFIG, ~/.kube/config).
	KubeconfigPath string
	// Context overrides the context derived from the flavor.
	Context string
	Role    Role
	Log     logr.Logger
}

func NewProvisioner(flavor Flavor, clusterName string, opts ProvisionerOpts) (Provisioner, error) {
	if clusterName == "" {
		return nil, fmt.Errorf("Expected cluster name to be non-empty")
	}

	if opts.Log.GetSink() == nil {
		opts.Log = logr.Discard()
	}
	if opts.Role == "" {
		opts.Role = RoleControlPlane
	}

	kubeContext := opts.Context

	if kubeContext == "" {
		switch flavor {
		case FlavorKind:
			kubeContext = "kind-" + clusterName
		case FlavorMinikube:
			kubeContext = clusterName
		case FlavorKubeconfig:
			// current context of the kubeconfig
		default:
			return nil, fmt.Errorf("Unknown cluster flavor '%s'", flavor)
		}
	}

	return &kubeconfigProvisioner{
		name:    clusterName,
		flavor:  flavor,
		path:    opts.KubeconfigPath,
		context: kubeContext,
		role:    opts.Role,
		log:     opts.Log.WithName("provisioner").WithValues("cluster", clusterName, "flavor", flavor),
	}, nil
}

type kubeconfigProvisioner struct {
	name    string
	flavor  Flavor
	path    string
	context string
	role    Role
	log     logr.Logger
}

var _ Provisioner = &kubeconfigProvisioner{}

func (p *kubeconfigProvisioner) Name() string { return p.name }

// Start loads the kubeconfig context and verifies the API server answers.
func (p *kubeconfigProvisioner) Start(ctx context.Context) (*Handle, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if p.path != "" {
		loadingRules.ExplicitPath = p.path
	}

	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules, &clientcmd.ConfigOverrides{CurrentContext: p.context})

	rawConfig, err := clientConfig.RawConfig()
	if err != nil {
		return nil, fmt.Errorf("Loading kubeconfig for cluster '%s': %w", p.name, err)
	}

	contextName := p.context
	if contextName == "" {
		contextName = rawConfig.CurrentContext
	}

	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("Building client config for context '%s': %w", contextName, err)
	}

	err = rest.LoadTLSFiles(restConfig)
	if err != nil {
		return nil, fmt.Errorf("Loading TLS files for context '%s': %w", contextName, err)
	}

	gw, err := gateway.NewForConfig(restConfig)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := gw.ServerVersion()
	if err != nil {
		return nil, fmt.Errorf("Reaching cluster '%s': %w", p.name, err)
	}

	p.log.Info("Attached to cluster", "context", contextName, "server", restConfig.Host, "version", info.GitVersion)

	return &Handle{
		Name:       p.name,
		Role:       p.role,
		Context:    contextName,
		RESTConfig: restConfig,
		Gateway:    gw,
		rawConfig:  rawConfig,
	}, nil
}
