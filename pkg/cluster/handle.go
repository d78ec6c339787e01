// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"fmt"

	"github.com/primaza/clustertrust/pkg/gateway"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

type Role string

const (
	RoleControlPlane Role = "control-plane"
	RoleWorker       Role = "worker"
)

// Handle is a started cluster: its name, REST configuration and the
// gateway used to talk to it.
type Handle struct {
	Name       string
	Role       Role
	Context    string
	RESTConfig *rest.Config
	Gateway    *gateway.Gateway

	rawConfig clientcmdapi.Config
}

// NewHandle wraps existing clients, e.g. fake ones.
func NewHandle(name string, role Role, restConfig *rest.Config, gw *gateway.Gateway) *Handle {
	if restConfig == nil {
		restConfig = &rest.Config{}
	}
	return &Handle{Name: name, Role: role, Context: name, RESTConfig: restConfig, Gateway: gw}
}

func (h *Handle) Server() string { return h.RESTConfig.Host }

func (h *Handle) CAData() []byte { return h.RESTConfig.CAData }

// KubeconfigYAML returns a self-contained kubeconfig selecting the handle's context.
func (h *Handle) KubeconfigYAML() ([]byte, error) {
	var cfg *clientcmdapi.Config

	if _, found := h.rawConfig.Contexts[h.Context]; found {
		cfg = h.rawConfig.DeepCopy()
		cfg.CurrentContext = h.Context

		err := clientcmdapi.MinifyConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("Minifying kubeconfig of cluster '%s': %w", h.Name, err)
		}

		err = clientcmdapi.FlattenConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("Flattening kubeconfig of cluster '%s': %w", h.Name, err)
		}
	} else {
		cfg = h.configFromREST()
	}

	out, err := clientcmd.Write(*cfg)
	if err != nil {
		return nil, fmt.Errorf("Serializing kubeconfig of cluster '%s': %w", h.Name, err)
	}
	return out, nil
}

func (h *Handle) configFromREST() *clientcmdapi.Config {
	cfg := clientcmdapi.NewConfig()

	cluster := clientcmdapi.NewCluster()
	cluster.Server = h.RESTConfig.Host
	cluster.CertificateAuthorityData = h.RESTConfig.CAData
	cluster.InsecureSkipTLSVerify = h.RESTConfig.Insecure

	authInfo := clientcmdapi.NewAuthInfo()
	authInfo.ClientCertificateData = h.RESTConfig.CertData
	authInfo.ClientKeyData = h.RESTConfig.KeyData
	authInfo.Token = h.RESTConfig.BearerToken

	kubeContext := clientcmdapi.NewContext()
	kubeContext.Cluster = h.Name
	kubeContext.AuthInfo = h.Name

	cfg.Clusters[h.Name] = cluster
	cfg.AuthInfos[h.Name] = authInfo
	cfg.Contexts[h.Context] = kubeContext
	cfg.CurrentContext = h.Context

	return cfg
}
