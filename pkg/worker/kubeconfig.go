// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"fmt"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

const clusterEntryName = "worker"

// BuildKubeconfig returns a kubeconfig with embedded credentials
// authenticating user against server.
func BuildKubeconfig(server, user string, caData, certData, keyData []byte) ([]byte, error) {
	if server == "" {
		return nil, fmt.Errorf("Expected server to be non-empty")
	}
	if user == "" {
		return nil, fmt.Errorf("Expected user to be non-empty")
	}

	cfg := clientcmdapi.NewConfig()

	cluster := clientcmdapi.NewCluster()
	cluster.Server = server
	cluster.CertificateAuthorityData = caData
	cfg.Clusters[clusterEntryName] = cluster

	authInfo := clientcmdapi.NewAuthInfo()
	authInfo.ClientCertificateData = certData
	authInfo.ClientKeyData = keyData
	cfg.AuthInfos[user] = authInfo

	contextName := user + "@" + clusterEntryName

	kubeContext := clientcmdapi.NewContext()
	kubeContext.Cluster = clusterEntryName
	kubeContext.AuthInfo = user
	cfg.Contexts[contextName] = kubeContext
	cfg.CurrentContext = contextName

	out, err := clientcmd.Write(*cfg)
	if err != nil {
		return nil, fmt.Errorf("Serializing kubeconfig: %w", err)
	}
	return out, nil
}
