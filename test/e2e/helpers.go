// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	"context"
	"testing"

	"github.com/primaza/clustertrust/pkg/cluster"
	"github.com/primaza/clustertrust/pkg/controlplane"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

func startCluster(t *testing.T, env Env, flavor, name string, role cluster.Role) *cluster.Handle {
	prov, err := cluster.NewProvisioner(cluster.Flavor(flavor), name, cluster.ProvisionerOpts{
		KubeconfigPath: env.Kubeconfig,
		Role:           role,
		Log:            zap.New(zap.UseDevMode(true)),
	})
	if err != nil {
		t.Fatalf("Building provisioner: %s", err)
	}

	handle, err := prov.Start(context.Background())
	if err != nil {
		t.Fatalf("Starting cluster '%s': %s", name, err)
	}
	return handle
}

func buildControlPlane(t *testing.T, env Env) *controlplane.Cluster {
	handle := startCluster(t, env, env.Flavor, env.Cluster, cluster.RoleControlPlane)

	facade, err := controlplane.New(handle, controlplane.Options{
		Namespace: env.Namespace,
		Logger:    zap.New(zap.UseDevMode(true)),
	})
	if err != nil {
		t.Fatalf("Building control plane: %s", err)
	}
	return facade
}
