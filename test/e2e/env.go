// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	"os"
	"testing"
)

// Env describes the clusters end-to-end tests run against.
type Env struct {
	Namespace  string
	Flavor     string
	Cluster    string
	Kubeconfig string

	// Worker is optional; join tests are skipped without it.
	Worker       string
	WorkerFlavor string
}

// BuildEnv reads the environment and skips t when no cluster is configured.
func BuildEnv(t *testing.T) Env {
	env := Env{
		Namespace:    os.Getenv("PRIMAZA_E2E_NAMESPACE"),
		Flavor:       os.Getenv("PRIMAZA_E2E_FLAVOR"),
		Cluster:      os.Getenv("PRIMAZA_E2E_CLUSTER"),
		Kubeconfig:   os.Getenv("KUBECONFIG"),
		Worker:       os.Getenv("PRIMAZA_E2E_WORKER"),
		WorkerFlavor: os.Getenv("PRIMAZA_E2E_WORKER_FLAVOR"),
	}

	if env.Cluster == "" {
		t.Skip("Expected env variable PRIMAZA_E2E_CLUSTER to be non-empty")
	}
	if env.Namespace == "" {
		env.Namespace = "primaza-system"
	}
	if env.Flavor == "" {
		env.Flavor = "kind"
	}
	if env.WorkerFlavor == "" {
		env.WorkerFlavor = env.Flavor
	}

	return env
}
