// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/primaza/clustertrust/pkg/gateway"
	"github.com/primaza/clustertrust/pkg/poller"
	corev1 "k8s.io/api/core/v1"
)

func waitForSecretInNs(t *testing.T, gw *gateway.Gateway, nsName, name string) *corev1.Secret {
	var secret *corev1.Secret
	var lastErr error

	err := poller.WaitUntil(context.Background(), func(ctx context.Context) (bool, error) {
		secret, lastErr = gw.GetSecret(ctx, nsName, name)
		if gateway.IsNotFound(lastErr) {
			return false, nil
		}
		return lastErr == nil, lastErr
	}, time.Second, 30*time.Second)

	if err != nil {
		t.Fatalf("Expected to find secret '%s' but did not: %s (last error: %v)", name, err, lastErr)
	}
	return secret
}
