// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// KubeconfigKey is the only payload key of an access context secret.
	KubeconfigKey = "kubeconfig"

	ManagedByLabel     = "app.kubernetes.io/managed-by"
	ManagedByValue     = "primazactl"
	AccessContextLabel = "primaza.io/access-context"
)

// SecretTemplate adds metadata and extra string data on top of the
// default access context secret.
type SecretTemplate struct {
	Labels      map[string]string
	Annotations map[string]string
	StringData  map[string]string
}

type ContextSecret struct {
	secret *corev1.Secret
}

// NewContextSecret builds the secret holding payload under KubeconfigKey.
func NewContextSecret(namespace, name, payload string) *ContextSecret {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels: map[string]string{
				ManagedByLabel:     ManagedByValue,
				AccessContextLabel: "true",
			},
		},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{KubeconfigKey: payload},
	}

	return &ContextSecret{secret}
}

func (p *ContextSecret) AsSecret() *corev1.Secret { return p.secret }

// ApplyTemplate merges labels, annotations and extra keys. The payload
// under KubeconfigKey is never overridden by a template.
func (p *ContextSecret) ApplyTemplate(template SecretTemplate) {
	if len(template.Annotations) > 0 {
		if p.secret.Annotations == nil {
			p.secret.Annotations = map[string]string{}
		}
		for k, v := range template.Annotations {
			p.secret.Annotations[k] = v
		}
	}

	for k, v := range template.Labels {
		p.secret.Labels[k] = v
	}

	for k, v := range template.StringData {
		if k == KubeconfigKey {
			continue
		}
		p.secret.StringData[k] = v
	}
}

// SecretValue returns the value stored under key, giving StringData
// precedence the same way the API server merges it into Data on write.
func SecretValue(secret *corev1.Secret, key string) ([]byte, bool) {
	if val, found := secret.StringData[key]; found {
		return []byte(val), true
	}
	val, found := secret.Data[key]
	return val, found
}
