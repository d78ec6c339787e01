// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ghodss/yaml"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"
)

// ApplyManifest creates every object of a multi document YAML manifest.
// Objects that already exist are updated in place. Namespaced objects without
// a namespace are placed into namespace.
func (g *Gateway) ApplyManifest(ctx context.Context, namespace string, manifest []byte) ([]*unstructured.Unstructured, error) {
	objs, err := DecodeManifest(manifest)
	if err != nil {
		return nil, err
	}

	var applied []*unstructured.Unstructured

	for _, obj := range objs {
		result, err := g.applyObject(ctx, namespace, obj)
		if err != nil {
			return applied, err
		}
		applied = append(applied, result)
	}

	return applied, nil
}

// DecodeManifest splits a YAML stream into objects. Empty documents are skipped.
func DecodeManifest(manifest []byte) ([]*unstructured.Unstructured, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(manifest)))

	var objs []*unstructured.Unstructured

	for {
		doc, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return objs, nil
			}
			return nil, fmt.Errorf("Reading manifest: %w", err)
		}

		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}

		jsonDoc, err := yaml.YAMLToJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("Converting manifest document: %w", err)
		}
		if string(bytes.TrimSpace(jsonDoc)) == "null" {
			continue
		}

		obj := &unstructured.Unstructured{}

		err = obj.UnmarshalJSON(jsonDoc)
		if err != nil {
			return nil, fmt.Errorf("Unmarshaling manifest document: %w", err)
		}

		objs = append(objs, obj)
	}
}

func (g *Gateway) applyObject(ctx context.Context, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	gvk := obj.GroupVersionKind()

	mapping, err := g.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return nil, fmt.Errorf("Mapping %s: %w", gvk, err)
	}

	var resClient dynamic.ResourceInterface = g.dynClient.Resource(mapping.Resource)

	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		if len(obj.GetNamespace()) == 0 {
			obj.SetNamespace(namespace)
		}
		resClient = g.dynClient.Resource(mapping.Resource).Namespace(obj.GetNamespace())
	}

	resource := mapping.Resource.GroupResource().String()

	created, err := resClient.Create(ctx, obj, metav1.CreateOptions{})
	if err == nil {
		return created, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return nil, wrap("Creating", resource, obj.GetNamespace(), obj.GetName(), err)
	}

	existing, err := resClient.Get(ctx, obj.GetName(), metav1.GetOptions{})
	if err != nil {
		return nil, wrap("Fetching", resource, obj.GetNamespace(), obj.GetName(), err)
	}

	obj.SetResourceVersion(existing.GetResourceVersion())

	updated, err := resClient.Update(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		return nil, wrap("Updating", resource, obj.GetNamespace(), obj.GetName(), err)
	}

	return updated, nil
}

// defaultRESTMappings covers the kinds agents and their RBAC are shipped as,
// so a Gateway over fake or restricted clients does not need discovery.
var defaultRESTMappings = []meta.RESTMapping{
	{
		GroupVersionKind: schema.GroupVersionKind{Group: "", Version: "v1", Kind: "ConfigMap"},
		Scope:            meta.RESTScopeNamespace,
		Resource:         schema.GroupVersionResource{Group: "", Version: "v1", Resource: "configmaps"},
	},
	{
		GroupVersionKind: schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Secret"},
		Scope:            meta.RESTScopeNamespace,
		Resource:         schema.GroupVersionResource{Group: "", Version: "v1", Resource: "secrets"},
	},
	{
		GroupVersionKind: schema.GroupVersionKind{Group: "", Version: "v1", Kind: "ServiceAccount"},
		Scope:            meta.RESTScopeNamespace,
		Resource:         schema.GroupVersionResource{Group: "", Version: "v1", Resource: "serviceaccounts"},
	},
	{
		GroupVersionKind: schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Service"},
		Scope:            meta.RESTScopeNamespace,
		Resource:         schema.GroupVersionResource{Group: "", Version: "v1", Resource: "services"},
	},
	{
		GroupVersionKind: schema.GroupVersionKind{Group: "", Version: "v1", Kind: "Namespace"},
		Scope:            meta.RESTScopeRoot,
		Resource:         schema.GroupVersionResource{Group: "", Version: "v1", Resource: "namespaces"},
	},
	{
		GroupVersionKind: schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"},
		Scope:            meta.RESTScopeNamespace,
		Resource:         schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"},
	},
	{
		GroupVersionKind: schema.GroupVersionKind{Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "Role"},
		Scope:            meta.RESTScopeNamespace,
		Resource:         schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "roles"},
	},
	{
		GroupVersionKind: schema.GroupVersionKind{Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "RoleBinding"},
		Scope:            meta.RESTScopeNamespace,
		Resource:         schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "rolebindings"},
	},
	{
		GroupVersionKind: schema.GroupVersionKind{Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "ClusterRole"},
		Scope:            meta.RESTScopeRoot,
		Resource:         schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "clusterroles"},
	},
	{
		GroupVersionKind: schema.GroupVersionKind{Group: "rbac.authorization.k8s.io", Version: "v1", Kind: "ClusterRoleBinding"},
		Scope:            meta.RESTScopeRoot,
		Resource:         schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "clusterrolebindings"},
	},
}

func defaultRESTMapper() meta.RESTMapper {
	mapper := meta.NewDefaultRESTMapper(nil)
	for _, m := range defaultRESTMappings {
		singular := m.Resource.GroupVersion().WithResource(strings.ToLower(m.GroupVersionKind.Kind))
		mapper.AddSpecific(m.GroupVersionKind, m.Resource, singular, m.Scope)
	}
	return mapper
}
