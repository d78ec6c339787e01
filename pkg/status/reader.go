// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/primaza/clustertrust/pkg/gateway"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Reader reads the status sub-resource of arbitrary custom resources.
// It never retries and never caches; a missing resource is reported
// to the caller like any other failure.
type Reader struct {
	gw  *gateway.Gateway
	log logr.Logger
}

func NewReader(gw *gateway.Gateway, log logr.Logger) *Reader {
	return &Reader{gw, log}
}

// ReadStatus returns the object served by the status sub-resource of res.
func (r *Reader) ReadStatus(ctx context.Context, res gateway.CustomResource) (map[string]interface{}, error) {
	obj, err := r.gw.GetCustomResourceStatus(ctx, res)
	if err != nil {
		r.log.Error(err, "Reading custom resource status",
			"group", res.Group, "version", res.Version, "namespace", res.Namespace,
			"plural", res.Plural, "name", res.Name)
		return nil, err
	}

	return obj.Object, nil
}

// State returns status.state of a custom resource object.
func State(obj map[string]interface{}) (string, bool, error) {
	return unstructured.NestedString(obj, "status", "state")
}
