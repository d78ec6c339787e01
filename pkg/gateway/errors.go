// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ErrorKind classifies a gateway failure.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotFound
)

func (k ErrorKind) String() string {
	if k == KindNotFound {
		return "NotFound"
	}
	return "Other"
}

// Error carries the operation and resource coordinates of a failed API call.
// The underlying API status error stays reachable through Unwrap.
type Error struct {
	Op        string
	Resource  string
	Namespace string
	Name      string
	Err       error
}

func (e *Error) Error() string {
	if len(e.Namespace) > 0 {
		return fmt.Sprintf("%s %s '%s/%s': %s", e.Op, e.Resource, e.Namespace, e.Name, e.Err)
	}
	return fmt.Sprintf("%s %s '%s': %s", e.Op, e.Resource, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind returns KindNotFound when the API server reported the resource missing.
func (e *Error) Kind() ErrorKind {
	if apierrors.IsNotFound(e.Err) {
		return KindNotFound
	}
	return KindOther
}

// Kind classifies any error returned by Gateway. Nil errors are KindOther.
func Kind(err error) ErrorKind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind()
	}
	if apierrors.IsNotFound(err) {
		return KindNotFound
	}
	return KindOther
}

func IsNotFound(err error) bool {
	return err != nil && Kind(err) == KindNotFound
}

func wrap(op, resource, namespace, name string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Resource: resource, Namespace: namespace, Name: name, Err: err}
}
