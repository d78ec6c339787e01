// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"bytes"
	"fmt"
	"strings"

	"k8s.io/client-go/util/jsonpath"
)

const (
	openPrefix    = "$("
	closeSuffix   = ")"
	jsonPathOpen  = "{"
	jsonPathClose = "}"
)

// FieldPath is a jsonpath expression selecting one status field, written
// as "$(.status.state)", "{.status.state}" or ".status.state".
type FieldPath string

// StateField selects status.state.
const StateField FieldPath = "$(.status.state)"

// ToK8sJSONPath converts the expression to the "{ }" form jsonpath parses.
func (p FieldPath) ToK8sJSONPath() string {
	path := strings.TrimSpace(string(p))

	switch {
	case strings.HasPrefix(path, openPrefix) && strings.HasSuffix(path, closeSuffix):
		return jsonPathOpen + path[len(openPrefix):len(path)-len(closeSuffix)] + jsonPathClose
	case strings.HasPrefix(path, jsonPathOpen):
		return path
	default:
		return jsonPathOpen + path + jsonPathClose
	}
}

// EvaluateWith returns the field value in obj. Missing fields are not an error.
func (p FieldPath) EvaluateWith(obj interface{}) (string, bool, error) {
	parser := jsonpath.New("status").AllowMissingKeys(true)

	err := parser.Parse(p.ToK8sJSONPath())
	if err != nil {
		return "", false, fmt.Errorf("Parsing field path '%s': %w", p, err)
	}

	results, err := parser.FindResults(obj)
	if err != nil {
		return "", false, fmt.Errorf("Evaluating field path '%s': %w", p, err)
	}
	if len(results) == 0 || len(results[0]) == 0 {
		return "", false, nil
	}
	if len(results[0]) > 1 {
		return "", false, fmt.Errorf("Field path '%s' returned %d results, expected one", p, len(results[0]))
	}

	buf := new(bytes.Buffer)

	err = parser.PrintResults(buf, results[0])
	if err != nil {
		return "", false, fmt.Errorf("Printing field path '%s': %w", p, err)
	}

	return buf.String(), true, nil
}
