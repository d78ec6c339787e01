// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package poller

import (
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
)

type ConditionType string

const (
	Pending   ConditionType = "Pending"
	Succeeded ConditionType = "Succeeded"
	TimedOut  ConditionType = "TimedOut"

	// Failed indicates the condition itself returned an error.
	Failed ConditionType = "Failed"
)

type Condition struct {
	Type    ConditionType
	Status  corev1.ConditionStatus
	Message string
}

// Status records the progress of one check: Pending until it either
// Succeeded, TimedOut or Failed.
type Status struct {
	Check       string
	Evaluations int
	Elapsed     time.Duration

	Conditions          []Condition
	FriendlyDescription string
}

func (s *Status) SetPending() {
	s.removeAllConditions()

	s.Conditions = append(s.Conditions, Condition{
		Type:   Pending,
		Status: corev1.ConditionTrue,
	})

	s.FriendlyDescription = "Pending"
}

func (s *Status) SetCompleted(err error) {
	s.removeAllConditions()

	switch {
	case err == nil:
		s.Conditions = append(s.Conditions, Condition{
			Type:   Succeeded,
			Status: corev1.ConditionTrue,
		})
		s.FriendlyDescription = "Succeeded"

	case errors.Is(err, ErrTimedOut):
		s.Conditions = append(s.Conditions, Condition{
			Type:    TimedOut,
			Status:  corev1.ConditionTrue,
			Message: err.Error(),
		})
		s.FriendlyDescription = fmt.Sprintf("Timed out after %d evaluations", s.Evaluations)

	default:
		s.Conditions = append(s.Conditions, Condition{
			Type:    Failed,
			Status:  corev1.ConditionTrue,
			Message: err.Error(),
		})
		s.FriendlyDescription = fmt.Sprintf("Failed: %s", err)
	}
}

// Outcome returns the type of the current condition.
func (s *Status) Outcome() ConditionType {
	for _, cond := range s.Conditions {
		if cond.Status == corev1.ConditionTrue {
			return cond.Type
		}
	}
	return Pending
}

func (s *Status) removeAllConditions() {
	s.Conditions = nil
}
