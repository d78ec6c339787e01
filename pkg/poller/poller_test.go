// Copyright 2021 VMware, Inc.
// SPDX-License-Identifier: Apache-2.0

package poller_test

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/primaza/clustertrust/pkg/poller"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

func pollerUnderTest() (*poller.Poller, *poller.Metrics) {
	metrics := poller.NewMetrics()
	return poller.New(zap.New(zap.UseDevMode(true)), metrics), metrics
}

func Test_Wait_ImmediateSuccess(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p, metrics := pollerUnderTest()
		start := time.Now()

		status, err := p.WaitWithStatus(context.Background(), poller.Check{
			Name:      "immediate",
			Condition: func(context.Context) (bool, error) { return true, nil },
		})
		require.NoError(t, err)

		assert.Equal(t, 1, status.Evaluations)
		assert.Equal(t, poller.Succeeded, status.Outcome())
		assert.Equal(t, time.Duration(0), time.Since(start), "no sleep before first evaluation")
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Checks().WithLabelValues("immediate", "Succeeded")))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Evaluations().WithLabelValues("immediate")))
	})
}

func Test_Wait_SucceedsAfterStateChange(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p, _ := pollerUnderTest()
		start := time.Now()

		status, err := p.WaitWithStatus(context.Background(), poller.Check{
			Name:     "ready-after-5s",
			Interval: time.Second,
			Timeout:  30 * time.Second,
			Condition: func(context.Context) (bool, error) {
				return time.Since(start) >= 5*time.Second, nil
			},
		})
		require.NoError(t, err)

		assert.Equal(t, 5*time.Second, time.Since(start))
		assert.Equal(t, 6, status.Evaluations)
		assert.Equal(t, "Succeeded", status.FriendlyDescription)
	})
}

func Test_Wait_TimesOut(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p, metrics := pollerUnderTest()
		start := time.Now()
		var lastEvaluation time.Duration

		status, err := p.WaitWithStatus(context.Background(), poller.Check{
			Name:     "never",
			Interval: time.Second,
			Timeout:  30 * time.Second,
			Condition: func(context.Context) (bool, error) {
				lastEvaluation = time.Since(start)
				return false, nil
			},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, poller.ErrTimedOut))

		var timedOut *poller.TimedOutError
		require.True(t, errors.As(err, &timedOut))
		assert.Equal(t, "never", timedOut.Check)
		assert.Equal(t, 30*time.Second, timedOut.Timeout)

		assert.GreaterOrEqual(t, time.Since(start), 30*time.Second)
		assert.Less(t, lastEvaluation, 30*time.Second, "no evaluation after the bound")
		assert.GreaterOrEqual(t, status.Evaluations, 29)
		assert.LessOrEqual(t, status.Evaluations, 30)
		assert.Equal(t, poller.TimedOut, status.Outcome())
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Checks().WithLabelValues("never", "TimedOut")))
	})
}

func Test_Wait_ConditionErrorAborts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p, metrics := pollerUnderTest()
		start := time.Now()
		boom := errors.New("connection refused")
		evaluations := 0

		status, err := p.WaitWithStatus(context.Background(), poller.Check{
			Name: "failing",
			Condition: func(context.Context) (bool, error) {
				evaluations++
				if evaluations == 3 {
					return false, boom
				}
				return false, nil
			},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.False(t, errors.Is(err, poller.ErrTimedOut))
		assert.Contains(t, err.Error(), "Check 'failing'")

		assert.Equal(t, 3, evaluations)
		assert.Equal(t, 2*time.Second, time.Since(start))
		assert.Equal(t, poller.Failed, status.Outcome())
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Checks().WithLabelValues("failing", "Failed")))
	})
}

func Test_Wait_ParentCancellation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p, _ := pollerUnderTest()
		ctx, cancel := context.WithCancel(context.Background())

		go func() {
			time.Sleep(3500 * time.Millisecond)
			cancel()
		}()

		err := p.Wait(ctx, poller.Check{
			Name:      "cancelled",
			Condition: func(context.Context) (bool, error) { return false, nil },
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.False(t, errors.Is(err, poller.ErrTimedOut))
	})
}

func Test_Wait_InvalidCheck(t *testing.T) {
	p, _ := pollerUnderTest()

	err := p.Wait(context.Background(), poller.Check{Name: "no-condition"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, poller.ErrInvalidCheck))

	err = p.Wait(context.Background(), poller.Check{
		Name:      "negative",
		Interval:  -time.Second,
		Condition: func(context.Context) (bool, error) { return true, nil },
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, poller.ErrInvalidCheck))

	err = p.Wait(context.Background(), poller.Check{
		Name:      "inverted",
		Interval:  time.Minute,
		Timeout:   time.Second,
		Condition: func(context.Context) (bool, error) { return true, nil },
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, poller.ErrInvalidCheck))
}

func Test_Check_WithDefaults(t *testing.T) {
	check := poller.Check{Name: "c"}.WithDefaults()
	assert.Equal(t, time.Second, check.Interval)
	assert.Equal(t, 30*time.Second, check.Timeout)

	check = poller.Check{Interval: 2 * time.Second, Timeout: time.Minute}.WithDefaults()
	assert.Equal(t, 2*time.Second, check.Interval)
	assert.Equal(t, time.Minute, check.Timeout)
}

func Test_WaitUntil(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		calls := 0
		err := poller.WaitUntil(context.Background(), func(context.Context) (bool, error) {
			calls++
			return calls == 2, nil
		}, time.Second, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)

		err = poller.WaitUntil(context.Background(), func(context.Context) (bool, error) {
			return false, nil
		}, time.Second, 5*time.Second)
		assert.True(t, errors.Is(err, poller.ErrTimedOut))
	})
}

func Test_Metrics_Register(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := poller.NewMetrics()

	require.NoError(t, metrics.Register(registry))
	require.Error(t, metrics.Register(registry), "duplicate registration is rejected")
}

func Test_Status_Transitions(t *testing.T) {
	status := poller.Status{Check: "c", Evaluations: 4}

	status.SetPending()
	assert.Equal(t, poller.Pending, status.Outcome())
	assert.Len(t, status.Conditions, 1)

	status.SetCompleted(&poller.TimedOutError{Check: "c", Timeout: time.Second, Evaluations: 4})
	assert.Equal(t, poller.TimedOut, status.Outcome())
	assert.Equal(t, "Timed out after 4 evaluations", status.FriendlyDescription)
	assert.Len(t, status.Conditions, 1)

	status.SetCompleted(errors.New("boom"))
	assert.Equal(t, poller.Failed, status.Outcome())
	assert.Equal(t, "Failed: boom", status.FriendlyDescription)
}
