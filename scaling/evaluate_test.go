// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scaling

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chemopt/ordscale/ordinal"
)

func TestEvaluateAggregates(t *testing.T) {

	idx, sim := richIndex(t)
	opts := DefaultOptions()
	ev, err := NewEvaluator(idx, opts)
	require.NoError(t, err)

	res, err := ev.Evaluate(context.Background(), sim)
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Len(t, res.Groups, len(idx.Groups))

	// The total is the plain sum of the per-group optima, assembled in
	// group order regardless of goroutine completion order.
	want := 0.0
	for gi := range idx.Groups {
		sol, err := SolveGroup(idx, &idx.Groups[gi], sim, &opts)
		require.NoError(t, err)
		want += sol.Objective
		assert.Equal(t, sol.Group, res.Groups[gi].Group)
		assert.Equal(t, sol.Values, res.Groups[gi].Values)
	}
	assert.Equal(t, want, res.Objective)
	assert.Nil(t, res.Gradient)

	// Replays are deterministic down to the bit.
	again, err := ev.Evaluate(context.Background(), sim)
	require.NoError(t, err)
	assert.Equal(t, res.Objective, again.Objective)
}

func TestEvaluateInnerFailure(t *testing.T) {

	idx, sim := richIndex(t)
	ev, err := NewEvaluator(idx, DefaultOptions())
	require.NoError(t, err)

	// Poison one measurement of the second group: the evaluation is
	// reported as invalid instead of failing the call.
	bad := append([]float64(nil), sim...)
	bad[idx.Groups[1].Categories[0].Measurements[0]] = math.NaN()

	res, err := ev.Evaluate(context.Background(), bad)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.True(t, math.IsInf(res.Objective, 1))

	var ise *InnerSolveError
	require.ErrorAs(t, res.Failure, &ise)
	assert.Equal(t, idx.Groups[1].ID, ise.Group)
}

func TestEvaluateDimensionMismatch(t *testing.T) {

	idx, sim := richIndex(t)
	ev, err := NewEvaluator(idx, DefaultOptions())
	require.NoError(t, err)

	_, err = ev.Evaluate(context.Background(), sim[:len(sim)-1])
	require.Error(t, err)
}

func TestEvaluateCancelled(t *testing.T) {

	idx, sim := richIndex(t)
	ev, err := NewEvaluator(idx, DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ev.Evaluate(ctx, sim)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateConcurrent(t *testing.T) {

	idx, sim := richIndex(t)
	ev, err := NewEvaluator(idx, DefaultOptions())
	require.NoError(t, err)

	want, err := ev.Evaluate(context.Background(), sim)
	require.NoError(t, err)

	// Cancelled evaluations running alongside must not corrupt live ones:
	// the evaluator keeps no per-call state.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan *Evaluation, 8)
	for i := 0; i < 8; i++ {
		go func() { _, _ = ev.Evaluate(cancelled, sim) }()
		go func() {
			res, err := ev.Evaluate(context.Background(), sim)
			if err != nil {
				res = nil
			}
			done <- res
		}()
	}
	for i := 0; i < 8; i++ {
		res := <-done
		require.NotNil(t, res)
		assert.Equal(t, want.Objective, res.Objective)
	}
}

func TestNewEvaluatorValidates(t *testing.T) {

	_, err := NewEvaluator(nil, DefaultOptions())
	require.Error(t, err)

	_, err = NewEvaluator(&ordinal.Index{}, DefaultOptions())
	require.Error(t, err)

	idx, _ := richIndex(t)
	bad := DefaultOptions()
	bad.MinGap = -1
	_, err = NewEvaluator(idx, bad)
	require.Error(t, err)
}

func TestEvaluateLogsGroups(t *testing.T) {

	idx := twoCatIndex(t)
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = &Logger{Level: LogGroup, Msg: &buf}

	ev, err := NewEvaluator(idx, opts)
	require.NoError(t, err)
	_, err = ev.Evaluate(context.Background(), []float64{0.9, 1.1, 1.8})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "group 1")
	assert.Contains(t, buf.String(), "obj=")
}
