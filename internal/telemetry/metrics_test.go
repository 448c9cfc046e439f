// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Admission(401)
	m.Admission(401)
	m.Admission(101)
	m.ConnectionOpened()
	m.Call(OutcomeFinal)
	m.CallDuration("add", 10*time.Millisecond)
	m.Frame(FrameContinue)
	m.Frame(FrameFinal)

	if v := testutil.ToFloat64(m.AdmissionsCounter().WithLabelValues("401")); v != 2 {
		t.Fatalf("expected 2 rejected admissions, given %v", v)
	}
	if v := testutil.ToFloat64(m.ConnectionsGauge()); v != 1 {
		t.Fatalf("expected 1 active connection, given %v", v)
	}
	m.ConnectionClosed()
	if v := testutil.ToFloat64(m.ConnectionsGauge()); v != 0 {
		t.Fatalf("expected no active connections, given %v", v)
	}

	count, err := testutil.GatherAndCount(reg, "shirow_frames_total")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 frame series, given %d", count)
	}
}

func TestNewMetrics_unregistered(t *testing.T) {
	m := NewMetrics(nil)
	m.Call(OutcomeUndefined)
	if v := testutil.ToFloat64(m.CallsCounter().WithLabelValues(OutcomeUndefined)); v != 1 {
		t.Fatalf("expected 1 undefined call, given %v", v)
	}
}

func TestCallSpan_defaultProvider(t *testing.T) {
	ctx, span := StartCallSpan(context.Background(), "add", "conn-1")
	if ctx == nil {
		t.Fatal("expected context")
	}
	EndCallSpan(span, OutcomeFailure, errors.New("boom"))
}
