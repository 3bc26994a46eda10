package metrics_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/marionette/marionette/pkg/metrics"
	"github.com/marionette/marionette/pkg/mocks"
	"github.com/marionette/marionette/pkg/types"
	"github.com/marionette/marionette/pkg/unit"
)

func TestHandlerCountsLifecycleActivity(t *testing.T) {
	reg := prometheus.NewRegistry()

	r := unit.NewRegistry(nil, nil)
	r.RegisterLoader(types.DefaultLoader, &mocks.MockLoader{})
	r.GlobalHandlers().Add(metrics.NewHandler(reg))

	ref := types.NewRef("metrics/test", "Svc")
	if _, err := r.InitializeAll([]types.Candidate{{Ref: ref, Name: "svc"}}); err != nil {
		t.Fatalf("InitializeAll failed: %v", err)
	}

	starts, err := testutil.GatherAndCount(reg, "marionette_unit_starts_total")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if starts != 1 {
		t.Errorf("expected one start series, got %d", starts)
	}

	if err := r.CloseUnit(ref); err != nil {
		t.Fatalf("CloseUnit failed: %v", err)
	}
	closes, err := testutil.GatherAndCount(reg, "marionette_unit_closes_total")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if closes != 1 {
		t.Errorf("expected one close series, got %d", closes)
	}
}

func TestHandlerCountsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()

	r := unit.NewRegistry(nil, nil)
	r.RegisterLoader(types.DefaultLoader, &mocks.MockLoader{
		CreateFunc: func(u *unit.Record) (interface{}, error) {
			return nil, errors.New("boom")
		},
	})
	r.GlobalHandlers().Add(metrics.NewHandler(reg))

	ref := types.NewRef("metrics/test", "Broken")
	if _, err := r.InitializeAll([]types.Candidate{{Ref: ref, Name: "broken"}}); err == nil {
		t.Fatal("expected start to fail")
	}

	failures, err := testutil.GatherAndCount(reg, "marionette_unit_failures_total")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if failures != 1 {
		t.Errorf("expected one failure series, got %d", failures)
	}
}
