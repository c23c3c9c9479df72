package exporter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandler(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aca_test_events_total",
		Help: "Test events",
	})
	counter.Add(3)

	exp, err := New(0, counter)
	if err != nil {
		t.Fatalf("New: %s", err)
	}

	srv := httptest.NewServer(exp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %s", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"aca_test_events_total 3", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output misses %q", want)
		}
	}
}

func TestDuplicateCollector(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "aca_dup_total", Help: "dup"})
	if _, err := New(0, counter, counter); err == nil {
		t.Error("expected registration error")
	}
}

func TestRunStops(t *testing.T) {
	exp, err := New(0)
	if err != nil {
		t.Fatalf("New: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- exp.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Run: %s", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
