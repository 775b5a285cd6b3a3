package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/newsdeck/backend/internal/snapshot"
)

func TestProbe_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := New(time.Second, nil).Probe(context.Background(), server.URL)

	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.GreaterOrEqual(t, result.Latency, 0.0)
	assert.False(t, result.CheckedAt.IsZero())
}

func TestProbe_ClosedServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	result := New(time.Second, nil).Probe(context.Background(), url)

	assert.False(t, result.Success)
	assert.Equal(t, 0.0, result.Latency)
}

func TestProbe_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	result := New(50*time.Millisecond, nil).Probe(context.Background(), server.URL)

	assert.False(t, result.Success)
	assert.Equal(t, 0.0, result.Latency)
}

func TestProbe_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	result := New(time.Second, nil).Probe(context.Background(), server.URL)

	assert.False(t, result.Success)
	assert.Equal(t, 0.0, result.Latency)
	assert.Equal(t, http.StatusServiceUnavailable, result.Status)
}

func TestProbe_EmptyURL(t *testing.T) {
	result := New(time.Second, nil).Probe(context.Background(), "")
	assert.False(t, result.Success)
}

func TestStability(t *testing.T) {
	checked := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		result Result
		status snapshot.Status
		uptime float64
	}{
		{"online", Result{Success: true, Latency: 120, Status: 200, CheckedAt: checked}, snapshot.StatusOnline, 100},
		{"slow", Result{Success: true, Latency: 2400, Status: 200, CheckedAt: checked}, snapshot.StatusDegraded, 100},
		{"error status", Result{Status: 502, CheckedAt: checked}, snapshot.StatusDegraded, 0},
		{"unreachable", Result{CheckedAt: checked}, snapshot.StatusOffline, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Stability(tt.result)
			assert.Equal(t, tt.status, m.Status)
			assert.Equal(t, tt.uptime, m.Uptime)
			assert.Equal(t, tt.result.Latency, m.Latency)
			assert.Equal(t, checked, m.LastCheck)
		})
	}
}
