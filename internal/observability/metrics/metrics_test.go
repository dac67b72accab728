package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	"github.com/smallbiznis/agentdesk/internal/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("service_code", "NIN_MOD_DOB"),
		attribute.String("owner_id", "42"),
		attribute.String("outcome", "priced"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "owner_id" {
			t.Fatalf("owner_id must not be a metric label")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordServiceRequestCreated(ctx, "nin_modification", "NIN_MOD_DOB")
	m.RecordTransition(ctx, "complete", "applied")
	m.RecordRefund(ctx, "nin_modification", 1000)
	m.RecordFeeQuote(ctx, "NIN_MOD_DOB", "priced")
	m.RecordRateLimitDenied(ctx, "/api/requests", "exhausted")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "agentdesk"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.RecordTransition(context.Background(), "fail", "applied")
}

func TestClassifyLifecycleReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, LifecycleReasonDeadlineExceeded},
		{"forbidden", fmt.Errorf("wrap: %w", authorization.ErrForbidden), LifecycleReasonForbidden},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, LifecycleReasonDBLockTimeout},
		{"serialization", &pgconn.PgError{Code: "40001"}, LifecycleReasonSerializationFailure},
		{"unique", gorm.ErrDuplicatedKey, LifecycleReasonUniqueViolation},
		{"other pg", &pgconn.PgError{Code: "22001"}, LifecycleReasonDB},
		{"unknown", errors.New("boom"), LifecycleReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyLifecycleReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("serialization failures should be retryable")
	}
}

func TestLifecycleMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newLifecycleMetrics(registry, Config{ServiceName: "agentdesk", Environment: "test"})

	m.ObserveOperation("complete", "applied", 20*time.Millisecond)
	m.ObserveOperation("complete", "applied", 10*time.Millisecond)
	m.IncTransition("PENDING", "COMPLETED")

	if got := testutil.ToFloat64(m.operations.WithLabelValues("complete", "applied")); got != 2 {
		t.Fatalf("expected 2 operations, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("PENDING", "COMPLETED")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newLifecycleMetrics(registry, Config{ServiceName: "agentdesk", Environment: "test"})
	m.IncTransition("PROCESSING", "FAILED")

	received := make(chan prompb.WriteRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Encoding") != "snappy" {
			t.Errorf("expected snappy encoding")
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("expected bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		raw, err := snappy.Decode(nil, body)
		if err != nil {
			t.Errorf("decode: %v", err)
		}
		var req prompb.WriteRequest
		if err := proto.Unmarshal(raw, protoadapt.MessageV2Of(&req)); err != nil {
			t.Errorf("unmarshal: %v", err)
		}
		received <- req
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "secret")
	if err := pusher.Push(context.Background(), registry); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	req := <-received
	var found bool
	for _, ts := range req.Timeseries {
		for _, label := range ts.Labels {
			if label.Name == "__name__" && label.Value == "agentdesk_service_request_status_transitions_total" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected transition series in remote write payload")
	}
}

func TestNewPusherDisabledWithoutExporter(t *testing.T) {
	if p := NewPusher(config.MetricsPushConfig{}, "agentdesk", zap.NewNop()); p != nil {
		t.Fatalf("expected nil pusher")
	}
	if p := NewPusher(config.MetricsPushConfig{Exporter: ExporterRemoteWrite, Endpoint: "::bad"}, "agentdesk", zap.NewNop()); p != nil {
		t.Fatalf("expected nil pusher for invalid endpoint")
	}
}
