package observer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codeexec/internal/common/mq"
	"codeexec/internal/execution/sandbox/result"
	appErr "codeexec/pkg/errors"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingObserver struct {
	records []Record
}

func (r *recordingObserver) ObserveExecution(_ context.Context, rec Record) {
	r.records = append(r.records, rec)
}

func TestMulti(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	Multi{a, nil, Noop{}, b}.ObserveExecution(context.Background(), Record{ExecutionID: "1"})
	if len(a.records) != 1 || len(b.records) != 1 {
		t.Fatalf("expected both observers to receive the record")
	}
}

func TestMetricsRecorder(t *testing.T) {
	m := NewMetricsRecorder()
	ctx := context.Background()
	m.ObserveExecution(ctx, Record{Language: "python", Verdict: result.VerdictOK, Duration: 20 * time.Millisecond, OutputBytes: 3})
	m.ObserveExecution(ctx, Record{Language: "python", Verdict: result.VerdictOK, Duration: 30 * time.Millisecond})
	m.ObserveExecution(ctx, Record{Language: "typescript", Verdict: result.VerdictTLE, Duration: 3 * time.Second, BuildDuration: time.Second})

	if got := testutil.ToFloat64(m.executions.WithLabelValues("python", "OK")); got != 2 {
		t.Fatalf("python OK count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.executions.WithLabelValues("typescript", "TLE")); got != 1 {
		t.Fatalf("typescript TLE count = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `codeexec_executions_total{language="python",verdict="OK"} 2`) {
		t.Fatalf("metrics output missing counter:\n%s", body)
	}
	if !strings.Contains(body, "codeexec_build_duration_seconds_count{language=\"typescript\"} 1") {
		t.Fatalf("metrics output missing build histogram")
	}
}

type fakeProducer struct {
	mu       sync.Mutex
	topic    string
	messages []*mq.Message
	err      error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, message *mq.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topic = topic
	f.messages = append(f.messages, message)
	return f.err
}

func (f *fakeProducer) Close() error { return nil }

func TestEventPublisher(t *testing.T) {
	producer := &fakeProducer{}
	p := NewEventPublisher(producer, "executions", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	p.ObserveExecution(ctx, Record{
		ExecutionID: "exec-1",
		Language:    "python",
		Mode:        "interpreted",
		Verdict:     result.VerdictRE,
		Code:        appErr.RuntimeFailure,
		Duration:    150 * time.Millisecond,
		OutputBytes: 42,
		FinishedAt:  time.UnixMilli(1700000000000),
	})
	cancel()
	p.Close()

	if producer.topic != "executions" || len(producer.messages) != 1 {
		t.Fatalf("unexpected publish: topic=%s count=%d", producer.topic, len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.ID != "exec-1" {
		t.Fatalf("message key should be the execution id, got %s", msg.ID)
	}
	if typ := msg.Header("type"); typ != EventExecutionFinished {
		t.Fatalf("unexpected type header %q", typ)
	}
	var event ExecutionEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Verdict != "RE" || event.Code != int(appErr.RuntimeFailure) || event.DurationMs != 150 || event.FinishedAt != 1700000000000 {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestEventPublisherSwallowsErrors(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	p := NewEventPublisher(producer, "executions", 0)
	p.ObserveExecution(context.Background(), Record{ExecutionID: "x"})
	p.Close()
	if len(producer.messages) != 1 {
		t.Fatalf("expected one attempt")
	}

	var disabled *EventPublisher
	disabled.ObserveExecution(context.Background(), Record{})
	NewEventPublisher(nil, "t", 0).ObserveExecution(context.Background(), Record{})
}
