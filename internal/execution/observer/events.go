package observer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"codeexec/internal/common/mq"
	"codeexec/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	EventExecutionFinished = "execution.finished"

	defaultPublishTimeout = 2 * time.Second
)

// ExecutionEvent is the payload published for every finished execution.
type ExecutionEvent struct {
	Type          string `json:"type"`
	ExecutionID   string `json:"execution_id"`
	Language      string `json:"language"`
	Mode          string `json:"mode"`
	Verdict       string `json:"verdict"`
	Code          int    `json:"code"`
	HasTestInput  bool   `json:"has_test_input"`
	DurationMs    int64  `json:"duration_ms"`
	BuildMs       int64  `json:"build_ms,omitempty"`
	RunWallTimeMs int64  `json:"run_wall_time_ms"`
	RunTimeMs     int64  `json:"run_time_ms"`
	MemoryKB      int64  `json:"memory_kb,omitempty"`
	OutputBytes   int64  `json:"output_bytes"`
	FinishedAt    int64  `json:"finished_at"`
}

// EventPublisher publishes execution events in the background so a slow or
// unavailable broker never delays a response.
type EventPublisher struct {
	producer mq.Producer
	topic    string
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewEventPublisher creates a publisher writing to topic.
func NewEventPublisher(producer mq.Producer, topic string, timeout time.Duration) *EventPublisher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &EventPublisher{producer: producer, topic: topic, timeout: timeout}
}

func (p *EventPublisher) ObserveExecution(ctx context.Context, rec Record) {
	if p == nil || p.producer == nil || p.topic == "" {
		return
	}
	payload, err := json.Marshal(newExecutionEvent(rec))
	if err != nil {
		logger.Warn(ctx, "marshal execution event failed", zap.Error(err))
		return
	}
	message := mq.NewMessage(payload)
	message.ID = rec.ExecutionID
	message.SetHeader("type", EventExecutionFinished)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		if err := p.producer.Publish(pubCtx, p.topic, message); err != nil {
			logger.Warn(pubCtx, "publish execution event failed",
				zap.String("topic", p.topic),
				zap.Error(err),
			)
		}
	}()
}

// Close waits for in-flight publishes to finish.
func (p *EventPublisher) Close() {
	p.wg.Wait()
}

func newExecutionEvent(rec Record) ExecutionEvent {
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	return ExecutionEvent{
		Type:          EventExecutionFinished,
		ExecutionID:   rec.ExecutionID,
		Language:      rec.Language,
		Mode:          rec.Mode,
		Verdict:       string(rec.Verdict),
		Code:          int(rec.Code),
		HasTestInput:  rec.HasTestInput,
		DurationMs:    rec.Duration.Milliseconds(),
		BuildMs:       rec.BuildDuration.Milliseconds(),
		RunWallTimeMs: rec.RunWallTimeMs,
		RunTimeMs:     rec.RunTimeMs,
		MemoryKB:      rec.MemoryKB,
		OutputBytes:   rec.OutputBytes,
		FinishedAt:    finished.UnixMilli(),
	}
}
