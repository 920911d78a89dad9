package rules

import (
	"context"
	"log/slog"
)

// AuditSink receives execution records. The engine treats it as
// fire-and-forget: a sink must not block Fire indefinitely, and a sink
// error never fails the evaluation that produced the record.
type AuditSink interface {
	Record(ctx context.Context, rec ExecutionRecord)
}

// NopAuditSink discards all records. The engine default.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, ExecutionRecord) {}

// SlogAuditSink writes each record as a structured log line.
type SlogAuditSink struct {
	Logger *slog.Logger
}

func (s SlogAuditSink) Record(ctx context.Context, rec ExecutionRecord) {
	s.Logger.LogAttrs(ctx, slog.LevelInfo, "rule executed",
		slog.String("rule_id", rec.RuleID),
		slog.String("event", string(rec.Event)),
		slog.String("entity_id", rec.EntityID),
		slog.Bool("matched", rec.Matched),
		slog.Int("actions", len(rec.Actions)),
		slog.String("error", rec.Error),
	)
}

// BufferedAuditSink decouples record delivery from evaluation. Records go
// through a bounded channel drained by one goroutine into the wrapped
// sink; when the buffer is full the record is dropped rather than
// stalling Fire.
type BufferedAuditSink struct {
	next AuditSink
	ch   chan ExecutionRecord
	done chan struct{}
}

// NewBufferedAuditSink starts the drain goroutine. Close releases it.
func NewBufferedAuditSink(next AuditSink, size int) *BufferedAuditSink {
	if size <= 0 {
		size = 256
	}
	s := &BufferedAuditSink{
		next: next,
		ch:   make(chan ExecutionRecord, size),
		done: make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *BufferedAuditSink) drain() {
	defer close(s.done)
	for rec := range s.ch {
		s.next.Record(context.Background(), rec)
	}
}

// Record enqueues without blocking; a full buffer drops the record.
func (s *BufferedAuditSink) Record(_ context.Context, rec ExecutionRecord) {
	select {
	case s.ch <- rec:
	default:
	}
}

// Close flushes buffered records and stops the drain goroutine.
func (s *BufferedAuditSink) Close() {
	close(s.ch)
	<-s.done
}
