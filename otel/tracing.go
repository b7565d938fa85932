// Package otel provides OpenTelemetry tracing integration for the storage
// node.
//
// # Span Hierarchy
//
// The following spans are created during normal operation:
//
//	storage.encrypt
//	storage.decrypt
//
//	storage.test_peer
//	├── storage.probe
//	└── storage.report              (when the grace period has passed)
//
// # Attributes
//
// Common span attributes include:
//   - peer.pubkey: the remote peer's X25519 public key in hex
//   - message.size: size of the plaintext or envelope
//   - probe.result: "reachable" or "unreachable"
//   - report.result: "success" or "failure"
//
// # Example Usage
//
//	tp := sdktrace.NewTracerProvider(...)
//	cfg := storage.NewConfig(keys, path,
//	    storage.WithTracerProvider(tp),
//	)
package otel

import (
	"context"

	"github.com/sispop-dev/storage/pkg/identity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// TracerName is the name used for the OpenTelemetry tracer.
	TracerName = "github.com/sispop-dev/storage"

	// Span names
	SpanEncrypt  = "storage.encrypt"
	SpanDecrypt  = "storage.decrypt"
	SpanTestPeer = "storage.test_peer"
	SpanProbe    = "storage.probe"
	SpanReport   = "storage.report"

	// Attribute keys
	AttrPeerKey      = "peer.pubkey"
	AttrMessageSize  = "message.size"
	AttrProbeResult  = "probe.result"
	AttrReportResult = "report.result"
	AttrElapsed      = "unreachable.elapsed_seconds"
)

// Tracer creates spans for channel and reachability operations.
//
// Tracer is safe for concurrent use.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the given TracerProvider.
// If provider is nil, a no-op tracer is used.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = noop.NewTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(TracerName)}
}

func peerAttr(peer identity.PublicKey) attribute.KeyValue {
	return attribute.String(AttrPeerKey, peer.String())
}

// StartEncrypt starts a span for sealing a message to peer.
func (t *Tracer) StartEncrypt(ctx context.Context, peer identity.PublicKey, size int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanEncrypt,
		trace.WithAttributes(peerAttr(peer), attribute.Int(AttrMessageSize, size)),
	)
}

// StartDecrypt starts a span for opening an envelope from peer.
func (t *Tracer) StartDecrypt(ctx context.Context, peer identity.PublicKey, size int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDecrypt,
		trace.WithAttributes(peerAttr(peer), attribute.Int(AttrMessageSize, size)),
	)
}

// StartTestPeer starts a span covering one reachability test of peer.
func (t *Tracer) StartTestPeer(ctx context.Context, peer identity.PublicKey) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanTestPeer, trace.WithAttributes(peerAttr(peer)))
}

// StartProbe starts a span for a single probe.
func (t *Tracer) StartProbe(ctx context.Context, peer identity.PublicKey) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanProbe,
		trace.WithAttributes(peerAttr(peer)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartReport starts a span for reporting peer to the daemon.
func (t *Tracer) StartReport(ctx context.Context, peer identity.PublicKey, elapsedSeconds float64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanReport,
		trace.WithAttributes(peerAttr(peer), attribute.Float64(AttrElapsed, elapsedSeconds)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// RecordProbeResult records the outcome of a probe on span.
func (t *Tracer) RecordProbeResult(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String(AttrProbeResult, "unreachable"))
		return
	}
	span.SetAttributes(attribute.String(AttrProbeResult, "reachable"))
}

// RecordReportResult records the outcome of a report on span.
func (t *Tracer) RecordReportResult(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String(AttrReportResult, "failure"))
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.String(AttrReportResult, "success"))
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error on the given span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// EndSpan ends a span, optionally recording an error.
func (t *Tracer) EndSpan(span trace.Span, err error) {
	t.RecordError(span, err)
	span.End()
}
