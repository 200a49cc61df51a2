package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
const (
	AttrCode       = "hubid.account.code"
	AttrKind       = "hubid.account.kind"
	AttrExternalID = "hubid.identity.external_id"
	AttrFlow       = "hubid.flow"
	AttrIPAddress  = "hubid.client.ip"
)

const instrumentationName = "github.com/cksportal/hubid"

// SpanOptions provides configuration for span creation.
type SpanOptions struct {
	Code       string
	Kind       string
	ExternalID string
	Flow       string
	IPAddress  string
}

func (o SpanOptions) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if o.Code != "" {
		attrs = append(attrs, attribute.String(AttrCode, o.Code))
	}
	if o.Kind != "" {
		attrs = append(attrs, attribute.String(AttrKind, o.Kind))
	}
	if o.ExternalID != "" {
		attrs = append(attrs, attribute.String(AttrExternalID, o.ExternalID))
	}
	if o.Flow != "" {
		attrs = append(attrs, attribute.String(AttrFlow, o.Flow))
	}
	if o.IPAddress != "" {
		attrs = append(attrs, attribute.String(AttrIPAddress, o.IPAddress))
	}
	return attrs
}

// StartSpan starts a span on the global tracer provider. It is a no-op
// span until NewProvider has installed a real one.
func StartSpan(ctx context.Context, name string, opts SpanOptions) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(opts.attributes()...))
}

// StartSpan starts a span on the provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, opts SpanOptions) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, trace.WithAttributes(opts.attributes()...))
}

// SetSpanError marks a span as having an error.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// EndSpan ends a span with optional error handling.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		SetSpanError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
