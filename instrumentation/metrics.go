package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the OAuth client library.
type Metrics struct {
	// Token endpoint metrics
	CodeExchanged    metric.Int64Counter
	TokenRefreshed   metric.Int64Counter
	ExchangeDuration metric.Float64Histogram
	ExchangeErrors   metric.Int64Counter

	// Registration metrics
	ClientRegistered metric.Int64Counter

	// Discovery metrics
	DiscoveryFetched  metric.Int64Counter
	DiscoveryDuration metric.Float64Histogram

	// Session metrics
	RefreshCoalesced metric.Int64Counter
}

// newMetrics creates and registers all metric instruments.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	meter := inst.Meter("service")

	var err error
	m.CodeExchanged, err = meter.Int64Counter(
		"oauth.code.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.exchanged counter: %w", err)
	}

	m.TokenRefreshed, err = meter.Int64Counter(
		"oauth.token.refreshed",
		metric.WithDescription("Number of tokens refreshed"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}

	m.ExchangeDuration, err = meter.Float64Histogram(
		"oauth.exchange.duration",
		metric.WithDescription("Token endpoint round trip duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange.duration histogram: %w", err)
	}

	m.ExchangeErrors, err = meter.Int64Counter(
		"oauth.exchange.errors",
		metric.WithDescription("Number of failed token endpoint calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange.errors counter: %w", err)
	}

	m.ClientRegistered, err = meter.Int64Counter(
		"oauth.client.registered",
		metric.WithDescription("Number of dynamic client registrations performed"),
		metric.WithUnit("{registration}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client.registered counter: %w", err)
	}

	discoveryMeter := inst.Meter("discovery")
	m.DiscoveryFetched, err = discoveryMeter.Int64Counter(
		"oauth.discovery.fetched",
		metric.WithDescription("Number of discovery documents fetched"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery.fetched counter: %w", err)
	}

	m.DiscoveryDuration, err = discoveryMeter.Float64Histogram(
		"oauth.discovery.duration",
		metric.WithDescription("Discovery fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery.duration histogram: %w", err)
	}

	m.RefreshCoalesced, err = meter.Int64Counter(
		"oauth.refresh.coalesced",
		metric.WithDescription("Number of fresh-token requests served by an already in-flight refresh"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh.coalesced counter: %w", err)
	}

	return m, nil
}

// RecordCodeExchange records a completed authorization code exchange.
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID, pkceMethod string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("pkce_method", pkceMethod),
	)
	m.CodeExchanged.Add(ctx, 1, attrs)
	m.ExchangeDuration.Record(ctx, durationMs, attrs)
}

// RecordTokenRefresh records a completed refresh grant, noting whether the
// provider rotated the refresh token.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, clientID string, rotated bool, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("rotated", rotated),
	)
	m.TokenRefreshed.Add(ctx, 1, attrs)
	m.ExchangeDuration.Record(ctx, durationMs, attrs)
}

// RecordExchangeError records a failed token endpoint call.
func (m *Metrics) RecordExchangeError(ctx context.Context, grantType, errorCode string) {
	m.ExchangeErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("error", errorCode),
	))
}

// RecordClientRegistration records a completed dynamic client registration.
func (m *Metrics) RecordClientRegistration(ctx context.Context, confidential bool) {
	clientType := "public"
	if confidential {
		clientType = "confidential"
	}
	m.ClientRegistered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_type", clientType),
	))
}

// RecordDiscoveryFetch records a discovery document fetch.
func (m *Metrics) RecordDiscoveryFetch(ctx context.Context, issuer string, cached bool, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("issuer", issuer),
		attribute.Bool("cached", cached),
	)
	m.DiscoveryFetched.Add(ctx, 1, attrs)
	if !cached {
		m.DiscoveryDuration.Record(ctx, durationMs, attrs)
	}
}

// RecordRefreshCoalesced records a fresh-token request that attached to an
// in-flight refresh instead of starting its own.
func (m *Metrics) RecordRefreshCoalesced(ctx context.Context) {
	m.RefreshCoalesced.Add(ctx, 1)
}
