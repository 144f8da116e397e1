package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	oauthclient "github.com/giantswarm/oauth-client"
	"github.com/giantswarm/oauth-client/discovery"
	"github.com/giantswarm/oauth-client/instrumentation"
	"github.com/giantswarm/oauth-client/internal/jsonutil"
)

const (
	// defaultTimeout bounds each endpoint round trip when the caller does
	// not supply an HTTP client.
	defaultTimeout = 30 * time.Second

	// maxResponseSize caps endpoint response bodies. Token and
	// registration responses are small; anything larger is a misbehaving
	// or malicious server.
	maxResponseSize = 1 << 20
)

// Config holds service configuration. The zero value is usable.
type Config struct {
	// HTTPClient performs the endpoint round trips. Defaults to a client
	// with a 30 second timeout. Timeouts and retries are the transport's
	// responsibility; the service never retries.
	HTTPClient *http.Client

	// Logger receives request lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock anchors expires_in conversions in parsed responses. Defaults
	// to the system clock.
	Clock oauthclient.Clock

	// Instrumentation supplies metrics and tracing. Defaults to a
	// disabled (no-op) instance.
	Instrumentation *instrumentation.Instrumentation

	// RateLimit and RateBurst bound the rate of outbound endpoint calls,
	// protecting the provider from refresh storms in misconfigured
	// deployments. Zero RateLimit means unlimited.
	RateLimit rate.Limit
	RateBurst int

	// DiscoveryCacheTTL bounds how long fetched discovery documents are
	// reused. Defaults to one hour.
	DiscoveryCacheTTL time.Duration
}

// Service performs token endpoint, registration endpoint and discovery
// calls. It is safe for concurrent use and implements
// oauthclient.TokenExchanger.
type Service struct {
	httpClient *http.Client
	logger     *slog.Logger
	clock      oauthclient.Clock
	inst       *instrumentation.Instrumentation
	limiter    *rate.Limiter
	discovery  *discovery.Client
}

// New creates a Service from the given configuration.
func New(cfg Config) (*Service, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = oauthclient.SystemClock
	}
	if cfg.Instrumentation == nil {
		inst, err := instrumentation.New(instrumentation.Config{Enabled: false})
		if err != nil {
			return nil, fmt.Errorf("failed to create instrumentation: %w", err)
		}
		cfg.Instrumentation = inst
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}

	return &Service{
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
		inst:       cfg.Instrumentation,
		limiter:    limiter,
		discovery:  discovery.NewClient(cfg.HTTPClient, cfg.DiscoveryCacheTTL, cfg.Logger),
	}, nil
}

// FetchConfiguration discovers a provider's configuration from its issuer
// URL and returns it as a ServiceConfiguration, retaining the raw
// discovery document. Results are cached per issuer for the configured
// TTL.
func (s *Service) FetchConfiguration(ctx context.Context, issuerURL string) (*oauthclient.ServiceConfiguration, error) {
	ctx, span := s.inst.Tracer("discovery").Start(ctx, "oauth.discovery.fetch")
	defer span.End()
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrIssuer, issuerURL))

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	start := s.clock.Now()
	doc, err := s.discovery.Fetch(ctx, issuerURL)
	if err != nil {
		authErr := oauthclient.AsAuthError(err)
		instrumentation.RecordError(span, authErr)
		return nil, authErr
	}
	s.inst.Metrics().RecordDiscoveryFetch(ctx, issuerURL, false, durationMs(start, s.clock))

	cfg, err := oauthclient.NewServiceConfigurationFromDiscovery(doc)
	if err != nil {
		authErr := oauthclient.AsAuthError(err)
		instrumentation.RecordError(span, authErr)
		return nil, authErr
	}
	instrumentation.SetSpanSuccess(span)
	return cfg, nil
}

// Exchange posts a token request to the provider's token endpoint and
// parses the response. Provider-reported OAuth errors come back as
// AuthErrors from the token taxonomy; transport and decoding failures map
// to the general taxonomy.
func (s *Service) Exchange(ctx context.Context, req *oauthclient.TokenRequest) (*oauthclient.TokenResponse, error) {
	if req == nil {
		return nil, &oauthclient.ArgumentError{Field: "request", Reason: "must not be nil"}
	}

	ctx, span := s.inst.Tracer("service").Start(ctx, "oauth.token.exchange")
	defer span.End()
	instrumentation.AddRequestAttributes(span, req.ClientID, req.GrantType, req.Scope)
	if req.CodeVerifier != "" {
		instrumentation.AddPKCEAttributes(span, oauthclient.CodeChallengeMethodS256)
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	endpoint := req.Configuration.TokenEndpoint
	form := req.ToFormValues().Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
	if err != nil {
		return nil, s.fail(ctx, span, req.GrantType, oauthclient.AsAuthError(err))
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	s.logger.DebugContext(ctx, "calling token endpoint",
		"endpoint", endpoint,
		"grant_type", req.GrantType,
		"client_id", req.ClientID)

	start := s.clock.Now()
	body, status, err := s.do(httpReq)
	if err != nil {
		return nil, s.fail(ctx, span, req.GrantType, oauthclient.AsAuthError(err))
	}
	instrumentation.AddEndpointAttributes(span, endpoint, status)

	if status != http.StatusOK {
		return nil, s.fail(ctx, span, req.GrantType, s.tokenEndpointError(status, body))
	}

	resp, err := oauthclient.ParseTokenResponse(req, body, s.clock)
	if err != nil {
		return nil, s.fail(ctx, span, req.GrantType, tokenResponseError(err))
	}

	elapsed := durationMs(start, s.clock)
	switch req.GrantType {
	case oauthclient.GrantTypeAuthorizationCode:
		method := ""
		if req.CodeVerifier != "" {
			method = oauthclient.CodeChallengeMethodS256
		}
		s.inst.Metrics().RecordCodeExchange(ctx, req.ClientID, method, elapsed)
	case oauthclient.GrantTypeRefreshToken:
		s.inst.Metrics().RecordTokenRefresh(ctx, req.ClientID, resp.RefreshToken != "", elapsed)
	}
	instrumentation.SetSpanSuccess(span)
	s.logger.DebugContext(ctx, "token endpoint call completed", "grant_type", req.GrantType)
	return resp, nil
}

// Register posts a dynamic client registration request to the provider's
// registration endpoint and parses the response.
func (s *Service) Register(ctx context.Context, req *oauthclient.RegistrationRequest) (*oauthclient.RegistrationResponse, error) {
	if req == nil {
		return nil, &oauthclient.ArgumentError{Field: "request", Reason: "must not be nil"}
	}
	endpoint := req.Configuration.RegistrationEndpoint
	if endpoint == "" {
		return nil, &oauthclient.MissingFieldError{Field: "registration_endpoint"}
	}

	ctx, span := s.inst.Tracer("service").Start(ctx, "oauth.client.register")
	defer span.End()

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	body, err := req.ToRequestBody()
	if err != nil {
		return nil, oauthclient.AsAuthError(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, oauthclient.AsAuthError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	s.logger.DebugContext(ctx, "calling registration endpoint", "endpoint", endpoint)

	respBody, status, err := s.do(httpReq)
	if err != nil {
		authErr := oauthclient.AsAuthError(err)
		instrumentation.RecordError(span, authErr)
		return nil, authErr
	}
	instrumentation.AddEndpointAttributes(span, endpoint, status)

	if status != http.StatusCreated && status != http.StatusOK {
		authErr := s.registrationEndpointError(status, respBody)
		instrumentation.RecordError(span, authErr)
		return nil, authErr
	}

	resp, err := oauthclient.ParseRegistrationResponse(req, respBody)
	if err != nil {
		authErr := registrationResponseError(err)
		instrumentation.RecordError(span, authErr)
		return nil, authErr
	}

	s.inst.Metrics().RecordClientRegistration(ctx, resp.ClientSecret != "")
	instrumentation.SetSpanSuccess(span)
	s.logger.InfoContext(ctx, "client registered", "client_id", resp.ClientID)
	return resp, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return oauthclient.AsAuthError(err)
	}
	return nil
}

func (s *Service) do(req *http.Request) ([]byte, int, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (s *Service) fail(ctx context.Context, span trace.Span, grantType string, err *oauthclient.AuthError) *oauthclient.AuthError {
	instrumentation.RecordError(span, err)
	s.inst.Metrics().RecordExchangeError(ctx, grantType, err.ErrorCode)
	s.logger.WarnContext(ctx, "token endpoint call failed",
		"grant_type", grantType,
		"error", err)
	return err
}

// tokenEndpointError interprets a non-200 token endpoint response.
// RFC 6749 delivers error details as a JSON body on a 400; some providers
// use other 4xx codes. A 5xx or undecodable body is a server error.
func (s *Service) tokenEndpointError(status int, body []byte) *oauthclient.AuthError {
	if status >= http.StatusInternalServerError {
		return oauthclient.ErrServer
	}
	obj, err := jsonutil.Parse(body)
	if err != nil {
		return oauthclient.ErrServer.WithCause(err)
	}
	code, err := obj.String("error")
	if err != nil {
		return oauthclient.ErrServer
	}
	desc, _ := obj.OptString("error_description", "")
	uri, _ := obj.OptString("error_uri", "")
	return oauthclient.TokenErrorForCode(code).WithDescription(desc, uri)
}

// registrationEndpointError interprets a non-2xx registration endpoint
// response (RFC 7591 section 3.2.2).
func (s *Service) registrationEndpointError(status int, body []byte) *oauthclient.AuthError {
	if status >= http.StatusInternalServerError {
		return oauthclient.ErrServer
	}
	obj, err := jsonutil.Parse(body)
	if err != nil {
		return oauthclient.ErrServer.WithCause(err)
	}
	code, err := obj.String("error")
	if err != nil {
		return oauthclient.ErrServer
	}
	desc, _ := obj.OptString("error_description", "")
	return oauthclient.RegistrationErrorForCode(code).WithDescription(desc, "")
}

// tokenResponseError classifies a token response parse failure: bodies
// that are not JSON at all are deserialization errors, bodies that are
// JSON but violate the message contract are construction errors.
func tokenResponseError(err error) *oauthclient.AuthError {
	authErr := oauthclient.AsAuthError(err)
	if authErr.Is(oauthclient.ErrJSONDeserialization) || authErr.Is(oauthclient.ErrProgramCanceledFlow) {
		return authErr
	}
	return oauthclient.ErrTokenResponseConstruction.WithCause(err)
}

// registrationResponseError classifies a registration response parse
// failure the same way tokenResponseError does for token responses.
func registrationResponseError(err error) *oauthclient.AuthError {
	authErr := oauthclient.AsAuthError(err)
	if authErr.Is(oauthclient.ErrJSONDeserialization) || authErr.Is(oauthclient.ErrProgramCanceledFlow) {
		return authErr
	}
	return oauthclient.ErrInvalidRegistrationResponse.WithCause(err)
}

func durationMs(start time.Time, clock oauthclient.Clock) float64 {
	return float64(clock.Now().Sub(start)) / float64(time.Millisecond)
}
