// Package dispatch routes operations either to the in-process home handlers
// or over the loopback interface to a detected sibling integration.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/infrastructure/httpclient"
	"github.com/platformbridge/backend/internal/infrastructure/logger"
	"github.com/platformbridge/backend/internal/infrastructure/telemetry"
)

const (
	// DefaultLoopbackPort is used when the host port lookup fails
	DefaultLoopbackPort = 7472
	// DefaultLoopbackHost is the loopback address siblings listen on
	DefaultLoopbackHost = "localhost"

	routeLocal  = "local"
	routeRemote = "remote"
)

// Caller is the subset of the resilient call client the dispatcher needs
type Caller interface {
	Get(ctx context.Context, rawURL string, opts ...httpclient.CallOption) (*httpclient.Response, error)
	Post(ctx context.Context, rawURL string, body any, opts ...httpclient.CallOption) (*httpclient.Response, error)
}

// Recorder receives dispatch telemetry
type Recorder interface {
	RecordDispatch(ctx context.Context, operation, platform, route string, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordDispatch(context.Context, string, string, string, error) {}

// Dispatcher is the single entry point translating an operation on a
// platform into a local call or a loopback call.
type Dispatcher struct {
	detector    integration.Detector
	client      Caller
	ports       integration.PortProvider
	handlers    *LocalHandlers
	mappings    []integration.IntegrationMapping
	descriptors map[integration.OperationKind]integration.OperationDescriptor
	host        string
	defaultPort int
	logger      *zap.Logger
	metrics     Recorder
	replay      ReplayStore
	replayTTL   time.Duration
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithHost overrides the loopback host
func WithHost(host string) Option {
	return func(d *Dispatcher) {
		if host != "" {
			d.host = host
		}
	}
}

// WithDefaultPort overrides the port used when the port lookup fails
func WithDefaultPort(port int) Option {
	return func(d *Dispatcher) {
		if port > 0 {
			d.defaultPort = port
		}
	}
}

// WithMappings replaces the platform routing table
func WithMappings(mappings []integration.IntegrationMapping) Option {
	return func(d *Dispatcher) {
		d.mappings = mappings
	}
}

// WithDescriptors replaces the operation call table
func WithDescriptors(descriptors map[integration.OperationKind]integration.OperationDescriptor) Option {
	return func(d *Dispatcher) {
		d.descriptors = descriptors
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithRecorder sets the dispatch telemetry sink
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		d.metrics = r
	}
}

// New creates a Dispatcher. ports may be nil, in which case the default
// loopback port is always used.
func New(detector integration.Detector, client Caller, ports integration.PortProvider, handlers *LocalHandlers, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		detector:    detector,
		client:      client,
		ports:       ports,
		handlers:    handlers,
		mappings:    integration.KnownIntegrations,
		descriptors: integration.OperationDescriptors,
		host:        DefaultLoopbackHost,
		defaultPort: DefaultLoopbackPort,
		logger:      zap.NewNop(),
		metrics:     noopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs kind on platform. The home platform is served locally and
// every other platform over loopback.
func (d *Dispatcher) Dispatch(ctx context.Context, kind integration.OperationKind, platform integration.PlatformID, payload any) (json.RawMessage, error) {
	if platform.IsHome() {
		return d.DispatchLocal(ctx, kind, payload)
	}
	return d.DispatchRemote(ctx, kind, platform, payload)
}

// DispatchLocal runs kind through the home handler table
func (d *Dispatcher) DispatchLocal(ctx context.Context, kind integration.OperationKind, payload any) (json.RawMessage, error) {
	ctx, span := telemetry.StartDispatchSpan(ctx, routeLocal, kind.String(), integration.HomePlatform.String())
	out, err := d.dispatchLocal(ctx, kind, payload)
	d.finish(ctx, kind, integration.HomePlatform, routeLocal, err)
	telemetry.EndSpan(span, err)
	return out, err
}

func (d *Dispatcher) dispatchLocal(ctx context.Context, kind integration.OperationKind, payload any) (json.RawMessage, error) {
	handler, ok := d.handlers.Lookup(kind)
	if !ok {
		return nil, &integration.UnsupportedOperationError{Operation: kind}
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	if key, ok := d.replayKey(ctx, kind); ok {
		return d.runOnce(ctx, key, func() (json.RawMessage, error) {
			return runLocal(ctx, kind, handler, raw)
		})
	}
	return runLocal(ctx, kind, handler, raw)
}

func runLocal(ctx context.Context, kind integration.OperationKind, handler LocalHandler, raw json.RawMessage) (json.RawMessage, error) {
	result, err := handler(ctx, raw)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s response: %w", kind, err)
	}
	return out, nil
}

// DispatchRemote calls kind on the sibling integration for platform.
// It fails without any network attempt when the sibling was not detected.
func (d *Dispatcher) DispatchRemote(ctx context.Context, kind integration.OperationKind, platform integration.PlatformID, payload any) (json.RawMessage, error) {
	ctx, span := telemetry.StartDispatchSpan(ctx, routeRemote, kind.String(), platform.String())
	out, err := d.dispatchRemote(ctx, kind, platform, payload)
	d.finish(ctx, kind, platform, routeRemote, err)
	telemetry.EndSpan(span, err)
	return out, err
}

func (d *Dispatcher) dispatchRemote(ctx context.Context, kind integration.OperationKind, platform integration.PlatformID, payload any) (json.RawMessage, error) {
	if !d.detector.IsDetected(platform) {
		return nil, &integration.NotInstalledError{Platform: platform}
	}
	desc, ok := d.descriptors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrOperationNotConfigured, kind)
	}

	target := d.OperationURL(platform, kind)
	telemetry.SetAttribute(trace.SpanFromContext(ctx), telemetry.SpanAttrTarget, target)
	opts := []httpclient.CallOption{
		httpclient.WithTimeout(desc.Timeout),
		httpclient.WithMaxRetries(desc.MaxRetries),
	}
	if id := logger.GetRequestID(ctx); id != "" {
		opts = append(opts, httpclient.WithHeader("X-Request-ID", id))
	}

	resp, err := d.client.Post(ctx, target, payload, opts...)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &RemoteRejectedError{
			Platform:   platform,
			Operation:  kind,
			StatusCode: resp.StatusCode,
			Status:     fmt.Sprintf("%d %s", resp.StatusCode, resp.StatusText),
			Body:       resp.Body,
		}
	}
	if len(resp.Body) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(resp.Body), nil
}

// finish records the dispatch and logs terminal failures
func (d *Dispatcher) finish(ctx context.Context, kind integration.OperationKind, platform integration.PlatformID, route string, err error) {
	d.metrics.RecordDispatch(ctx, kind.String(), platform.String(), route, err)
	if err == nil {
		return
	}
	logger.ForContext(ctx, d.logger).Error("Dispatch failed",
		zap.String("operation", kind.String()),
		zap.String("platform", platform.String()),
		zap.String("route", route),
		zap.Error(err),
	)
}

// ---------------------------------------------------------------------------
// Loopback addressing
// ---------------------------------------------------------------------------

// BaseURL returns the loopback base address, falling back to the default
// port when the host lookup fails.
func (d *Dispatcher) BaseURL() string {
	port := d.defaultPort
	if d.ports != nil {
		p, err := d.ports.LoopbackPort()
		if err == nil {
			port = p
		} else {
			d.logger.Debug("Using default loopback port", zap.Int("port", port), zap.Error(err))
		}
	}
	return "http://" + net.JoinHostPort(d.host, strconv.Itoa(port))
}

// OperationURL returns the loopback endpoint for kind on platform
func (d *Dispatcher) OperationURL(platform integration.PlatformID, kind integration.OperationKind) string {
	routingID := integration.RoutingIDFor(d.mappings, platform)
	return fmt.Sprintf("%s/integrations/%s/operations/%s",
		d.BaseURL(), url.PathEscape(routingID), url.PathEscape(kind.String()))
}

// StatusURL returns the loopback status endpoint for platform
func (d *Dispatcher) StatusURL(platform integration.PlatformID) string {
	routingID := integration.RoutingIDFor(d.mappings, platform)
	return fmt.Sprintf("%s/integrations/%s/status", d.BaseURL(), url.PathEscape(routingID))
}

// Detector exposes the registry the dispatcher consults
func (d *Dispatcher) Detector() integration.Detector {
	return d.detector
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage("null"), nil
		}
		return p, nil
	case []byte:
		if len(p) == 0 {
			return json.RawMessage("null"), nil
		}
		return json.RawMessage(p), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrInvalidPayload, err)
	}
	return raw, nil
}
