package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/infrastructure/httpclient"
)

// probeTimeout bounds a single status probe
const probeTimeout = 2 * time.Second

// Invoke dispatches a typed request and decodes the typed response
func Invoke[Req, Resp any](ctx context.Context, d *Dispatcher, kind integration.OperationKind, platform integration.PlatformID, req Req) (Resp, error) {
	var resp Resp
	raw, err := d.Dispatch(ctx, kind, platform, req)
	if err != nil {
		return resp, err
	}
	if len(raw) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, fmt.Errorf("decode %s response: %w", kind, err)
	}
	return resp, nil
}

// BroadcastResult is the outcome of one platform in a broadcast
type BroadcastResult struct {
	Platform integration.PlatformID
	Response json.RawMessage
	Err      error
}

// Broadcast dispatches kind to every platform concurrently. Each platform
// fails independently and results keep the order of platforms.
func (d *Dispatcher) Broadcast(ctx context.Context, kind integration.OperationKind, platforms []integration.PlatformID, payload any) []BroadcastResult {
	results := make([]BroadcastResult, len(platforms))
	var g errgroup.Group
	for i, platform := range platforms {
		g.Go(func() error {
			resp, err := d.Dispatch(ctx, kind, platform, payload)
			results[i] = BroadcastResult{Platform: platform, Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ProbeResult describes whether a platform can currently be reached
type ProbeResult struct {
	Platform   integration.PlatformID `json:"platform"`
	Home       bool                   `json:"home"`
	Detected   bool                   `json:"detected"`
	Reachable  bool                   `json:"reachable"`
	StatusCode int                    `json:"statusCode,omitempty"`
	Latency    time.Duration          `json:"latency,omitempty"`
	Body       json.RawMessage        `json:"body,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Probe checks the status endpoint of the sibling for platform without
// retrying. It returns a NotInstalledError for undetected platforms;
// transport failures are reported on the result.
func (d *Dispatcher) Probe(ctx context.Context, platform integration.PlatformID) (ProbeResult, error) {
	result := ProbeResult{Platform: platform}
	if platform.IsHome() {
		result.Home = true
		result.Detected = true
		result.Reachable = true
		return result, nil
	}
	if !d.detector.IsDetected(platform) {
		return result, &integration.NotInstalledError{Platform: platform}
	}
	result.Detected = true

	start := time.Now()
	resp, err := d.client.Get(ctx, d.StatusURL(platform),
		httpclient.WithTimeout(probeTimeout),
		httpclient.WithMaxRetries(0),
	)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.StatusCode = resp.StatusCode
	result.Reachable = resp.IsSuccess()
	if json.Valid(resp.Body) {
		result.Body = resp.Body
	}
	return result, nil
}
