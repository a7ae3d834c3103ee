// Package oracle queries the external CI system for build status.
//
// The oracle is the only place that sees the CI wire format. It normalizes
// the upper-case result strings into domain.BuildStatus and collapses every
// transport-level problem (unreachable, timeout, TLS failure, malformed
// payload) into StatusUnknown: the absence of a response is never a build
// outcome, so an unreachable CI can never complete a tracked build.
package oracle

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"buildwatch/internal/circuitbreaker"
	"buildwatch/internal/domain"
	"buildwatch/internal/metrics"
)

// ErrBuildNotFound is returned when the CI system has no such job or build.
var ErrBuildNotFound = errors.New("build not found")

const maxResponseBytes = 1 << 20

// Config holds the CI endpoint configuration.
type Config struct {
	BaseURL string
	Token   string // bearer token, supplied out-of-band

	// Timeout bounds each status check. A timed-out check is Unknown.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS verification. Some internal CI
	// deployments run on self-signed certificates; this mirrors their
	// existing trade-off and is off by default.
	InsecureSkipVerify bool
}

// MetricsSink receives status check metrics. Implementations must not block.
type MetricsSink interface {
	StatusCheckCompleted(resultClass string, duration time.Duration)
}

// Oracle performs read-only status checks against the CI build API.
type Oracle struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker // optional, nil = disabled
	metrics MetricsSink                    // optional, nil = disabled
}

func New(cfg Config) *Oracle {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	transport := http.DefaultTransport
	if cfg.InsecureSkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}

	return &Oracle{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		timeout: timeout,
		client:  &http.Client{Transport: transport},
	}
}

// WithBreaker attaches a per-job circuit breaker. While a job's circuit is
// open its checks are skipped and reported as Unknown.
func (o *Oracle) WithBreaker(cb *circuitbreaker.CircuitBreaker) *Oracle {
	o.breaker = cb
	return o
}

// WithMetrics attaches a metrics sink recording per-check outcomes.
func (o *Oracle) WithMetrics(sink MetricsSink) *Oracle {
	o.metrics = sink
	return o
}

// buildPayload is the CI build API response. result is null while the
// build is still running.
type buildPayload struct {
	Building bool   `json:"building"`
	Result   string `json:"result"`
}

// CheckStatus returns the current status of one (job, build) pair.
// Transport errors and malformed payloads yield StatusUnknown with a nil
// error; only a missing build is an error (ErrBuildNotFound).
func (o *Oracle) CheckStatus(ctx context.Context, jobName, buildNumber string) (domain.BuildStatus, error) {
	if jobName == "" {
		return domain.StatusUnknown, errors.New("job name is empty")
	}

	start := time.Now()
	result, class, err := o.checkStatus(ctx, jobName, buildNumber)
	if o.metrics != nil {
		o.metrics.StatusCheckCompleted(class, time.Since(start))
	}
	return result, err
}

func (o *Oracle) checkStatus(ctx context.Context, jobName, buildNumber string) (domain.BuildStatus, string, error) {
	if o.breaker != nil {
		if err := o.breaker.Allow(jobName); err != nil {
			log.Printf("oracle: job=%s circuit open, skipping check", jobName)
			return domain.StatusUnknown, metrics.ResultClassCircuitOpen, nil
		}
	}

	endpoint := fmt.Sprintf("%s/job/%s/%s/api/json",
		o.baseURL, url.PathEscape(jobName), url.PathEscape(buildNumber))

	body, status, err := o.get(ctx, endpoint)
	if err != nil {
		o.recordFailure(jobName)
		log.Printf("oracle: job=%s build=%s unreachable: %v", jobName, buildNumber, err)
		return domain.StatusUnknown, metrics.ResultClassUnknown, nil
	}

	switch {
	case status == http.StatusNotFound:
		o.recordSuccess(jobName)
		return domain.StatusUnknown, metrics.ResultClassNotFound, ErrBuildNotFound
	case status >= 500:
		// CI is up but unhealthy. Counts toward the breaker like a
		// transport failure.
		o.recordFailure(jobName)
		log.Printf("oracle: job=%s build=%s CI returned %d", jobName, buildNumber, status)
		return domain.StatusUnknown, metrics.ResultClassUnknown, nil
	case status != http.StatusOK:
		o.recordSuccess(jobName)
		log.Printf("oracle: job=%s build=%s unexpected status %d", jobName, buildNumber, status)
		return domain.StatusUnknown, metrics.ResultClassUnknown, nil
	}

	o.recordSuccess(jobName)

	var payload buildPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("oracle: job=%s build=%s malformed payload: %v", jobName, buildNumber, err)
		return domain.StatusUnknown, metrics.ResultClassUnknown, nil
	}

	result := domain.StatusFromCIResult(payload.Building, payload.Result)
	return result, metrics.ClassifyResult(result, nil), nil
}

// jobPayload is the CI job API response, reduced to the last build pointer.
type jobPayload struct {
	LastBuild *struct {
		Number json.Number `json:"number"`
	} `json:"lastBuild"`
}

// LastBuildNumber resolves a job's most recent build number. Used when a
// user asks about a job without naming a build. Unlike CheckStatus, an
// unreachable CI is an error here: the caller has nothing to fall back on.
func (o *Oracle) LastBuildNumber(ctx context.Context, jobName string) (string, error) {
	if jobName == "" {
		return "", errors.New("job name is empty")
	}

	endpoint := fmt.Sprintf("%s/job/%s/api/json", o.baseURL, url.PathEscape(jobName))

	body, status, err := o.get(ctx, endpoint)
	if err != nil {
		o.recordFailure(jobName)
		return "", fmt.Errorf("query job %s: %w", jobName, err)
	}
	o.recordSuccess(jobName)

	if status == http.StatusNotFound {
		return "", ErrBuildNotFound
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("query job %s: CI returned %d", jobName, status)
	}

	var payload jobPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("query job %s: malformed payload: %w", jobName, err)
	}
	if payload.LastBuild == nil || payload.LastBuild.Number.String() == "" {
		return "", ErrBuildNotFound
	}

	return payload.LastBuild.Number.String(), nil
}

// get performs one bounded GET and returns the body and status code.
func (o *Oracle) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	// CI status payloads are small; the limit guards against a
	// misconfigured base URL pointing at something that streams.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

func (o *Oracle) recordSuccess(job string) {
	if o.breaker != nil {
		o.breaker.RecordSuccess(job)
	}
}

func (o *Oracle) recordFailure(job string) {
	if o.breaker != nil {
		o.breaker.RecordFailure(job)
	}
}
