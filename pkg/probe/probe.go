// Package probe performs single readiness checks against a local server.
//
// A probe never returns an error value on its own: every attempt produces a
// Result whose Outcome tells the caller whether the target is ready, refused
// the connection, timed out, or answered with a status the Policy rejects.
package probe

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

type Outcome string

const (
	OutcomeReady     Outcome = "ready"
	OutcomeRefused   Outcome = "refused"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeBadStatus Outcome = "bad_status"
	OutcomeError     Outcome = "error"
)

type Result struct {
	Outcome    Outcome       `json:"outcome"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	Err        error         `json:"-"`
}

func (r Result) Ready() bool { return r.Outcome == OutcomeReady }

// String is a short description suitable for a diagnostic message.
func (r Result) String() string {
	switch {
	case r.Outcome == OutcomeBadStatus:
		return fmt.Sprintf("bad_status: unexpected status %d", r.StatusCode)
	case r.Err != nil:
		return string(r.Outcome) + ": " + r.Err.Error()
	default:
		return string(r.Outcome)
	}
}

type Prober interface {
	Probe(ctx context.Context) Result
	Target() string
}

// Policy decides which HTTP status codes count as ready.
type Policy string

const (
	// PolicyAnyResponse treats any HTTP response as ready, error statuses included.
	PolicyAnyResponse    Policy = "any"
	PolicyNotServerError Policy = "not-server-error"
	PolicySuccess        Policy = "success"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAnyResponse:
		return PolicyAnyResponse, nil
	case PolicyNotServerError, PolicySuccess:
		return Policy(s), nil
	default:
		return "", errors.Errorf("unknown readiness policy %q", s)
	}
}

func (p Policy) Accepts(status int) bool {
	switch p {
	case PolicySuccess:
		return status >= 200 && status < 300
	case PolicyNotServerError:
		return status >= 200 && status < 500
	default:
		return status > 0
	}
}

type HTTP struct {
	URL     string
	Timeout time.Duration
	Policy  Policy
	Client  *http.Client
}

var _ Prober = (*HTTP)(nil)

func NewHTTP(url string, timeout time.Duration, policy Policy) *HTTP {
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	return &HTTP{
		URL:     url,
		Timeout: timeout,
		Policy:  policy,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) Target() string { return h.URL }

func (h *HTTP) Probe(ctx context.Context) Result {
	start := time.Now()
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: h.Timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: errors.Wrap(err, "build request"), Latency: time.Since(start)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Outcome: classify(err), Err: err, Latency: time.Since(start)}
	}
	_ = resp.Body.Close()

	res := Result{StatusCode: resp.StatusCode, Latency: time.Since(start), Outcome: OutcomeReady}
	if !h.Policy.Accepts(resp.StatusCode) {
		res.Outcome = OutcomeBadStatus
	}
	return res
}

// TCP only checks that something accepts connections on Address.
type TCP struct {
	Address string
	Timeout time.Duration
}

var _ Prober = (*TCP)(nil)

func (t *TCP) Target() string { return "tcp://" + t.Address }

func (t *TCP) Probe(ctx context.Context) Result {
	start := time.Now()
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{Outcome: classify(err), Err: err, Latency: time.Since(start)}
	}
	_ = conn.Close()
	return Result{Outcome: OutcomeReady, Latency: time.Since(start)}
}

func classify(err error) Outcome {
	if err == nil {
		return OutcomeReady
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) {
		return OutcomeRefused
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, os.ErrDeadlineExceeded) {
		return OutcomeTimeout
	}
	var ne net.Error
	if stderrors.As(err, &ne) && ne.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeError
}
