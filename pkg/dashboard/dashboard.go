// Package dashboard serves the page that frames the web app, plus a JSON
// status endpoint and Prometheus metrics.
package dashboard

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/webdevreplits/PlatformSupport/pkg/bootstrap"
	"github.com/webdevreplits/PlatformSupport/pkg/envdetect"
	"github.com/webdevreplits/PlatformSupport/pkg/metrics"
	"github.com/webdevreplits/PlatformSupport/pkg/supervise"
)

//go:embed templates/*.html
var templatesFS embed.FS

// StatusSource is satisfied by *supervise.Supervisor.
type StatusSource interface {
	Status() supervise.Status
}

type Options struct {
	Title       string
	Environment envdetect.Kind
	// AppURL is the iframe source and the direct-access link.
	AppURL string
	Port   int
	Source StatusSource
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	// Retry re-runs the launch after a failure. Nil disables POST /api/retry.
	Retry func()
}

type InstallReport struct {
	Outcome  bootstrap.Outcome `json:"outcome"`
	Duration time.Duration     `json:"duration"`
	Error    string            `json:"error,omitempty"`
}

type StatusResponse struct {
	Title            string           `json:"title"`
	Environment      envdetect.Kind   `json:"environment"`
	EnvironmentLabel string           `json:"environment_label"`
	AppURL           string           `json:"app_url"`
	Server           supervise.Status `json:"server"`
	Install          *InstallReport   `json:"install,omitempty"`
	Retrying         bool             `json:"retrying,omitempty"`
}

type Server struct {
	opts Options

	mu      sync.RWMutex
	install *InstallReport

	retrying atomic.Bool
}

func New(opts Options) *Server {
	if opts.Title == "" {
		opts.Title = "Platform Support"
	}
	return &Server{opts: opts}
}

// SetInstall records the dependency bootstrap result for display.
func (s *Server) SetInstall(res bootstrap.Result, err error) {
	r := &InstallReport{Outcome: res.Outcome, Duration: res.Duration}
	if err != nil {
		r.Error = err.Error()
	}
	s.mu.Lock()
	s.install = r
	s.mu.Unlock()
}

func (s *Server) snapshot() StatusResponse {
	resp := StatusResponse{
		Title:            s.opts.Title,
		Environment:      s.opts.Environment,
		EnvironmentLabel: s.opts.Environment.Label(),
		AppURL:           s.opts.AppURL,
		Retrying:         s.retrying.Load(),
	}
	if s.opts.Source != nil {
		resp.Server = s.opts.Source.Status()
	}
	s.mu.RLock()
	if s.install != nil {
		ir := *s.install
		resp.Install = &ir
	}
	s.mu.RUnlock()
	return resp
}

func (s *Server) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.SetHTMLTemplate(template.Must(template.New("").ParseFS(templatesFS, "templates/*.html")))

	g.GET("/", s.handleIndex)
	g.GET("/api/status", s.handleStatus)
	g.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if s.opts.Gatherer != nil {
		g.GET("/metrics", gin.WrapH(metrics.Handler(s.opts.Gatherer)))
	}
	if s.opts.Retry != nil {
		g.POST("/api/retry", s.handleRetry)
	}
	return g
}

// Run serves the dashboard on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("dashboard listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "dashboard server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown dashboard")
		}
		return nil
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.snapshot())
}

// handleRetry starts one background retry. ?redirect=1 answers the page form
// with a redirect back to the index.
func (s *Server) handleRetry(c *gin.Context) {
	if s.opts.Source != nil && s.opts.Source.Status().Phase == supervise.PhaseReady {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	if !s.retrying.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "retry already in progress"})
		return
	}
	log.Info().Msg("retry requested from dashboard")
	go func() {
		defer s.retrying.Store(false)
		s.opts.Retry()
	}()
	if c.Query("redirect") != "" {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"retrying": true})
}

type pageData struct {
	StatusResponse
	Ready   bool
	Pending bool
	Failed  bool
	// CanRetry shows the retry button on the failure page.
	CanRetry bool
	Port     int
	Badge    string
}

func (s *Server) handleIndex(c *gin.Context) {
	snap := s.snapshot()
	d := pageData{StatusResponse: snap, Port: s.opts.Port, Badge: badgeClass(snap.Environment)}
	switch snap.Server.Phase {
	case supervise.PhaseReady:
		d.Ready = true
	case supervise.PhaseFailed:
		if snap.Retrying {
			d.Pending = true
			break
		}
		d.Failed = true
		d.CanRetry = s.opts.Retry != nil
	default:
		d.Pending = true
	}
	c.HTML(http.StatusOK, "index.html", d)
}

func badgeClass(k envdetect.Kind) string {
	switch k {
	case envdetect.Managed:
		return "managed"
	case envdetect.Sandbox:
		return "sandbox"
	default:
		return "local"
	}
}
