// Package server exposes the dashboard page over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"perennial-dash/internal/config"
	"perennial-dash/internal/dashboard"
	"perennial-dash/internal/state"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultSubmissionLimit = 20

// Journal lists recorded submissions.
type Journal interface {
	Submissions(ctx context.Context, limit int) ([]state.Submission, error)
}

type Options struct {
	HTTP    config.HTTPConfig
	Metrics config.MetricsConfig
	// MetricsHandler is mounted on Metrics.Path when metrics are enabled.
	MetricsHandler http.Handler
	Page           *dashboard.Page
	Journal        Journal
	Log            *zap.Logger
}

type Server struct {
	opts Options
	log  *zap.Logger
	srv  *http.Server
}

func New(opts Options) (*Server, error) {
	if opts.Page == nil {
		return nil, errors.New("page is required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{opts: opts, log: log}
	router, err := s.Router()
	if err != nil {
		return nil, err
	}
	s.srv = &http.Server{
		Addr:              opts.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Router() (http.Handler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"short": dashboard.ShortAddress,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(tmpl)

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/", s.handleIndex)

	r.POST("/wallet/connect", s.handleConnect)
	r.POST("/wallet/disconnect", s.handleDisconnect)
	r.POST("/markets/refresh", s.handleMarketsRefresh)
	r.POST("/portfolio/refresh", s.handlePortfolioRefresh)
	r.POST("/positions/open", s.handleOpen)
	r.POST("/positions/close", s.handleClose)

	api := r.Group("/api")
	api.GET("/page", s.handlePageJSON)
	api.GET("/submissions", s.handleSubmissions)

	if s.opts.Metrics.EnabledValue() && s.opts.MetricsHandler != nil {
		r.GET(s.opts.Metrics.Path, gin.WrapH(s.opts.MetricsHandler))
	}
	return r, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("address", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	timeout := s.opts.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "page.html", s.opts.Page.View())
}

func (s *Server) handlePageJSON(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Page.View())
}

func (s *Server) handleConnect(c *gin.Context) {
	// the error is shown on the wallet card
	_ = s.opts.Page.Connect(c.Request.Context())
	s.back(c)
}

func (s *Server) handleDisconnect(c *gin.Context) {
	s.opts.Page.Disconnect()
	s.back(c)
}

func (s *Server) handleMarketsRefresh(c *gin.Context) {
	s.opts.Page.Markets.Load(c.Request.Context())
	s.back(c)
}

func (s *Server) handlePortfolioRefresh(c *gin.Context) {
	s.opts.Page.Portfolio.Load(c.Request.Context())
	s.back(c)
}

func (s *Server) handleOpen(c *gin.Context) {
	s.opts.Page.Positions.SetForm(formFromRequest(c))
	s.opts.Page.Positions.Open(c.Request.Context())
	s.back(c)
}

func (s *Server) handleClose(c *gin.Context) {
	s.opts.Page.Positions.SetForm(formFromRequest(c))
	s.opts.Page.Positions.Close(c.Request.Context())
	s.back(c)
}

func (s *Server) handleSubmissions(c *gin.Context) {
	if s.opts.Journal == nil {
		c.JSON(http.StatusOK, gin.H{"submissions": []state.Submission{}})
		return
	}
	limit := defaultSubmissionLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	subs, err := s.opts.Journal.Submissions(c.Request.Context(), limit)
	if err != nil {
		s.log.Warn("list submissions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if subs == nil {
		subs = []state.Submission{}
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

func formFromRequest(c *gin.Context) dashboard.Form {
	return dashboard.Form{
		Market:     c.PostForm("market"),
		Side:       c.PostForm("side"),
		Amount:     c.PostForm("amount"),
		LimitPrice: c.PostForm("limitPrice"),
	}
}

func (s *Server) back(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
}
