// Package mockserver is a small reference merchant that speaks the checkout
// protocol. It backs the harness' own tests and the `conform mock` command.
//
// Sessions live in memory. Idempotency keys are remembered for 24 hours
// together with the canonical form of the request body they were first used
// with.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"

	"github.com/Use-Tusk/checkout-conformance/internal/client"
)

const (
	idempotencyTTL     = 24 * time.Hour
	idempotencyCleanup = time.Hour
)

// Faults make the merchant misbehave in specific ways so the harness can be
// tested against a non-conforming target.
type Faults struct {
	// WrongTotal reports a grand total 10 minor units too low.
	WrongTotal bool
	// AcceptTerminalMutations lets update, complete and cancel succeed on
	// completed or canceled sessions.
	AcceptTerminalMutations bool
	// IgnoreIdempotencyBody replays the stored response for a reused key
	// even when the body differs.
	IgnoreIdempotencyBody bool
	// DropKeyEcho omits the Idempotency-Key response header.
	DropKeyEcho bool
}

type Options struct {
	// APIKey, when set, is required as a bearer token.
	APIKey  string
	Catalog []Product
	Faults  Faults
	// BaseURL is used for order permalinks.
	BaseURL string
}

type Server struct {
	apiKey  string
	catalog []Product
	faults  Faults
	baseURL string

	mu       sync.Mutex
	sessions map[string]*session

	idemMu sync.Mutex
	idem   *cache.Cache

	validate *validator.Validate
	engine   *gin.Engine
}

func New(opts Options) *Server {
	s := &Server{
		apiKey:   opts.APIKey,
		catalog:  opts.Catalog,
		faults:   opts.Faults,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		sessions: make(map[string]*session),
		idem:     cache.New(idempotencyTTL, idempotencyCleanup),
		validate: newValidator(),
	}
	if len(s.catalog) == 0 {
		s.catalog = DefaultCatalog
	}
	if s.baseURL == "" {
		s.baseURL = "https://merchant.example"
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving the protocol.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.echoHeaders(), s.requireAuth())

	g := r.Group("/checkout_sessions")
	g.POST("", s.idempotent(s.createSession))
	g.GET("/:id", s.getSession)
	g.POST("/:id", s.idempotent(s.updateSession))
	g.POST("/:id/complete", s.idempotent(s.completeSession))
	g.POST("/:id/cancel", s.idempotent(s.cancelSession))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apiError{Type: "invalid_request", Code: "not_found", Message: "Unknown endpoint"})
	})
	return r
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Debug("Mock merchant listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("mock merchant: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("mock merchant shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) echoHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(client.HeaderRequestID); id != "" {
			c.Header(client.HeaderRequestID, id)
		}
		if key := c.GetHeader(client.HeaderIdempotencyKey); key != "" && !s.faults.DropKeyEcho {
			c.Header(client.HeaderIdempotencyKey, key)
		}
		c.Next()
	}
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader(client.HeaderAuthorization) != "Bearer "+s.apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Type:    "invalid_request",
				Code:    "unauthorized",
				Message: "Missing or invalid API key",
			})
			return
		}
		c.Next()
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts the first validator failure into a protocol
// error whose param is a JSONPath into the request body.
func validationError(err error) *apiError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &apiError{Type: "invalid_request", Code: "invalid", Message: err.Error()}
	}
	fe := verrs[0]

	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	code := "invalid"
	if fe.Tag() == "required" {
		code = "missing"
	}
	return &apiError{
		Type:    "invalid_request",
		Code:    code,
		Message: fmt.Sprintf("%s failed the %q check", ns, fe.Tag()),
		Param:   "$." + ns,
	}
}
