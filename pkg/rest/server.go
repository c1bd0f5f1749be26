package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edgeflare/pgview/pkg/httputil"
	pg "github.com/edgeflare/pgview/pkg/pgx"
	"github.com/edgeflare/pgview/pkg/pgx/schema"
	"github.com/edgeflare/pgview/pkg/view"
	"go.uber.org/zap"
)

const (
	// DefaultMaxBodyBytes bounds the size of a query request body.
	DefaultMaxBodyBytes int64 = 1 << 20

	healthTimeout   = 2 * time.Second
	internalMessage = "Internal server error."
)

// Catalog is a relation catalog that can also list its contents.
// *schema.Cache implements it.
type Catalog interface {
	view.Catalog
	schema.Snapshotter
}

// Options configures a Server. Only Service is required.
type Options struct {
	Service *view.Service
	// Pinger backs GET /healthz. A nil Pinger always reports ok.
	Pinger pg.Pinger
	// Catalog enables GET /view/schema and GET /openapi.json.
	Catalog      Catalog
	Logger       *zap.Logger
	BaseURL      string
	TargetKey    string
	MaxBodyBytes int64
	Info         schema.OpenAPIInfo
}

// Server exposes view queries over HTTP.
type Server struct {
	service      *view.Service
	pinger       pg.Pinger
	catalog      Catalog
	openapi      *schema.OpenAPIGenerator
	logger       *zap.Logger
	baseURL      string
	targetKey    string
	maxBodyBytes int64
}

func NewServer(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("rest: nil view service")
	}
	s := &Server{
		service:      opts.Service,
		pinger:       opts.Pinger,
		catalog:      opts.Catalog,
		logger:       opts.Logger,
		baseURL:      opts.BaseURL,
		targetKey:    opts.TargetKey,
		maxBodyBytes: opts.MaxBodyBytes,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.targetKey == "" {
		s.targetKey = view.DefaultTargetKey
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}
	if s.catalog != nil {
		s.openapi = schema.NewOpenAPIGenerator(s.catalog, s.baseURL, s.targetKey, opts.Info)
	}
	return s, nil
}

// Register mounts the server's routes on r. Query routes live under BaseURL,
// the health check at the root.
func (s *Server) Register(r *httputil.Router) {
	r.Handle("GET /healthz", http.HandlerFunc(s.handleHealth))

	api := r
	if s.baseURL != "" {
		api = r.Group(s.baseURL)
	}
	api.Handle("POST /view/query", http.HandlerFunc(s.handleQuery))
	if s.catalog != nil {
		api.Handle("GET /view/schema", http.HandlerFunc(s.handleSchema))
		api.Handle("GET /openapi.json", s.openapi)
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	defer body.Close()

	req, err := view.DecodeRequest(body, s.targetKey)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes.", tooLarge.Limit))
			return
		}
		s.fail(w, r, err)
		return
	}
	httputil.AddLogFields(r, zap.String("target", req.Target), zap.Int("filters", len(req.Filters)))

	env, err := s.service.Query(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, env)
}

// fail maps err to a status code and writes the error envelope. Internal
// errors are logged and never leak their detail to the caller.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := view.KindOf(err)
	httputil.AddLogFields(r, zap.String("error_kind", kind.String()))

	status, message := StatusFor(err)
	switch kind {
	case view.KindInternal:
		s.logger.Error("view query failed",
			zap.String("req_id", httputil.RequestID(r)),
			zap.Error(err),
		)
	case view.KindBackend:
		s.logger.Warn("view query rejected",
			zap.String("req_id", httputil.RequestID(r)),
			zap.Error(errors.Unwrap(err)),
		)
	}
	httputil.Error(w, status, message)
}

// StatusFor returns the HTTP status and client message for an error returned
// by the view package.
func StatusFor(err error) (int, string) {
	switch view.KindOf(err) {
	case view.KindValidation, view.KindBackend:
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, internalMessage
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, s.catalog.Snapshot())
}
