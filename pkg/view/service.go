package view

import (
	"context"
	"time"

	"github.com/edgeflare/pgview/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const successMessage = "Query executed successfully."

// Catalog knows the columns of the relations a Service may query.
type Catalog interface {
	// Columns returns the column names of t, and false if t is unknown.
	Columns(t Target) ([]string, bool)
}

// Envelope is the successful result of a view query.
type Envelope struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Data     []map[string]any `json:"data"`
	Metadata *Metadata        `json:"metadata"`
}

// Service compiles view requests and runs them against a backend.
type Service struct {
	db      Querier
	catalog Catalog
	logger  *zap.Logger
	timeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithCatalog enables identifier whitelisting: targets and filter fields
// must be known to c before any statement is sent.
func WithCatalog(c Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds every request's backend work. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(db Querier, opts ...Option) *Service {
	s := &Service{
		db:      db,
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query validates and compiles req, then runs it. Validation failures are
// reported before the backend is contacted.
func (s *Service) Query(ctx context.Context, req Request) (*Envelope, error) {
	start := time.Now()

	env, err := s.query(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	metrics.Queries.WithLabelValues(outcome).Inc()
	metrics.QueryDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	return env, err
}

func (s *Service) query(ctx context.Context, req Request) (*Envelope, error) {
	q, err := Compile(req.Target, req.Filters)
	if err != nil {
		return nil, err
	}
	if err := s.check(q); err != nil {
		return nil, err
	}
	metrics.FiltersPerQuery.Observe(float64(len(q.Filters)))

	return s.Run(ctx, q)
}

// check whitelists the target and filter fields against the catalog.
func (s *Service) check(q *Query) error {
	if s.catalog == nil {
		return nil
	}
	columns, ok := s.catalog.Columns(q.Target)
	if !ok {
		return ValidationError("View '%s' does not exist.", q.Target)
	}
	return q.CheckColumns(columns)
}

// Run reads the rows and the metadata of q concurrently and joins them.
// The first failure cancels the other read and is returned alone.
func (s *Service) Run(ctx context.Context, q *Query) (*Envelope, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Debug("running view query",
		zap.Stringer("target", q.Target),
		zap.Int("filters", len(q.Filters)),
	)

	var (
		rows []map[string]any
		md   *Metadata
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer observeBranch("data", time.Now())
		var err error
		rows, err = Execute(gctx, s.db, q)
		return err
	})
	g.Go(func() error {
		defer observeBranch("metadata", time.Now())
		var err error
		md, err = Describe(gctx, s.db, q.Target, q.Criteria())
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Envelope{
		Success:  true,
		Message:  successMessage,
		Data:     rows,
		Metadata: md,
	}, nil
}

func observeBranch(branch string, start time.Time) {
	metrics.BranchDuration.WithLabelValues(branch).Observe(time.Since(start).Seconds())
}
