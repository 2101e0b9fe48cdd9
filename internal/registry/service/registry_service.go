package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/agentregistry-dev/mcpindex/internal/registry/auth"
	"github.com/agentregistry-dev/mcpindex/internal/registry/cache"
	"github.com/agentregistry-dev/mcpindex/internal/registry/database"
	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/logging"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
	"github.com/agentregistry-dev/mcpindex/internal/registry/scoring"
	"github.com/agentregistry-dev/mcpindex/internal/registry/search"
)

// Options carries the optional collaborators of the registry service.
type Options struct {
	// Cache memoizes reads. Nil disables caching.
	Cache         cache.Cache
	TTLs          cache.TTLs
	CacheRecorder cache.Recorder
	Metrics       Metrics
	Logger        *zap.Logger
	// Now is the clock used for scoring and timestamps.
	Now func() time.Time
	// StoreFallback serves hit-only searches from the record store when the
	// search backend is unavailable.
	StoreFallback bool
	// ReindexWorkers bounds reindex parallelism.
	ReindexWorkers int
}

// registryServiceImpl implements the RegistryService interface on a record
// store and a search backend
type registryServiceImpl struct {
	db            database.Database
	backend       search.Backend
	cache         *cache.Advisory
	ttls          cache.TTLs
	metrics       Metrics
	logger        *zap.Logger
	now           func() time.Time
	storeFallback bool
	workers       int

	// projections serializes index writes per record id
	projections stripedLocks
	// records guards cache fills against concurrent invalidation
	records stripedLocks
}

// NewRegistryService creates a registry service over db and backend.
func NewRegistryService(db database.Database, backend search.Backend, opts Options) RegistryService {
	s := &registryServiceImpl{
		db:            db,
		backend:       backend,
		ttls:          opts.TTLs,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		now:           opts.Now,
		storeFallback: opts.StoreFallback,
		workers:       opts.ReindexWorkers,
	}
	if s.logger == nil {
		s.logger = logging.ServiceEventLog
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ttls == (cache.TTLs{}) {
		s.ttls = cache.DefaultTTLs()
	}
	if s.workers <= 0 {
		s.workers = 4
	}
	c := opts.Cache
	if c == nil {
		c = cache.Nop{}
	}
	s.cache = cache.NewAdvisory(c, s.logger, opts.CacheRecorder)
	return s
}

func requireSession(ctx context.Context) (*auth.Session, error) {
	sess, ok := auth.AuthSessionFrom(ctx)
	if !ok || sess.UserID == "" {
		return nil, errs.Unauthenticated("authentication required")
	}
	return sess, nil
}

func requireAdmin(ctx context.Context) (*auth.Session, error) {
	sess, err := requireSession(ctx)
	if err != nil {
		return nil, err
	}
	if !sess.Admin {
		return nil, errs.Forbidden("admin privileges required")
	}
	return sess, nil
}

// canManage reports whether sess owns rec through a claim, its publisher or admin rights.
func canManage(sess *auth.Session, rec *models.ServerRecord) bool {
	switch {
	case sess.Admin:
		return true
	case rec.ClaimedBy != "" && rec.ClaimedBy == sess.UserID:
		return true
	case rec.PublisherID != "" && rec.PublisherID == sess.PublisherID:
		return true
	}
	return false
}

// rescore recomputes the derived scores of rec in place. It runs inside every
// record write so the stored scores always match the committed record.
func (s *registryServiceImpl) rescore(rec *models.ServerRecord, now time.Time) {
	rec.Metadata.TrustScore = scoring.TrustScore(rec, now)
	rec.Score = scoring.Compute(rec, now)
}

// stageErr attaches stage to err and classifies store sentinels.
func stageErr(stage string, err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		if e.Stage != "" {
			return err
		}
		out := *e
		out.Stage = stage
		return &out
	}
	cat := errs.CategoryOf(err)
	return &errs.Error{Category: cat, Stage: stage, Message: storeMessage(err, cat), Err: err}
}

func storeMessage(err error, cat errs.Category) string {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return "server not found"
	case errors.Is(err, database.ErrAlreadyExists):
		return "a server with this name or source and external_id already exists"
	case errors.Is(err, database.ErrRevisionMismatch):
		return "server was modified concurrently"
	case errors.Is(err, database.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return "record store unavailable"
	}
	return strings.ReplaceAll(string(cat), "_", " ")
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errs.CategoryOf(err))
}

// commit runs the stages that follow a successful record write.
func (s *registryServiceImpl) commit(ctx context.Context, op string, rec *models.ServerRecord) error {
	log := logging.L(ctx, s.logger).With(zap.String("operation", op), zap.String("server_id", rec.ID))
	log.Debug("mutation stage", zap.String("stage", StagePersisted), zap.Int64("revision", rec.Revision))

	var projectErr error
	if err := s.project(ctx, rec.ID, rec); err != nil {
		s.metrics.ProjectionFailed(ctx, op)
		log.Error("record persisted but not indexed", zap.Error(err))
		projectErr = errs.Unavailable(StageProjected, err,
			"server %s was saved but could not be indexed; retry the request or reindex", rec.ID)
	} else {
		log.Debug("mutation stage", zap.String("stage", StageProjected))
	}

	// the record write stands, so cached copies are dropped even when
	// projection failed
	s.invalidate(ctx, rec.ID)
	if projectErr != nil {
		return projectErr
	}
	log.Debug("mutation stage", zap.String("stage", StageCacheInvalidated))
	return nil
}

// project brings the document of id in line with the store. Writers of one id
// are serialized and each projects the record as the store holds it at that
// moment, so a slow writer never leaves an older snapshot in the index.
// committed is projected when the store cannot be read; nil means the record
// was deleted.
func (s *registryServiceImpl) project(ctx context.Context, id string, committed *models.ServerRecord) error {
	defer s.projections.lock(id)()

	rec, err := s.db.GetServerByID(ctx, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return s.backend.Delete(ctx, id)
	case err != nil && committed == nil:
		return s.backend.Delete(ctx, id)
	case err != nil:
		rec = committed
	}
	return s.backend.Upsert(ctx, search.Project(rec))
}

// discoveryNamespaces hold aggregates that any committed write can change.
var discoveryNamespaces = []string{cache.NamespaceCategories, cache.NamespaceStats, cache.NamespacePopular}

// invalidate drops the cached record id and every discovery aggregate.
func (s *registryServiceImpl) invalidate(ctx context.Context, id string) {
	s.invalidateRecord(ctx, id)
	for _, ns := range discoveryNamespaces {
		s.cache.InvalidatePrefix(ctx, ns+":")
	}
}

// invalidateRecord drops the cached record id. A read that started before the
// call will not store its copy afterwards.
func (s *registryServiceImpl) invalidateRecord(ctx context.Context, id string) {
	s.records.bump(id)
	s.cache.Delete(ctx, cache.RecordKey(id))
}

// update runs an authorized read-modify-write and the commit stages.
func (s *registryServiceImpl) update(ctx context.Context, op, id string, fn database.UpdateFunc) (*models.ServerResponse, error) {
	rec, err := s.db.UpdateServer(ctx, id, func(rec *models.ServerRecord) error {
		if err := fn(rec); err != nil {
			return err
		}
		s.rescore(rec, s.now())
		return nil
	})
	if err != nil {
		err = stageErr(StagePersisted, err)
		s.metrics.MutationCompleted(ctx, op, outcome(err))
		return nil, err
	}
	if err := s.commit(ctx, op, rec); err != nil {
		s.metrics.MutationCompleted(ctx, op, outcome(err))
		return nil, err
	}
	s.metrics.MutationCompleted(ctx, op, "ok")
	logging.Log(ctx, s.logger, zapcore.InfoLevel, "server updated",
		zap.String("operation", op), zap.String("server_id", rec.ID), zap.Int64("revision", rec.Revision))
	return models.NewServerResponse(rec), nil
}

// GetServer returns a record by id, served from cache when possible
func (s *registryServiceImpl) GetServer(ctx context.Context, id string) (*models.ServerResponse, error) {
	key := cache.RecordKey(id)
	var cached models.ServerRecord
	if s.cache.GetJSON(ctx, key, &cached) {
		return models.NewServerResponse(&cached), nil
	}

	gen := s.records.generation(id)
	rec, err := s.db.GetServerByID(ctx, id)
	if err != nil {
		return nil, stageErr("", err)
	}
	s.records.ifCurrent(id, gen, func() {
		s.cache.SetJSON(ctx, key, rec, s.ttls.Record)
	})
	return models.NewServerResponse(rec), nil
}

// GetServerByName returns a record by its unique name
func (s *registryServiceImpl) GetServerByName(ctx context.Context, name string) (*models.ServerResponse, error) {
	rec, err := s.db.GetServerByName(ctx, name)
	if err != nil {
		return nil, stageErr("", err)
	}
	return models.NewServerResponse(rec), nil
}

// GetScore returns the committed score of a record
func (s *registryServiceImpl) GetScore(ctx context.Context, id string) (*models.Score, error) {
	rec, err := s.GetServer(ctx, id)
	if err != nil {
		return nil, err
	}
	score := rec.Score
	return &score, nil
}

// CreatePublisher registers a publisher
func (s *registryServiceImpl) CreatePublisher(ctx context.Context, in *models.PublisherInput) (*models.Publisher, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if in == nil || strings.TrimSpace(in.Name) == "" {
		return nil, errs.Validation("publisher name is required")
	}
	p := &models.Publisher{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(in.Name),
		Verified:  in.Verified,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.CreatePublisher(ctx, p); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return nil, errs.Conflict("publisher %q already exists", p.Name)
		}
		return nil, stageErr(StagePersisted, err)
	}
	return p, nil
}

// GetPublisher returns a publisher by id
func (s *registryServiceImpl) GetPublisher(ctx context.Context, id string) (*models.Publisher, error) {
	p, err := s.db.GetPublisher(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errs.NotFound("publisher %s not found", id)
		}
		return nil, stageErr("", err)
	}
	return p, nil
}

// Health pings both stores
func (s *registryServiceImpl) Health(ctx context.Context) []ComponentHealth {
	check := func(name string, ping func(context.Context) error) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Name: name, Status: "unavailable", Error: err.Error()}
		}
		return ComponentHealth{Name: name, Status: "ok"}
	}
	return []ComponentHealth{
		check("database", s.db.Ping),
		check("search", s.backend.Ping),
	}
}
