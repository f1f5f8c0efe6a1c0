package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/theexperiencecompany/gaia-sub002/internal/auth"
	"github.com/theexperiencecompany/gaia-sub002/internal/cache"
	"github.com/theexperiencecompany/gaia-sub002/internal/config"
	"github.com/theexperiencecompany/gaia-sub002/internal/connection"
	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
	"github.com/theexperiencecompany/gaia-sub002/internal/metrics"
	"github.com/theexperiencecompany/gaia-sub002/internal/rbac"
	"github.com/theexperiencecompany/gaia-sub002/internal/reconcile"
	"github.com/theexperiencecompany/gaia-sub002/internal/search"
	"github.com/theexperiencecompany/gaia-sub002/internal/upstream"
)

// catalogScope is the cache scope of data shared by every user.
const catalogScope = "platform"

// Backend is the product backend the gateway fronts. *upstream.Client
// implements it.
type Backend interface {
	reconcile.Fetcher
	connection.API
	Tools(ctx context.Context) ([]integration.Tool, error)
	Ping(ctx context.Context) error
}

// EventStore is the optional connection event log.
type EventStore interface {
	connection.EventRecorder
	List(ctx context.Context, userID, integrationID string, limit int) ([]connection.Event, error)
	Ping(ctx context.Context) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Backend Backend
	Cache   *cache.Store
	Search  *search.Service
	Events  EventStore
	Metrics metrics.Metrics
	Log     logrus.FieldLogger
	// Checks are probed by the readiness endpoint in addition to the backend.
	Checks map[string]Pinger
}

type Service struct {
	cfg           config.Config
	backend       Backend
	cache         *cache.Store
	search        *search.Service
	events        EventStore
	metrics       metrics.Metrics
	log           logrus.FieldLogger
	checks        map[string]Pinger
	pipeline      search.Pipeline
	orchestrators *connection.Manager
}

func New(cfg config.Config, deps Dependencies) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopMetrics()
	}
	if deps.Log == nil {
		deps.Log = logrus.New()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewStore(cache.NewMemoryBackend(), cache.DefaultPolicies(), deps.Metrics, deps.Log)
	}
	pipeline := search.Pipeline{StrictCategory: cfg.StrictCategory}
	if deps.Search == nil {
		deps.Search = search.NewService(nil, pipeline, deps.Log)
	}

	s := &Service{
		cfg:      cfg,
		backend:  deps.Backend,
		cache:    deps.Cache,
		search:   deps.Search,
		events:   deps.Events,
		metrics:  deps.Metrics,
		log:      deps.Log,
		checks:   deps.Checks,
		pipeline: pipeline,
	}
	s.orchestrators = connection.NewManager(s.newOrchestrator, cfg.IdleTimeout, deps.Log)
	return s
}

func (s *Service) newOrchestrator(userID string) *connection.Orchestrator {
	opts := connection.Options{
		UserID:    userID,
		LoginBase: s.cfg.LoginBaseURL,
		API:       s.backend,
		Resolver: connection.ResolverFunc(func(ctx context.Context) ([]integration.Reconciled, error) {
			list, _, err := s.load(ctx, userID)
			return list, err
		}),
		Invalidator: s.cache.Scoped(userID),
		Notifier:    requestNotifier{log: s.log},
		Metrics:     s.metrics,
		Log:         s.log,
	}
	if s.events != nil {
		opts.Recorder = s.events
	}
	return connection.New(opts)
}

// Close releases background workers.
func (s *Service) Close() {
	s.orchestrators.Close()
}

func (s *Service) SessionFromToken(_ context.Context, token string) (auth.Principal, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return auth.Principal{}, err
	}
	return claims.Principal(token), nil
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

// userContext forwards the caller's credential to the backend.
func userContext(ctx context.Context, p auth.Principal) context.Context {
	return upstream.WithAccessToken(auth.WithPrincipal(ctx, p), p.Token)
}

// load fetches the three sources through the cache and reconciles them.
func (s *Service) load(ctx context.Context, userID string) ([]integration.Reconciled, bool, error) {
	sources, err := reconcile.Load(ctx, cachedFetcher{service: s, scope: userID}, s.log.WithField("user_id", userID))
	if sources.Degraded {
		s.metrics.IncrementDegradedStatusReads()
	}
	if err != nil {
		return nil, sources.Degraded, err
	}
	return sources.Reconcile(), sources.Degraded, nil
}

type cachedFetcher struct {
	service *Service
	scope   string
}

func (f cachedFetcher) Catalog(ctx context.Context) ([]integration.Descriptor, error) {
	return cache.Fetch(ctx, f.service.cache, catalogScope, cache.KeyConfig, func(ctx context.Context) ([]integration.Descriptor, error) {
		catalog, err := f.service.backend.Catalog(ctx)
		if err == nil {
			f.service.search.IndexCatalog(catalog)
		}
		return catalog, err
	})
}

func (f cachedFetcher) UserIntegrations(ctx context.Context) ([]integration.UserRecord, error) {
	return cache.Fetch(ctx, f.service.cache, f.scope, cache.KeyUserIntegrations, f.service.backend.UserIntegrations)
}

func (f cachedFetcher) Statuses(ctx context.Context) ([]integration.ConnectionStatus, error) {
	return cache.Fetch(ctx, f.service.cache, f.scope, cache.KeyStatus, f.service.backend.Statuses)
}

type ListQuery struct {
	Query    string
	Category string
	Order    string
}

type ListResult struct {
	Integrations []integration.Reconciled `json:"integrations"`
	Categories   []search.CategoryOption  `json:"categories"`
	Total        int                      `json:"total"`
	Degraded     bool                     `json:"degraded"`
}

// ListIntegrations returns the reconciled view filtered by the query and
// category. Total counts every integration before filtering.
func (s *Service) ListIntegrations(ctx context.Context, p auth.Principal, q ListQuery) (ListResult, error) {
	ctx = userContext(ctx, p)
	list, degraded, err := s.load(ctx, p.UserID)
	if err != nil {
		return ListResult{}, err
	}
	list = reconcile.Sort(list, reconcile.ParseOrder(q.Order))

	category := strings.TrimSpace(q.Category)
	if category == "" {
		category = integration.CategoryAll
	}
	visible := s.search.Visible(list, search.State{Query: q.Query, Category: category}, p.UserID)
	return ListResult{
		Integrations: visible,
		Categories:   search.SelectCategoryOptions(list, p.UserID),
		Total:        len(list),
		Degraded:     degraded,
	}, nil
}

func (s *Service) Categories(ctx context.Context, p auth.Principal) ([]search.CategoryOption, error) {
	ctx = userContext(ctx, p)
	list, _, err := s.load(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return search.SelectCategoryOptions(list, p.UserID), nil
}

func (s *Service) GetIntegration(ctx context.Context, p auth.Principal, id string) (integration.Reconciled, error) {
	ctx = userContext(ctx, p)
	list, _, err := s.load(ctx, p.UserID)
	if err != nil {
		return integration.Reconciled{}, err
	}
	item, ok := integration.Find(list, id)
	if !ok {
		return integration.Reconciled{}, domainError(http.StatusNotFound, "NOT_FOUND", "Integration not found", nil)
	}
	return item, nil
}

type BundleView struct {
	ID           string                   `json:"id"`
	AllConnected bool                     `json:"allConnected"`
	Children     []integration.Reconciled `json:"children"`
}

func (s *Service) Bundle(ctx context.Context, p auth.Principal, id string) (BundleView, error) {
	ctx = userContext(ctx, p)
	list, _, err := s.load(ctx, p.UserID)
	if err != nil {
		return BundleView{}, err
	}
	bundle, ok := integration.Find(list, id)
	if !ok {
		return BundleView{}, domainError(http.StatusNotFound, "NOT_FOUND", "Integration not found", nil)
	}
	if !bundle.IsBundle() {
		return BundleView{}, domainError(http.StatusUnprocessableEntity, "NOT_A_BUNDLE", "Integration is not a bundle", nil)
	}
	return BundleView{
		ID:           id,
		AllConnected: integration.AllConnected(bundle.Descriptor, list),
		Children:     integration.BundleChildren(bundle.Descriptor, list),
	}, nil
}

func (s *Service) Connect(ctx context.Context, p auth.Principal, req connection.ConnectRequest) (connection.ConnectResult, error) {
	return s.orchestrators.For(p.UserID).Connect(userContext(ctx, p), req)
}

func (s *Service) ConnectBundle(ctx context.Context, p auth.Principal, id, returnPath string) (connection.BundleResult, error) {
	return s.orchestrators.For(p.UserID).ConnectBundle(userContext(ctx, p), id, returnPath)
}

func (s *Service) Disconnect(ctx context.Context, p auth.Principal, id string) error {
	return s.orchestrators.For(p.UserID).Disconnect(userContext(ctx, p), id)
}

func (s *Service) CreateCustom(ctx context.Context, p auth.Principal, req connection.CreateRequest) (connection.CreateResult, error) {
	return s.orchestrators.For(p.UserID).CreateCustom(userContext(ctx, p), req)
}

func (s *Service) DeleteCustom(ctx context.Context, p auth.Principal, id string) error {
	if err := s.authorizeCustom(ctx, p, id); err != nil {
		return err
	}
	return s.orchestrators.For(p.UserID).DeleteCustom(userContext(ctx, p), id)
}

func (s *Service) Publish(ctx context.Context, p auth.Principal, id string) error {
	if err := s.authorizeCustom(ctx, p, id); err != nil {
		return err
	}
	return s.orchestrators.For(p.UserID).Publish(userContext(ctx, p), id)
}

func (s *Service) Unpublish(ctx context.Context, p auth.Principal, id string) error {
	if err := s.authorizeCustom(ctx, p, id); err != nil {
		return err
	}
	return s.orchestrators.For(p.UserID).Unpublish(userContext(ctx, p), id)
}

// authorizeCustom allows the creator of a custom integration, or an admin,
// to change it.
func (s *Service) authorizeCustom(ctx context.Context, p auth.Principal, id string) error {
	item, err := s.GetIntegration(ctx, p, id)
	if err != nil {
		return err
	}
	if item.Source != integration.SourceCustom {
		return domainError(http.StatusUnprocessableEntity, "NOT_CUSTOM", "Only custom integrations can be changed", nil)
	}
	if !rbac.CanManageCustom(p.Role, p.UserID, item.CreatedBy) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return nil
}

// ConnectionState is the last orchestrator state recorded for id.
func (s *Service) ConnectionState(p auth.Principal, id string) connection.State {
	return s.orchestrators.For(p.UserID).State(id)
}

func (s *Service) Events(ctx context.Context, p auth.Principal, id string, limit int) ([]connection.Event, error) {
	if s.events == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EVENTS_UNAVAILABLE", "Connection event log is not configured", nil)
	}
	return s.events.List(ctx, p.UserID, id, limit)
}

func (s *Service) Tools(ctx context.Context, p auth.Principal) ([]integration.Tool, error) {
	ctx = userContext(ctx, p)
	return cache.Fetch(ctx, s.cache, p.UserID, cache.KeyTools, s.backend.Tools)
}

// Ready probes the backend and every configured dependency. The map holds
// nil for healthy checks.
func (s *Service) Ready(ctx context.Context) map[string]error {
	results := map[string]error{"upstream": s.backend.Ping(ctx)}
	if s.events != nil {
		results["database"] = s.events.Ping(ctx)
	}
	for name, check := range s.checks {
		results[name] = check.Ping(ctx)
	}
	return results
}
