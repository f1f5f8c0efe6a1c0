// Package connection drives connect, disconnect and custom-integration
// operations and their side effects: cache invalidation, navigation,
// notifications and the event log.
package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/theexperiencecompany/gaia-sub002/internal/cache"
	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
	"github.com/theexperiencecompany/gaia-sub002/internal/metrics"
	"github.com/theexperiencecompany/gaia-sub002/internal/upstream"
)

type ResultStatus string

const (
	ResultConnected   ResultStatus = "connected"
	ResultRedirecting ResultStatus = "redirecting"
	ResultFailed      ResultStatus = "failed"
)

type ConnectRequest struct {
	ID          string `json:"id"`
	BearerToken string `json:"bearerToken,omitempty"`
	ReturnPath  string `json:"returnPath,omitempty"`
}

type ConnectResult struct {
	ID          string       `json:"id"`
	Status      ResultStatus `json:"status"`
	RedirectURL string       `json:"redirectUrl,omitempty"`
	ToolsCount  *int         `json:"toolsCount,omitempty"`
	Message     string       `json:"message,omitempty"`
}

type CreateRequest struct {
	Name         string               `json:"name"`
	Description  string               `json:"description,omitempty"`
	ServerURL    string               `json:"serverUrl"`
	RequiresAuth *bool                `json:"requiresAuth,omitempty"`
	AuthType     integration.AuthType `json:"authType,omitempty"`
	IsPublic     *bool                `json:"isPublic,omitempty"`
}

type CreateResult struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Connection  integration.TestStatus `json:"connection"`
	State       State                  `json:"state"`
	RedirectURL string                 `json:"redirectUrl,omitempty"`
	ToolsCount  *int                   `json:"toolsCount,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

type BundleResult struct {
	ID        string         `json:"id"`
	Connected []string       `json:"connected"`
	Redirect  *ConnectResult `json:"redirect,omitempty"`
}

type Options struct {
	UserID      string
	LoginBase   string
	API         API
	Resolver    Resolver
	Navigator   Navigator
	Invalidator Invalidator
	Notifier    Notifier
	Recorder    EventRecorder
	Metrics     metrics.Metrics
	Log         logrus.FieldLogger
}

// Orchestrator runs connection operations for one user. Concurrent calls on
// the same id are not serialised; the last transition wins.
type Orchestrator struct {
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time

	mu     sync.Mutex
	states map[string]State
}

func New(opts Options) *Orchestrator {
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = &metrics.NoopMetrics{}
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Log: opts.Log}
	}
	if opts.Navigator == nil {
		opts.Navigator = NavigatorFunc(func(context.Context, string) error { return nil })
	}
	return &Orchestrator{
		opts:   opts,
		log:    opts.Log.WithField("user_id", opts.UserID),
		now:    time.Now,
		states: make(map[string]State),
	}
}

// State returns the last recorded state for id.
func (o *Orchestrator) State(id string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if state, ok := o.states[id]; ok {
		return state
	}
	return StateIdle
}

func (o *Orchestrator) Connect(ctx context.Context, req ConnectRequest) (ConnectResult, error) {
	result := ConnectResult{ID: req.ID}
	item, err := o.resolve(ctx, req.ID)
	if err != nil {
		o.fail(ctx, OpConnect, req.ID, "Connection failed", err)
		return result, err
	}
	return o.connect(ctx, item, req)
}

func (o *Orchestrator) connect(ctx context.Context, item integration.Reconciled, req ConnectRequest) (ConnectResult, error) {
	result := ConnectResult{ID: item.ID}
	d := item.Descriptor

	switch {
	case d.IsBundle():
		err := &ConfigurationError{ID: d.ID, Reason: "bundles connect through their included integrations"}
		o.fail(ctx, OpConnect, d.ID, "Connection failed", err)
		return result, err

	case d.AlwaysConnected():
		o.transition(ctx, OpConnect, d.ID, StateConnected, "no authentication required")
		o.opts.Metrics.ObserveConnectOutcome(string(OpConnect), string(ResultConnected))
		result.Status = ResultConnected
		return result, nil

	case d.AuthType == integration.AuthBearer, req.BearerToken != "":
		if strings.TrimSpace(req.BearerToken) == "" {
			err := &ConfigurationError{ID: d.ID, Reason: "a bearer token is required"}
			o.fail(ctx, OpConnect, d.ID, "Connection failed", err)
			return result, err
		}
		return o.connectWithToken(ctx, d, req.BearerToken)

	default:
		return o.redirect(ctx, d, req.ReturnPath)
	}
}

func (o *Orchestrator) connectWithToken(ctx context.Context, d integration.Descriptor, token string) (ConnectResult, error) {
	result := ConnectResult{ID: d.ID}
	o.transition(ctx, OpConnect, d.ID, StateConnecting, "")

	resp, err := o.opts.API.ConnectMCP(ctx, d.ID, token)
	if err != nil {
		o.fail(ctx, OpConnect, d.ID, fmt.Sprintf("Failed to connect %s", displayName(d)), err)
		return result, err
	}
	result.ToolsCount = resp.ToolsCount
	result.Message = resp.Message
	if !resp.Connected() {
		result.Status = ResultFailed
		err := &ConnectFailedError{ID: d.ID, Status: resp.Status, Message: resp.Message}
		o.fail(ctx, OpConnect, d.ID, fmt.Sprintf("Failed to connect %s", displayName(d)), err)
		return result, err
	}

	result.Status = ResultConnected
	o.transition(ctx, OpConnect, d.ID, StateConnected, toolsDetail(resp.ToolsCount))
	o.succeed(ctx, OpConnect, fmt.Sprintf("Connected to %s", displayName(d)))
	return result, nil
}

func (o *Orchestrator) redirect(ctx context.Context, d integration.Descriptor, returnPath string) (ConnectResult, error) {
	result := ConnectResult{ID: d.ID}
	if o.opts.LoginBase == "" {
		err := &ConfigurationError{ID: d.ID, Reason: "no login address configured"}
		o.fail(ctx, OpConnect, d.ID, "Connection failed", err)
		return result, err
	}

	target := LoginURL(o.opts.LoginBase, d.ID, returnPath)
	result.Status = ResultRedirecting
	result.RedirectURL = target
	o.transition(ctx, OpConnect, d.ID, StateRequiresOAuthRedirect, target)
	o.opts.Metrics.ObserveConnectOutcome(string(OpConnect), string(ResultRedirecting))
	if err := o.opts.Navigator.Navigate(ctx, target); err != nil {
		return result, fmt.Errorf("navigate to %s: %w", target, err)
	}
	return result, nil
}

// ConnectBundle connects every included integration that is not connected
// yet, in declared order. It stops at the first redirect or failure.
func (o *Orchestrator) ConnectBundle(ctx context.Context, bundleID, returnPath string) (BundleResult, error) {
	result := BundleResult{ID: bundleID, Connected: []string{}}
	list, err := o.list(ctx)
	if err != nil {
		o.fail(ctx, OpConnectBundle, bundleID, "Connection failed", err)
		return result, err
	}
	bundle, ok := integration.Find(list, bundleID)
	if !ok || !bundle.IsBundle() {
		err := &ConfigurationError{ID: bundleID, Reason: "not a bundle"}
		o.fail(ctx, OpConnectBundle, bundleID, "Connection failed", err)
		return result, err
	}

	for _, child := range integration.BundleChildren(bundle.Descriptor, list) {
		if child.Connected() {
			continue
		}
		res, err := o.connect(ctx, child, ConnectRequest{ID: child.ID, ReturnPath: returnPath})
		if err != nil {
			return result, err
		}
		if res.Status == ResultRedirecting {
			result.Redirect = &res
			return result, nil
		}
		result.Connected = append(result.Connected, child.ID)
	}
	return result, nil
}

func (o *Orchestrator) Disconnect(ctx context.Context, id string) error {
	item, err := o.resolve(ctx, id)
	if err != nil {
		o.fail(ctx, OpDisconnect, id, "Disconnect failed", err)
		return err
	}
	if err := o.opts.API.Disconnect(ctx, id); err != nil {
		o.fail(ctx, OpDisconnect, id, fmt.Sprintf("Failed to disconnect %s", displayName(item.Descriptor)), err)
		return err
	}
	o.transition(ctx, OpDisconnect, id, StateDisconnected, "")
	o.succeed(ctx, OpDisconnect, fmt.Sprintf("Disconnected %s", displayName(item.Descriptor)))
	return nil
}

// CreateCustom registers a user-defined integration. The backend probes the
// connection in the same call and its verdict drives the follow-up.
func (o *Orchestrator) CreateCustom(ctx context.Context, req CreateRequest) (CreateResult, error) {
	result := CreateResult{Name: req.Name}
	if err := validateCreate(req); err != nil {
		o.fail(ctx, OpCreateCustom, "", "Failed to create integration", err)
		return result, err
	}

	resp, err := o.opts.API.CreateCustom(ctx, upstream.CreateCustomRequest{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		ServerURL:    strings.TrimSpace(req.ServerURL),
		RequiresAuth: req.RequiresAuth,
		AuthType:     req.AuthType,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		o.fail(ctx, OpCreateCustom, "", fmt.Sprintf("Failed to create %s", req.Name), err)
		return result, err
	}

	result.ID = resp.IntegrationID
	if resp.Name != "" {
		result.Name = resp.Name
	}
	o.invalidate(ctx)

	probe := integration.ConnectionTestResult{Status: integration.TestCreated}
	if resp.Connection != nil {
		probe = *resp.Connection
	}
	result.Connection = probe.Status
	result.ToolsCount = probe.ToolsCount
	result.Error = probe.Error

	switch probe.Status {
	case integration.TestConnected:
		result.State = StateConnected
		o.transition(ctx, OpCreateCustom, result.ID, StateConnected, toolsDetail(probe.ToolsCount))
		o.opts.Metrics.ObserveConnectOutcome(string(OpCreateCustom), string(ResultConnected))
		o.notify(ctx, LevelInfo, "Success", fmt.Sprintf("Created and connected %s", result.Name))

	case integration.TestRequiresOAuth:
		if probe.OAuthURL == "" {
			result.State = StateCreated
			o.transition(ctx, OpCreateCustom, result.ID, StateCreated, "oauth required but no address returned")
			o.notify(ctx, LevelWarning, "Integration created", fmt.Sprintf("%s needs authorization before it can connect", result.Name))
			break
		}
		result.State = StateRequiresOAuthRedirect
		result.RedirectURL = probe.OAuthURL
		o.transition(ctx, OpCreateCustom, result.ID, StateRequiresOAuthRedirect, probe.OAuthURL)
		o.opts.Metrics.ObserveConnectOutcome(string(OpCreateCustom), string(ResultRedirecting))
		if err := o.opts.Navigator.Navigate(ctx, probe.OAuthURL); err != nil {
			return result, fmt.Errorf("navigate to %s: %w", probe.OAuthURL, err)
		}

	case integration.TestFailed:
		result.State = StateFailed
		o.transition(ctx, OpCreateCustom, result.ID, StateFailed, probe.Error)
		o.opts.Metrics.ObserveConnectOutcome(string(OpCreateCustom), string(ResultFailed))
		o.notify(ctx, LevelWarning, "Integration created", fmt.Sprintf("%s was created but could not connect: %s", result.Name, probe.Error))

	default:
		result.Connection = integration.TestCreated
		result.State = StateCreated
		o.transition(ctx, OpCreateCustom, result.ID, StateCreated, "")
		o.opts.Metrics.ObserveConnectOutcome(string(OpCreateCustom), "success")
		o.notify(ctx, LevelInfo, "Success", fmt.Sprintf("Created %s", result.Name))
	}
	return result, nil
}

func (o *Orchestrator) DeleteCustom(ctx context.Context, id string) error {
	return o.mutate(ctx, OpDeleteCustom, id, StateDeleted, o.opts.API.DeleteCustom, "Deleted %s", "Failed to delete %s")
}

func (o *Orchestrator) Publish(ctx context.Context, id string) error {
	return o.mutate(ctx, OpPublish, id, StatePublished, o.opts.API.Publish, "Published %s", "Failed to publish %s")
}

func (o *Orchestrator) Unpublish(ctx context.Context, id string) error {
	return o.mutate(ctx, OpUnpublish, id, StateUnpublished, o.opts.API.Unpublish, "Unpublished %s", "Failed to unpublish %s")
}

func (o *Orchestrator) mutate(ctx context.Context, op Operation, id string, state State, call func(context.Context, string) error, okFormat, failFormat string) error {
	if strings.TrimSpace(id) == "" {
		err := &ConfigurationError{Reason: "integration id is required"}
		o.fail(ctx, op, id, fmt.Sprintf(failFormat, "integration"), err)
		return err
	}
	if err := call(ctx, id); err != nil {
		o.fail(ctx, op, id, fmt.Sprintf(failFormat, id), err)
		return err
	}
	o.transition(ctx, op, id, state, "")
	o.succeed(ctx, op, fmt.Sprintf(okFormat, id))
	return nil
}

func (o *Orchestrator) list(ctx context.Context) ([]integration.Reconciled, error) {
	if o.opts.Resolver == nil {
		return nil, &ConfigurationError{Reason: "no integration resolver configured"}
	}
	return o.opts.Resolver.Integrations(ctx)
}

func (o *Orchestrator) resolve(ctx context.Context, id string) (integration.Reconciled, error) {
	if strings.TrimSpace(id) == "" {
		return integration.Reconciled{}, &ConfigurationError{Reason: "integration id is required"}
	}
	list, err := o.list(ctx)
	if err != nil {
		return integration.Reconciled{}, err
	}
	item, ok := integration.Find(list, id)
	if !ok {
		return integration.Reconciled{}, &ConfigurationError{ID: id, Reason: "unknown integration"}
	}
	return item, nil
}

func (o *Orchestrator) transition(ctx context.Context, op Operation, id string, state State, detail string) {
	if id != "" {
		o.mu.Lock()
		o.states[id] = state
		o.mu.Unlock()
	}

	o.log.WithFields(logrus.Fields{
		"integration_id": id,
		"operation":      op,
		"state":          state,
	}).Debug("connection transition")

	if o.opts.Recorder == nil {
		return
	}
	event := Event{
		ID:            uuid.NewString(),
		UserID:        o.opts.UserID,
		IntegrationID: id,
		Operation:     op,
		State:         state,
		Detail:        detail,
		CreatedAt:     o.now().UTC(),
	}
	if err := o.opts.Recorder.Record(ctx, event); err != nil {
		o.log.WithError(err).WithField("integration_id", id).Warn("record connection event")
	}
}

// succeed runs after the backend confirmed the change.
func (o *Orchestrator) succeed(ctx context.Context, op Operation, message string) {
	o.opts.Metrics.ObserveConnectOutcome(string(op), "success")
	o.invalidate(ctx)
	o.notify(ctx, LevelInfo, "Success", message)
}

func (o *Orchestrator) fail(ctx context.Context, op Operation, id, title string, err error) {
	o.transition(ctx, op, id, StateFailed, err.Error())
	outcome := "error"
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		outcome = "configuration_error"
	}
	o.opts.Metrics.ObserveConnectOutcome(string(op), outcome)
	o.notify(ctx, LevelError, title, userMessage(err))
}

// invalidate drops each mutable key on its own; a failure on one key does
// not keep the others fresh.
func (o *Orchestrator) invalidate(ctx context.Context) {
	if o.opts.Invalidator == nil {
		return
	}
	for _, key := range cache.MutationKeys {
		if err := o.opts.Invalidator.Invalidate(ctx, key); err != nil {
			o.log.WithError(err).WithField("key", key).Warn("invalidate cache key")
		}
	}
}

func (o *Orchestrator) notify(ctx context.Context, level Level, title, message string) {
	o.opts.Notifier.Notify(ctx, Notification{Level: level, Title: title, Message: message})
}

func validateCreate(req CreateRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return &ConfigurationError{Reason: "name is required"}
	}
	if strings.TrimSpace(req.ServerURL) == "" {
		return &ConfigurationError{Reason: "server url is required"}
	}
	switch req.AuthType {
	case "", integration.AuthNone, integration.AuthBearer, integration.AuthOAuth:
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unsupported auth type %q", req.AuthType)}
	}
	return nil
}

func userMessage(err error) string {
	var netErr *upstream.NetworkError
	if errors.As(err, &netErr) && netErr.Message != "" {
		return netErr.Message
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.Reason
	}
	return err.Error()
}

func displayName(d integration.Descriptor) string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

func toolsDetail(count *int) string {
	if count == nil {
		return ""
	}
	return fmt.Sprintf("%d tools", *count)
}
