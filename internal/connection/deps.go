package connection

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/theexperiencecompany/gaia-sub002/internal/cache"
	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
	"github.com/theexperiencecompany/gaia-sub002/internal/upstream"
)

// API is the subset of the backend used for state-changing calls.
// *upstream.Client implements it.
type API interface {
	ConnectMCP(ctx context.Context, id, bearerToken string) (upstream.ConnectResponse, error)
	Disconnect(ctx context.Context, id string) error
	CreateCustom(ctx context.Context, req upstream.CreateCustomRequest) (upstream.CreateCustomResponse, error)
	DeleteCustom(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) error
	Unpublish(ctx context.Context, id string) error
}

// Resolver returns the user's current reconciled list.
type Resolver interface {
	Integrations(ctx context.Context) ([]integration.Reconciled, error)
}

type ResolverFunc func(ctx context.Context) ([]integration.Reconciled, error)

func (f ResolverFunc) Integrations(ctx context.Context) ([]integration.Reconciled, error) {
	return f(ctx)
}

// Navigator leaves the current page for url. Nothing runs after a
// successful navigation in the same client.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error {
	return f(ctx, url)
}

// Invalidator drops cached source data. *cache.Scoped implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...cache.Key) error
}

// EventRecorder persists transitions. *store.EventLog implements it.
type EventRecorder interface {
	Record(ctx context.Context, event Event) error
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-facing message about an operation's outcome.
type Notification struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) {
	entry := l.Log.WithField("title", n.Title)
	switch n.Level {
	case LevelError:
		entry.Error(n.Message)
	case LevelWarning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}
}
