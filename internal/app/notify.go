package app

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/theexperiencecompany/gaia-sub002/internal/connection"
)

type notificationsKey struct{}

type notificationCollector struct {
	mu    sync.Mutex
	items []connection.Notification
}

func (c *notificationCollector) add(n connection.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
}

func (c *notificationCollector) list() []connection.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]connection.Notification{}, c.items...)
}

func withNotifications(ctx context.Context) (context.Context, *notificationCollector) {
	collector := &notificationCollector{}
	return context.WithValue(ctx, notificationsKey{}, collector), collector
}

// requestNotifier logs every notification and hands it to the request that
// triggered it, so the response can carry it to the browser.
type requestNotifier struct {
	log logrus.FieldLogger
}

func (n requestNotifier) Notify(ctx context.Context, note connection.Notification) {
	connection.LogNotifier{Log: n.log}.Notify(ctx, note)
	if collector, ok := ctx.Value(notificationsKey{}).(*notificationCollector); ok {
		collector.add(note)
	}
}
