package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
)

const (
	SourceCatalog = "catalog"
	SourceUser    = "user-integrations"
	SourceStatus  = "status"
)

// SourceError reports a source whose absence breaks the per-user view.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Fetcher loads the three sources Reconcile merges.
type Fetcher interface {
	Catalog(ctx context.Context) ([]integration.Descriptor, error)
	UserIntegrations(ctx context.Context) ([]integration.UserRecord, error)
	Statuses(ctx context.Context) ([]integration.ConnectionStatus, error)
}

// Sources is one snapshot of everything Reconcile needs.
type Sources struct {
	Catalog  []integration.Descriptor
	Records  []integration.UserRecord
	Statuses []integration.ConnectionStatus
	// Degraded is set when the status source failed and every platform
	// integration reads as not connected.
	Degraded bool
}

func (s Sources) Reconcile() []integration.Reconciled {
	return Reconcile(s.Catalog, s.Records, s.Statuses)
}

// Load fetches the three sources concurrently. A status failure degrades to
// an empty status list; catalog and user failures are returned.
func Load(ctx context.Context, fetcher Fetcher, log logrus.FieldLogger) (Sources, error) {
	var (
		wg                             sync.WaitGroup
		out                            Sources
		catalogErr, userErr, statusErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		out.Catalog, catalogErr = fetcher.Catalog(ctx)
	}()
	go func() {
		defer wg.Done()
		out.Records, userErr = fetcher.UserIntegrations(ctx)
	}()
	go func() {
		defer wg.Done()
		out.Statuses, statusErr = fetcher.Statuses(ctx)
	}()
	wg.Wait()

	if statusErr != nil {
		log.WithError(statusErr).Warn("connection status unavailable, treating platform integrations as not connected")
		out.Statuses = []integration.ConnectionStatus{}
		out.Degraded = true
	}
	if catalogErr != nil {
		return out, &SourceError{Source: SourceCatalog, Err: catalogErr}
	}
	if userErr != nil {
		return out, &SourceError{Source: SourceUser, Err: userErr}
	}
	return out, nil
}
