package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theexperiencecompany/gaia-sub002/internal/auth"
	"github.com/theexperiencecompany/gaia-sub002/internal/config"
	"github.com/theexperiencecompany/gaia-sub002/internal/connection"
	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
	"github.com/theexperiencecompany/gaia-sub002/internal/logging"
	"github.com/theexperiencecompany/gaia-sub002/internal/upstream"
)

const testSecret = "test-secret"

type fakeBackend struct {
	CatalogFn          func(context.Context) ([]integration.Descriptor, error)
	UserIntegrationsFn func(context.Context) ([]integration.UserRecord, error)
	StatusesFn         func(context.Context) ([]integration.ConnectionStatus, error)
	ConnectMCPFn       func(context.Context, string, string) (upstream.ConnectResponse, error)
	DisconnectFn       func(context.Context, string) error
	CreateCustomFn     func(context.Context, upstream.CreateCustomRequest) (upstream.CreateCustomResponse, error)
	DeleteCustomFn     func(context.Context, string) error
	PublishFn          func(context.Context, string) error
	UnpublishFn        func(context.Context, string) error
	ToolsFn            func(context.Context) ([]integration.Tool, error)
	PingFn             func(context.Context) error

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeBackend) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeBackend) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) Catalog(ctx context.Context) ([]integration.Descriptor, error) {
	f.count("catalog")
	if f.CatalogFn != nil {
		return f.CatalogFn(ctx)
	}
	return testCatalog(), nil
}

func (f *fakeBackend) UserIntegrations(ctx context.Context) ([]integration.UserRecord, error) {
	f.count("user")
	if f.UserIntegrationsFn != nil {
		return f.UserIntegrationsFn(ctx)
	}
	return testRecords(), nil
}

func (f *fakeBackend) Statuses(ctx context.Context) ([]integration.ConnectionStatus, error) {
	f.count("status")
	if f.StatusesFn != nil {
		return f.StatusesFn(ctx)
	}
	return []integration.ConnectionStatus{{IntegrationID: "slack", Connected: true}}, nil
}

func (f *fakeBackend) ConnectMCP(ctx context.Context, id, token string) (upstream.ConnectResponse, error) {
	f.count("connect")
	if f.ConnectMCPFn != nil {
		return f.ConnectMCPFn(ctx, id, token)
	}
	return upstream.ConnectResponse{Status: "connected"}, nil
}

func (f *fakeBackend) Disconnect(ctx context.Context, id string) error {
	f.count("disconnect")
	if f.DisconnectFn != nil {
		return f.DisconnectFn(ctx, id)
	}
	return nil
}

func (f *fakeBackend) CreateCustom(ctx context.Context, req upstream.CreateCustomRequest) (upstream.CreateCustomResponse, error) {
	f.count("create")
	if f.CreateCustomFn != nil {
		return f.CreateCustomFn(ctx, req)
	}
	return upstream.CreateCustomResponse{Status: "success", IntegrationID: "custom-2", Name: req.Name}, nil
}

func (f *fakeBackend) DeleteCustom(ctx context.Context, id string) error {
	f.count("delete")
	if f.DeleteCustomFn != nil {
		return f.DeleteCustomFn(ctx, id)
	}
	return nil
}

func (f *fakeBackend) Publish(ctx context.Context, id string) error {
	f.count("publish")
	if f.PublishFn != nil {
		return f.PublishFn(ctx, id)
	}
	return nil
}

func (f *fakeBackend) Unpublish(ctx context.Context, id string) error {
	f.count("unpublish")
	if f.UnpublishFn != nil {
		return f.UnpublishFn(ctx, id)
	}
	return nil
}

func (f *fakeBackend) Tools(ctx context.Context) ([]integration.Tool, error) {
	f.count("tools")
	if f.ToolsFn != nil {
		return f.ToolsFn(ctx)
	}
	return []integration.Tool{{Name: "send_email"}}, nil
}

func (f *fakeBackend) Ping(ctx context.Context) error {
	if f.PingFn != nil {
		return f.PingFn(ctx)
	}
	return nil
}

type fakeEvents struct {
	ListFn func(context.Context, string, string, int) ([]connection.Event, error)

	mu       sync.Mutex
	recorded []connection.Event
}

func (f *fakeEvents) Record(_ context.Context, event connection.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, event)
	return nil
}

func (f *fakeEvents) List(ctx context.Context, userID, id string, limit int) ([]connection.Event, error) {
	if f.ListFn != nil {
		return f.ListFn(ctx, userID, id, limit)
	}
	return []connection.Event{}, nil
}

func (f *fakeEvents) Ping(context.Context) error {
	return nil
}

func testCatalog() []integration.Descriptor {
	bundle := integration.Descriptor{
		ID: "workspace", Name: "Google Workspace", Category: "productivity",
		ManagedBy: integration.ManagedByComposio, AuthType: integration.AuthOAuth, Source: integration.SourcePlatform,
		IsSpecial: true, IncludedIntegrations: []string{"gmail", "notes"},
	}
	return []integration.Descriptor{
		{ID: "gmail", Name: "Gmail", Description: "Send and read email", Category: "communication", ManagedBy: integration.ManagedByComposio, AuthType: integration.AuthOAuth, Source: integration.SourcePlatform, DisplayPriority: 5},
		{ID: "slack", Name: "Slack", Description: "Post messages to channels", Category: "communication", ManagedBy: integration.ManagedBySelf, AuthType: integration.AuthOAuth, Source: integration.SourcePlatform, DisplayPriority: 1},
		{ID: "notes", Name: "Notes", Description: "Shared notebooks", Category: "productivity", ManagedBy: integration.ManagedByMCP, AuthType: integration.AuthNone, Source: integration.SourcePlatform},
		{ID: "linear", Name: "Linear", Description: "Issue tracking", Category: "developer", ManagedBy: integration.ManagedByMCP, AuthType: integration.AuthBearer, Source: integration.SourcePlatform},
		{ID: "github", Name: "GitHub", Description: "Repositories and pull requests", Category: "developer", ManagedBy: integration.ManagedByComposio, AuthType: integration.AuthOAuth, Source: integration.SourcePlatform},
		bundle,
	}
}

func testRecords() []integration.UserRecord {
	return []integration.UserRecord{{
		IntegrationID: "custom-1",
		Status:        integration.RecordCreated,
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Integration: integration.Descriptor{
			ID: "custom-1", Name: "Weather Tools", Category: "custom",
			ManagedBy: integration.ManagedByMCP, AuthType: integration.AuthBearer,
			Source: integration.SourceCustom, CreatedBy: "u1",
		},
	}}
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      testSecret,
		LoginBaseURL:   "https://login.test/oauth/login/integration",
		CORSOrigin:     "*",
		StrictCategory: true,
		IdleTimeout:    time.Hour,
	}
}

type testEnv struct {
	backend *fakeBackend
	events  *fakeEvents
	service *Service
	handler http.Handler
}

func newTestEnv(t *testing.T, withEvents bool) *testEnv {
	t.Helper()
	env := &testEnv{backend: &fakeBackend{}}
	deps := Dependencies{Backend: env.backend, Log: logging.Discard()}
	if withEvents {
		env.events = &fakeEvents{}
		deps.Events = env.events
	}
	env.service = New(testConfig(), deps)
	t.Cleanup(env.service.Close)
	env.handler = NewHTTPServer(env.service, "*").Handler()
	return env
}

func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub:  userID,
		Name: userID,
		Role: role,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}
