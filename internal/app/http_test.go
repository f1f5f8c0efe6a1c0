package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theexperiencecompany/gaia-sub002/internal/connection"
	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
	"github.com/theexperiencecompany/gaia-sub002/internal/logging"
	"github.com/theexperiencecompany/gaia-sub002/internal/metrics"
	"github.com/theexperiencecompany/gaia-sub002/internal/upstream"
)

type listResponse struct {
	Integrations []integration.Reconciled `json:"integrations"`
	Categories   []struct {
		Value string `json:"value"`
		Count int    `json:"count"`
	} `json:"categories"`
	Total    int  `json:"total"`
	Degraded bool `json:"degraded"`
}

type errorResponse struct {
	Code          string                    `json:"code"`
	Error         string                    `json:"error"`
	Details       map[string]any            `json:"details"`
	Notifications []connection.Notification `json:"notifications"`
}

func statusByID(list []integration.Reconciled) map[string]integration.Status {
	out := map[string]integration.Status{}
	for _, item := range list {
		out[item.ID] = item.Status
	}
	return out
}

func idsOf(list []integration.Reconciled) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, item.ID)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode[map[string]any](t, rr)["ok"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestReadyEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	rr := env.do(t, http.MethodGet, "/api/ready", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[map[string]any](t, rr)
	checks := body["checks"].(map[string]any)
	assert.Contains(t, checks, "upstream")
	assert.Contains(t, checks, "database")

	env.backend.PingFn = func(context.Context) error { return errors.New("connection refused") }
	rr = env.do(t, http.MethodGet, "/api/ready", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body = decode[map[string]any](t, rr)
	assert.Equal(t, "not_ready", body["status"])
}

func TestRequiresSession(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodGet, "/api/integrations", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/integrations", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, env.backend.Calls("catalog"))
}

func TestListIntegrations(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodGet, "/api/integrations", tokenFor(t, "u1", "member"), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode[listResponse](t, rr)

	assert.Equal(t, 7, body.Total)
	assert.False(t, body.Degraded)
	assert.Equal(t, []string{"gmail", "slack", "notes", "linear", "github", "workspace", "custom-1"}, idsOf(body.Integrations))

	statuses := statusByID(body.Integrations)
	assert.Equal(t, integration.StatusConnected, statuses["slack"])
	assert.Equal(t, integration.StatusConnected, statuses["notes"])
	assert.Equal(t, integration.StatusNotConnected, statuses["gmail"])
	assert.Equal(t, integration.StatusCreated, statuses["custom-1"])

	require.GreaterOrEqual(t, len(body.Categories), 2)
	assert.Equal(t, integration.CategoryAll, body.Categories[0].Value)
	assert.Equal(t, integration.CategoryCreatedByYou, body.Categories[1].Value)
	assert.Equal(t, 1, body.Categories[1].Count)
}

func TestListIntegrationsOrderAndFilter(t *testing.T) {
	env := newTestEnv(t, false)
	token := tokenFor(t, "u1", "member")

	rr := env.do(t, http.MethodGet, "/api/integrations?order=priority", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[listResponse](t, rr)
	assert.Equal(t, []string{"gmail", "slack", "github", "workspace", "linear", "notes", "custom-1"}, idsOf(body.Integrations))

	rr = env.do(t, http.MethodGet, "/api/integrations?category=communication", token, "")
	body = decode[listResponse](t, rr)
	assert.Equal(t, []string{"gmail", "slack"}, idsOf(body.Integrations))
	assert.Equal(t, 7, body.Total)

	rr = env.do(t, http.MethodGet, "/api/integrations?category=created_by_you", token, "")
	body = decode[listResponse](t, rr)
	assert.Equal(t, []string{"custom-1"}, idsOf(body.Integrations))
}

func TestListIntegrationsSearch(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodGet, "/api/integrations?q=git", tokenFor(t, "u1", "member"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[listResponse](t, rr)
	require.NotEmpty(t, body.Integrations)
	assert.Equal(t, "github", body.Integrations[0].ID)
}

func TestListIntegrationsDegradedStatus(t *testing.T) {
	env := newTestEnv(t, false)
	env.backend.StatusesFn = func(context.Context) ([]integration.ConnectionStatus, error) {
		return []integration.ConnectionStatus{}, &upstream.DegradedReadError{Err: errors.New("timeout")}
	}

	rr := env.do(t, http.MethodGet, "/api/integrations", tokenFor(t, "u1", "member"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[listResponse](t, rr)

	assert.True(t, body.Degraded)
	statuses := statusByID(body.Integrations)
	assert.Equal(t, integration.StatusNotConnected, statuses["slack"])
	assert.Equal(t, integration.StatusConnected, statuses["notes"])
}

func TestListIntegrationsCatalogFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.backend.CatalogFn = func(context.Context) ([]integration.Descriptor, error) {
		return nil, &upstream.NetworkError{Op: "catalog", Status: http.StatusInternalServerError}
	}

	rr := env.do(t, http.MethodGet, "/api/integrations", tokenFor(t, "u1", "member"), "")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	body := decode[errorResponse](t, rr)
	assert.Equal(t, "SOURCE_UNAVAILABLE", body.Code)
	assert.Equal(t, "catalog", body.Details["source"])
}

func TestGetIntegration(t *testing.T) {
	env := newTestEnv(t, false)
	token := tokenFor(t, "u1", "member")

	rr := env.do(t, http.MethodGet, "/api/integrations/notes", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	item := decode[integration.Reconciled](t, rr)
	assert.Equal(t, integration.StatusConnected, item.Status)

	rr = env.do(t, http.MethodGet, "/api/integrations/ghost", token, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestConnectOAuthReturnsRedirect(t *testing.T) {
	env := newTestEnv(t, true)
	token := tokenFor(t, "u1", "member")

	rr := env.do(t, http.MethodPost, "/api/integrations/gmail/connect", token, `{"returnPath":"/integrations"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode[struct {
		Result connection.ConnectResult `json:"result"`
	}](t, rr)

	assert.Equal(t, connection.ResultRedirecting, body.Result.Status)
	assert.Equal(t, "https://login.test/oauth/login/integration/gmail?redirect_path=%2Fintegrations", body.Result.RedirectURL)
	assert.Zero(t, env.backend.Calls("connect"))

	rr = env.do(t, http.MethodGet, "/api/integrations/gmail/state", token, "")
	state := decode[map[string]string](t, rr)
	assert.Equal(t, string(connection.StateRequiresOAuthRedirect), state["state"])
}

func TestConnectUnknownIntegration(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodPost, "/api/integrations/ghost/connect", tokenFor(t, "u1", "member"), "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decode[errorResponse](t, rr)
	assert.Equal(t, "CONFIGURATION_ERROR", body.Code)
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, connection.LevelError, body.Notifications[0].Level)
	assert.Zero(t, env.backend.Calls("connect"))
}

func TestConnectInvalidatesUserCache(t *testing.T) {
	env := newTestEnv(t, true)
	token := tokenFor(t, "u1", "member")
	env.backend.ConnectMCPFn = func(_ context.Context, id, bearer string) (upstream.ConnectResponse, error) {
		assert.Equal(t, "linear", id)
		assert.Equal(t, "lin_123", bearer)
		return upstream.ConnectResponse{Status: "connected"}, nil
	}

	env.do(t, http.MethodGet, "/api/integrations", token, "")
	env.do(t, http.MethodGet, "/api/integrations", token, "")
	assert.Equal(t, 1, env.backend.Calls("user"))
	assert.Equal(t, 1, env.backend.Calls("catalog"))

	rr := env.do(t, http.MethodPost, "/api/integrations/linear/connect", token, `{"bearerToken":"lin_123"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, env.backend.Calls("connect"))

	env.do(t, http.MethodGet, "/api/integrations", token, "")
	assert.Equal(t, 2, env.backend.Calls("user"))
	assert.Equal(t, 1, env.backend.Calls("catalog"))

	require.NotEmpty(t, env.events.recorded)
	last := env.events.recorded[len(env.events.recorded)-1]
	assert.Equal(t, connection.StateConnected, last.State)
	assert.Equal(t, "u1", last.UserID)
}

func TestConnectFailureIsSurfaced(t *testing.T) {
	env := newTestEnv(t, false)
	env.backend.ConnectMCPFn = func(context.Context, string, string) (upstream.ConnectResponse, error) {
		return upstream.ConnectResponse{}, &upstream.NetworkError{Op: "connect mcp", Status: http.StatusInternalServerError, Message: "server unreachable"}
	}

	rr := env.do(t, http.MethodPost, "/api/integrations/linear/connect", tokenFor(t, "u1", "member"), `{"bearerToken":"x"}`)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	body := decode[errorResponse](t, rr)
	assert.Equal(t, "UPSTREAM_ERROR", body.Code)
	assert.Equal(t, "server unreachable", body.Error)
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, "server unreachable", body.Notifications[0].Message)
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodDelete, "/api/integrations/slack", tokenFor(t, "u1", "member"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, env.backend.Calls("disconnect"))
}

func TestCreateCustom(t *testing.T) {
	env := newTestEnv(t, false)
	env.backend.CreateCustomFn = func(_ context.Context, req upstream.CreateCustomRequest) (upstream.CreateCustomResponse, error) {
		assert.Equal(t, "Forecast", req.Name)
		assert.Equal(t, "https://mcp.example.com/sse", req.ServerURL)
		return upstream.CreateCustomResponse{
			IntegrationID: "custom-2",
			Name:          req.Name,
			Connection:    &integration.ConnectionTestResult{Status: integration.TestFailed, Error: "timeout"},
		}, nil
	}

	rr := env.do(t, http.MethodPost, "/api/integrations/custom", tokenFor(t, "u1", "member"), `{"name":"Forecast","serverUrl":"https://mcp.example.com/sse"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decode[struct {
		Result        connection.CreateResult   `json:"result"`
		Notifications []connection.Notification `json:"notifications"`
	}](t, rr)
	assert.Equal(t, "custom-2", body.Result.ID)
	assert.Equal(t, connection.StateFailed, body.Result.State)
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, connection.LevelWarning, body.Notifications[0].Level)

	rr = env.do(t, http.MethodPost, "/api/integrations/custom", tokenFor(t, "u1", "member"), `{"serverUrl":"https://x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCustomIntegrationPermissions(t *testing.T) {
	env := newTestEnv(t, false)

	rr := env.do(t, http.MethodDelete, "/api/integrations/custom/custom-1", tokenFor(t, "u2", "member"), "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, env.backend.Calls("delete"))

	rr = env.do(t, http.MethodPost, "/api/integrations/custom/custom-1/publish", tokenFor(t, "u3", "admin"), "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, env.backend.Calls("publish"))

	rr = env.do(t, http.MethodDelete, "/api/integrations/custom/custom-1/publish", tokenFor(t, "u1", "member"), "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, env.backend.Calls("unpublish"))

	rr = env.do(t, http.MethodDelete, "/api/integrations/custom/custom-1", tokenFor(t, "u1", "member"), "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, env.backend.Calls("delete"))

	rr = env.do(t, http.MethodDelete, "/api/integrations/custom/gmail", tokenFor(t, "u1", "admin"), "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "NOT_CUSTOM", decode[errorResponse](t, rr).Code)
}

func TestBundleEndpoints(t *testing.T) {
	env := newTestEnv(t, false)
	token := tokenFor(t, "u1", "member")

	rr := env.do(t, http.MethodGet, "/api/integrations/workspace/bundle", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[BundleView](t, rr)
	assert.False(t, view.AllConnected)
	assert.Equal(t, []string{"gmail", "notes"}, idsOf(view.Children))

	rr = env.do(t, http.MethodGet, "/api/integrations/gmail/bundle", token, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/integrations/workspace/connect-all", token, `{"returnPath":"/home"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode[struct {
		Result connection.BundleResult `json:"result"`
	}](t, rr)
	assert.Empty(t, body.Result.Connected)
	require.NotNil(t, body.Result.Redirect)
	assert.Equal(t, "gmail", body.Result.Redirect.ID)
	assert.True(t, strings.HasSuffix(body.Result.Redirect.RedirectURL, "redirect_path=%2Fhome"))
}

func TestEventsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	rr := env.do(t, http.MethodGet, "/api/integrations/gmail/events", tokenFor(t, "u1", "member"), "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	env = newTestEnv(t, true)
	env.events.ListFn = func(_ context.Context, userID, id string, limit int) ([]connection.Event, error) {
		assert.Equal(t, "u1", userID)
		assert.Equal(t, "gmail", id)
		assert.Equal(t, 5, limit)
		return []connection.Event{{ID: "e1", IntegrationID: "gmail", State: connection.StateConnected, CreatedAt: time.Now()}}, nil
	}
	rr = env.do(t, http.MethodGet, "/api/integrations/gmail/events?limit=5", tokenFor(t, "u1", "member"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Events []connection.Event `json:"events"`
	}](t, rr)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "e1", body.Events[0].ID)
}

func TestToolsEndpointIsCached(t *testing.T) {
	env := newTestEnv(t, false)
	token := tokenFor(t, "u1", "member")

	for i := 0; i < 2; i++ {
		rr := env.do(t, http.MethodGet, "/api/tools", token, "")
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode[struct {
			Tools []integration.Tool `json:"tools"`
		}](t, rr)
		require.Len(t, body.Tools, 1)
	}
	assert.Equal(t, 1, env.backend.Calls("tools"))
}

func TestMetricsEndpoint(t *testing.T) {
	svc := New(testConfig(), Dependencies{Backend: &fakeBackend{}, Metrics: metrics.NewMetrics(), Log: logging.Discard()})
	defer svc.Close()
	env := &testEnv{service: svc, handler: NewHTTPServer(svc, "*").Handler()}

	env.do(t, http.MethodGet, "/api/health", "", "")
	rr := env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "integrations_http_requests_total")
}

func TestUnknownRoutes(t *testing.T) {
	env := newTestEnv(t, false)
	token := tokenFor(t, "u1", "member")

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/spaces", token, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/integrations/a/b/c", token, "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodPut, "/api/integrations", token, "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodGet, "/api/integrations/gmail/connect", token, "").Code)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/api/integrations/{id}/connect", routeLabel("/api/integrations/gmail/connect"))
	assert.Equal(t, "/api/integrations/custom/{id}/publish", routeLabel("/api/integrations/custom/c1/publish"))
	assert.Equal(t, "/api/integrations/categories", routeLabel("/api/integrations/categories"))
	assert.Equal(t, "/api/health", routeLabel("/api/health"))
}
