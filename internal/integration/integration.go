// Package integration holds the shared data model for connectable integrations:
// platform catalog descriptors, per-user records, live connection statuses and
// the reconciled view built from all three.
package integration

import "time"

type ManagedBy string

const (
	ManagedBySelf     ManagedBy = "self"
	ManagedByComposio ManagedBy = "composio"
	ManagedByMCP      ManagedBy = "mcp"
	ManagedByInternal ManagedBy = "internal"
)

type AuthType string

const (
	AuthOAuth  AuthType = "oauth"
	AuthBearer AuthType = "bearer"
	AuthNone   AuthType = "none"
)

type Source string

const (
	SourcePlatform Source = "platform"
	SourceCustom   Source = "custom"
)

// RecordStatus is the stored state of a user-owned integration.
type RecordStatus string

const (
	RecordCreated   RecordStatus = "created"
	RecordConnected RecordStatus = "connected"
)

// Status is the computed state of a reconciled integration.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusNotConnected Status = "not_connected"
	StatusCreated      Status = "created"
	StatusError        Status = "error"
)

type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Descriptor struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	Category             string    `json:"category"`
	ManagedBy            ManagedBy `json:"managedBy"`
	AuthType             AuthType  `json:"authType"`
	Source               Source    `json:"source"`
	RequiresAuth         bool      `json:"requiresAuth"`
	IconURL              string    `json:"iconUrl,omitempty"`
	Tools                []Tool    `json:"tools,omitempty"`
	DisplayPriority      int       `json:"displayPriority"`
	IsFeatured           bool      `json:"isFeatured"`
	IsSpecial            bool      `json:"isSpecial"`
	IncludedIntegrations []string  `json:"includedIntegrations,omitempty"`
	CreatedBy            string    `json:"createdBy,omitempty"`
	IsPublic             *bool     `json:"isPublic,omitempty"`
	ServerURL            string    `json:"serverUrl,omitempty"`
}

// AlwaysConnected reports whether the integration is an unauthenticated MCP
// server. Such integrations are connected for every user without any call.
func (d Descriptor) AlwaysConnected() bool {
	return d.ManagedBy == ManagedByMCP && d.AuthType == AuthNone
}

// IsBundle reports whether the descriptor aggregates other integrations.
func (d Descriptor) IsBundle() bool {
	return d.IsSpecial
}

type UserRecord struct {
	IntegrationID string       `json:"integrationId"`
	Status        RecordStatus `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	ConnectedAt   *time.Time   `json:"connectedAt,omitempty"`
	Integration   Descriptor   `json:"integration"`
}

type ConnectionStatus struct {
	IntegrationID string     `json:"integrationId"`
	Connected     bool       `json:"connected"`
	LastConnected *time.Time `json:"lastConnected,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Reconciled is the per-user view of one integration. Status is derived on
// every reconciliation pass and never persisted.
type Reconciled struct {
	Descriptor
	Status        Status     `json:"status"`
	Owned         bool       `json:"owned"`
	ConnectedAt   *time.Time `json:"connectedAt,omitempty"`
	LastConnected *time.Time `json:"lastConnected,omitempty"`
	Error         string     `json:"error,omitempty"`
}

func (r Reconciled) Connected() bool {
	return r.Status == StatusConnected
}

type TestStatus string

const (
	TestConnected     TestStatus = "connected"
	TestRequiresOAuth TestStatus = "requires_oauth"
	TestFailed        TestStatus = "failed"
	TestCreated       TestStatus = "created"
)

// ConnectionTestResult is the outcome of the automatic connection probe run
// when a custom integration is created.
type ConnectionTestResult struct {
	Status     TestStatus `json:"status"`
	ToolsCount *int       `json:"toolsCount,omitempty"`
	OAuthURL   string     `json:"oauthUrl,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Find returns the integration with the given id.
func Find(list []Reconciled, id string) (Reconciled, bool) {
	for _, item := range list {
		if item.ID == id {
			return item, true
		}
	}
	return Reconciled{}, false
}
