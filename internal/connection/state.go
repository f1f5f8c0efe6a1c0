package connection

import (
	"net/url"
	"strings"
	"time"
)

// State is the client-side phase of a connection attempt.
type State string

const (
	StateIdle                  State = "idle"
	StateConnecting            State = "connecting"
	StateConnected             State = "connected"
	StateRequiresOAuthRedirect State = "requires_oauth_redirect"
	StateFailed                State = "failed"
	StateDisconnected          State = "disconnected"
	StateCreated               State = "created"
	StateDeleted               State = "deleted"
	StatePublished             State = "published"
	StateUnpublished           State = "unpublished"
)

// Terminal reports whether no further transition follows in this client.
// An OAuth redirect leaves the page, so it is terminal too.
func (s State) Terminal() bool {
	return s != StateIdle && s != StateConnecting
}

// Operation names an orchestrator entry point.
type Operation string

const (
	OpConnect       Operation = "connect"
	OpConnectBundle Operation = "connect_bundle"
	OpDisconnect    Operation = "disconnect"
	OpCreateCustom  Operation = "create_custom"
	OpDeleteCustom  Operation = "delete_custom"
	OpPublish       Operation = "publish"
	OpUnpublish     Operation = "unpublish"
)

// Event is one recorded transition.
type Event struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	IntegrationID string    `json:"integrationId"`
	Operation     Operation `json:"operation"`
	State         State     `json:"state"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// LoginURL builds the OAuth login address for id. The browser returns to
// returnPath once the provider flow completes.
func LoginURL(base, id, returnPath string) string {
	if strings.TrimSpace(returnPath) == "" {
		returnPath = "/"
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(id) + "?redirect_path=" + url.QueryEscape(returnPath)
}
