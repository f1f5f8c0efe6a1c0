package connection

import "fmt"

// ConfigurationError reports a request that cannot be attempted: the id is
// unknown or the integration offers no usable connection mechanism. It is
// raised before any network call.
type ConfigurationError struct {
	ID     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error for %s: %s", e.ID, e.Reason)
}

// ConnectFailedError reports that the backend answered a connect call with
// anything other than "connected".
type ConnectFailedError struct {
	ID      string
	Status  string
	Message string
}

func (e *ConnectFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("connect %s: %s: %s", e.ID, e.Status, e.Message)
	}
	return fmt.Sprintf("connect %s: %s", e.ID, e.Status)
}
