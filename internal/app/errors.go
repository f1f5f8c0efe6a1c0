package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/theexperiencecompany/gaia-sub002/internal/auth"
	"github.com/theexperiencecompany/gaia-sub002/internal/connection"
	"github.com/theexperiencecompany/gaia-sub002/internal/reconcile"
	"github.com/theexperiencecompany/gaia-sub002/internal/upstream"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}

	var cfgErr *connection.ConfigurationError
	if errors.As(err, &cfgErr) {
		return http.StatusUnprocessableEntity, "CONFIGURATION_ERROR", cfgErr.Reason, map[string]any{"id": cfgErr.ID}
	}
	var failed *connection.ConnectFailedError
	if errors.As(err, &failed) {
		return http.StatusBadGateway, "CONNECT_FAILED", failed.Error(), map[string]any{"id": failed.ID, "status": failed.Status}
	}
	var sourceErr *reconcile.SourceError
	if errors.As(err, &sourceErr) {
		if status := upstream.StatusCode(err); status == http.StatusUnauthorized {
			return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
		}
		return http.StatusBadGateway, "SOURCE_UNAVAILABLE", "Could not load integrations", map[string]any{"source": sourceErr.Source}
	}
	var netErr *upstream.NetworkError
	if errors.As(err, &netErr) {
		message := netErr.Message
		if message == "" {
			message = "Backend request failed"
		}
		details := map[string]any{"operation": netErr.Op}
		if netErr.Status != 0 {
			details["upstreamStatus"] = netErr.Status
		}
		if netErr.Status == http.StatusUnauthorized {
			return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
		}
		return http.StatusBadGateway, "UPSTREAM_ERROR", message, details
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
