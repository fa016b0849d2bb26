// Package gclient holds what the Gmail and Calendar adapters share: the
// authorized HTTP client, circuit breaker classification and error mapping.
package gclient

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"integration_server/core/domain"
	"integration_server/pkg/apperr"
	"integration_server/pkg/resilience"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const providerName = string(domain.ProviderGoogle)

// Options builds client options that authorize with the connection's
// access token. Refresh happens before the adapter is called.
func Options(ctx context.Context, conn *domain.ProviderConnection, base *http.Client, endpoint string) []option.ClientOption {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	token := &oauth2.Token{AccessToken: conn.AccessToken, TokenType: "Bearer"}
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))),
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

// NewBreaker returns a breaker that only counts 429, 5xx and transport
// failures.
func NewBreaker(name string) *resilience.Breaker {
	settings := resilience.DefaultSettings(name)
	settings.Trips = TripsBreaker
	return resilience.NewBreaker(settings)
}

func TripsBreaker(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// WrapError maps Google API failures onto the application's errors.
func WrapError(operation string, err error) error {
	if err == nil || apperr.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Timeout("google " + operation).WithError(err)
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return apperr.ProviderAPIError(providerName, "circuit_open", "google is temporarily unavailable")
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		code := strconv.Itoa(apiErr.Code)
		if len(apiErr.Errors) > 0 && apiErr.Errors[0].Reason != "" {
			code = apiErr.Errors[0].Reason
		}
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.Code)
		}
		return apperr.ProviderAPIError(providerName, code, operation+": "+msg).
			WithDetail("status", apiErr.Code).
			WithError(err)
	}
	return apperr.ProviderAPIError(providerName, "request_failed", operation+" failed").WithError(err)
}

// IsNotFound reports a 404 from the Google API.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
