package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Transient errors indicate temporary conditions on the path to OpenBao.
// The console never retries on its own; these only decide how a failure is reported.

// ErrTransientConnection indicates a transient connection error.
// This includes timeouts, connection refused, DNS resolution failures, and network unreachable errors.
var ErrTransientConnection = errors.New("transient connection error")

// ErrTransientRemoteOverloaded indicates OpenBao answered with 429/5xx or the client-side
// circuit breaker refused to send the request.
var ErrTransientRemoteOverloaded = errors.New("transient remote overloaded")

// Permanent errors indicate configuration or state issues that require operator intervention.

// ErrPermanentConfig indicates a permanent configuration error that requires user intervention.
// This includes invalid configuration values, missing required fields, or incompatible settings.
var ErrPermanentConfig = errors.New("permanent configuration error")

// IsTransientConnection checks if an error is a transient connection error.
// This includes network timeouts, connection refused, DNS failures, and similar issues.
func IsTransientConnection(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrTransientConnection) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"context deadline exceeded",
		"timeout",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"temporary failure",
		"dial tcp",
		"connection closed",
		"broken pipe",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsTransientRemoteOverloaded checks if an error reports an overloaded OpenBao endpoint.
func IsTransientRemoteOverloaded(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransientRemoteOverloaded)
}

// WrapTransientConnection wraps an error as a transient connection error.
// If the error is already a transient connection error, it is returned as-is.
func WrapTransientConnection(err error) error {
	if err == nil {
		return nil
	}

	if IsTransientConnection(err) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrTransientConnection, err)
}

// WrapTransientRemoteOverloaded wraps an error as a transient remote overloaded error.
func WrapTransientRemoteOverloaded(err error) error {
	if err == nil {
		return nil
	}

	if IsTransientRemoteOverloaded(err) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrTransientRemoteOverloaded, err)
}

// WrapPermanentConfig wraps an error as a permanent configuration error.
func WrapPermanentConfig(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrPermanentConfig, err)
}

// IsTransient checks if an error is transient.
// Returns true for transient connection or remote overload errors.
func IsTransient(err error) bool {
	return IsTransientConnection(err) || IsTransientRemoteOverloaded(err)
}

// IsPermanent checks if an error is permanent (requires user intervention).
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrPermanentConfig)
}
