package logging

import (
	"strings"

	"github.com/go-logr/logr"
)

// Audit event types emitted by the console.
const (
	EventMountEnabled  = "mount_enabled"
	EventMountFailed   = "mount_failed"
	EventKVConfigured  = "kv_configured"
	EventLDAPRoleSaved = "ldap_role_saved"
	EventTransformSave = "transform_saved"
)

const redacted = "<redacted>"

var sensitiveKeyFragments = []string{"token", "secret", "password", "bindpass", "private_key"}

// LogAuditEvent logs a structured audit event for operator actions.
// Audit events are distinct from regular debug/info logs and are tagged
// with "audit=true" for easy filtering in log aggregation systems.
// Values whose keys look like credentials are replaced before logging.
func LogAuditEvent(logger logr.Logger, eventType string, fields map[string]string) {
	auditLogger := logger.WithValues("audit", "true", "event_type", eventType)
	for key, value := range fields {
		if IsSensitiveKey(key) {
			value = redacted
		}
		auditLogger = auditLogger.WithValues(key, value)
	}
	auditLogger.Info("Console audit event")
}

// IsSensitiveKey reports whether a config or field key names a credential.
// token_type and identity_token_key are names, not secrets.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	switch k {
	case "token_type", "identity_token_key", "tweak_source":
		return false
	}
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(k, fragment) {
			return true
		}
	}
	return false
}
