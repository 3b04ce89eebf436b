package constants

// OpenBao API paths used by the console and the bao-mount binary.
const (
	APIPathSysHealth           = "/v1/sys/health"
	APIPathSysAuth             = "/v1/sys/auth/"
	APIPathSysMounts           = "/v1/sys/mounts/"
	APIPathSysCapabilitiesSelf = "/v1/sys/capabilities-self"
	APIPathAuthLoginTemplate   = "/v1/auth/%s/login"
	APIPathPrefix              = "/v1/"
)

// Request headers understood by OpenBao.
const (
	HeaderVaultToken     = "X-Vault-Token" // #nosec G101 -- This is a header name, not a credential
	HeaderVaultNamespace = "X-Vault-Namespace"
	HeaderVaultRequest   = "X-Vault-Request"
)

// DefaultJWTAuthMount is the auth mount used for JWT login when none is configured.
const DefaultJWTAuthMount = "jwt"

// Capability names returned by sys/capabilities-self.
const (
	CapabilityCreate = "create"
	CapabilityRead   = "read"
	CapabilityUpdate = "update"
	CapabilityDelete = "delete"
	CapabilityList   = "list"
	CapabilitySudo   = "sudo"
	CapabilityRoot   = "root"
	CapabilityDeny   = "deny"
)
