package constants

// Environment variable keys read by the console and the bao-mount binary.
// They follow the OpenBao CLI names so an operator's shell works unchanged.
const (
	EnvBaoAddr      = "BAO_ADDR"
	EnvBaoToken     = "BAO_TOKEN" // #nosec G101 -- This is an environment variable name constant, not a credential
	EnvBaoNamespace = "BAO_NAMESPACE"
	EnvBaoCACert    = "BAO_CACERT"

	// Journal archive (S3/object storage target)
	EnvJournalAccessKeyID     = "JOURNAL_ACCESS_KEY_ID"
	EnvJournalSecretAccessKey = "JOURNAL_SECRET_ACCESS_KEY" // #nosec G101 -- This is an environment variable name constant, not a credential
	EnvJournalSessionToken    = "JOURNAL_SESSION_TOKEN"     // #nosec G101 -- This is an environment variable name constant, not a credential
)

// Console authentication method values.
const (
	AuthMethodJWT   = "jwt"
	AuthMethodToken = "token"
)
