package storage

import (
	"fmt"
	"os"

	"github.com/dc-tec/openbao-console/internal/constants"
)

// Credentials holds static object storage credentials.
type Credentials struct {
	// AccessKeyID is the access key for authentication.
	AccessKeyID string
	// SecretAccessKey is the secret key for authentication.
	SecretAccessKey string
	// SessionToken is an optional session token for temporary credentials.
	SessionToken string
	// CACert is an optional PEM-encoded CA certificate.
	CACert []byte
}

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// LoadCredentials reads journal storage credentials from the environment.
// It returns nil when no access key is configured, meaning the AWS default
// credential chain should be used. Supplying only one half of the key pair is an error.
func LoadCredentials(lookup LookupFunc) (*Credentials, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	creds := &Credentials{}
	if v, ok := lookup(constants.EnvJournalAccessKeyID); ok {
		creds.AccessKeyID = v
	}
	if v, ok := lookup(constants.EnvJournalSecretAccessKey); ok {
		creds.SecretAccessKey = v
	}

	if (creds.AccessKeyID != "" && creds.SecretAccessKey == "") ||
		(creds.AccessKeyID == "" && creds.SecretAccessKey != "") {
		return nil, fmt.Errorf("environment must set both %s and %s, or neither",
			constants.EnvJournalAccessKeyID, constants.EnvJournalSecretAccessKey)
	}

	if creds.AccessKeyID == "" {
		return nil, nil
	}

	if v, ok := lookup(constants.EnvJournalSessionToken); ok {
		creds.SessionToken = v
	}

	return creds, nil
}
