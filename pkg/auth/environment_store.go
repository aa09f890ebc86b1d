package auth

import (
	"os"
	"strings"
	"time"
)

// EnvIdentity holds the default identity; EnvIdentity_<ARCHIVE> holds a
// per-archive one, e.g. HELIODATA_IDENTITY_JSOC.
const EnvIdentity = "HELIODATA_IDENTITY"

// EnvironmentStore implements CredentialStore using environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func envName(archive string) string {
	if archive == "" || archive == DefaultArchive {
		return EnvIdentity
	}
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(archive))
	return EnvIdentity + "_" + name
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(id *Identity) error {
	return ErrStoreUnavailable
}

// Retrieve reads the identity for archive from the environment
func (e *EnvironmentStore) Retrieve(archive string) (*Identity, error) {
	value := os.Getenv(envName(archive))
	if value == "" {
		return nil, ErrCredentialsNotFound
	}
	if archive == "" {
		archive = DefaultArchive
	}
	return &Identity{Archive: archive, Value: value, LastModified: time.Now()}, nil
}

// List returns the default identity if it is set
func (e *EnvironmentStore) List() ([]*Identity, error) {
	id, err := e.Retrieve(DefaultArchive)
	if err != nil {
		return []*Identity{}, nil
	}
	return []*Identity{id}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(archive string) error {
	return ErrStoreUnavailable
}

// Exists checks if the identity variable is set
func (e *EnvironmentStore) Exists(archive string) bool {
	return os.Getenv(envName(archive)) != ""
}
