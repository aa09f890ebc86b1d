package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// DefaultArchive names the identity used when a mission has no archive of
// its own configured.
const DefaultArchive = "default"

// Identity is the opaque string an archive asks for: a registered e-mail
// for JSOC exports, an API token elsewhere.
type Identity struct {
	Archive      string    `json:"archive"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving identities
type CredentialStore interface {
	// Store saves an identity
	Store(id *Identity) error

	// Retrieve gets the identity for an archive
	Retrieve(archive string) (*Identity, error)

	// List returns all stored identities
	List() ([]*Identity, error)

	// Delete removes the identity for an archive
	Delete(archive string) error

	// Exists checks if an identity exists for an archive
	Exists(archive string) bool
}

// Manager handles identity storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a manager backed by the system keychain when
// available, an encrypted file under the config directory, and the
// environment.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "identities.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over explicit stores, in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the identity in the first store that accepts it
func (m *Manager) Store(id *Identity) error {
	if id == nil || strings.TrimSpace(id.Value) == "" {
		return ErrInvalidCredentials
	}
	if id.Archive == "" {
		id.Archive = DefaultArchive
	}
	id.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(id)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store identity: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets the identity from the first store that has it
func (m *Manager) Retrieve(archive string) (*Identity, error) {
	for _, store := range m.stores {
		if id, err := store.Retrieve(archive); err == nil && id != nil {
			return id, nil
		}
	}
	return nil, fmt.Errorf("%w for archive %s", ErrCredentialsNotFound, archive)
}

// Resolve returns the identity for archive, falling back to the default
// identity. An empty string with ErrCredentialsNotFound means none is set.
func (m *Manager) Resolve(archive string) (string, error) {
	if archive != "" && archive != DefaultArchive {
		if id, err := m.Retrieve(archive); err == nil {
			return id.Value, nil
		}
	}
	id, err := m.Retrieve(DefaultArchive)
	if err != nil {
		return "", err
	}
	return id.Value, nil
}

// List returns stored identities from all stores, newest version per
// archive, sorted by archive name.
func (m *Manager) List() ([]*Identity, error) {
	byArchive := make(map[string]*Identity)

	for _, store := range m.stores {
		ids, err := store.List()
		if err != nil {
			continue
		}
		for _, id := range ids {
			if existing, ok := byArchive[id.Archive]; !ok || id.LastModified.After(existing.LastModified) {
				byArchive[id.Archive] = id
			}
		}
	}

	result := make([]*Identity, 0, len(byArchive))
	for _, id := range byArchive {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Archive < result[j].Archive })
	return result, nil
}

// Delete removes the identity from all stores
func (m *Manager) Delete(archive string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(archive); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete identity: %w", lastErr)
	}
	return fmt.Errorf("%w for archive %s", ErrCredentialsNotFound, archive)
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "heliodata")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "heliodata")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "heliodata")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "heliodata")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Sanitize returns a copy with the value masked for display
func Sanitize(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	return &Identity{
		Archive:      id.Archive,
		Value:        Mask(id.Value),
		LastModified: id.LastModified,
	}
}

// Mask keeps the first and last 3 characters of s, or the domain of an
// e-mail address.
func Mask(s string) string {
	if at := strings.LastIndex(s, "@"); at > 0 {
		return s[:1] + "***" + s[at:]
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:3] + "..." + s[len(s)-3:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("identity not found")
	ErrInvalidCredentials  = errors.New("invalid identity")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
