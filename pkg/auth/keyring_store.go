package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "heliodata"
	keyringPrefix  = "identity_"
	// keyringIndex lists the archives stored, since keychains cannot be
	// enumerated through go-keyring
	keyringIndex = "index"
)

// KeyringStore keeps one keychain entry per archive plus an index entry
type KeyringStore struct{}

// NewKeyringStore returns a keychain-backed store after probing that the
// keychain accepts writes.
func NewKeyringStore() (*KeyringStore, error) {
	const probe = "probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(id *Identity) error {
	if id == nil || id.Archive == "" {
		return ErrInvalidCredentials
	}
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringPrefix+id.Archive, string(data)); err != nil {
		return fmt.Errorf("keyring: store %s: %w", id.Archive, err)
	}
	return k.updateIndex(func(names map[string]bool) { names[id.Archive] = true })
}

func (k *KeyringStore) Retrieve(archive string) (*Identity, error) {
	if archive == "" {
		return nil, ErrInvalidCredentials
	}
	data, err := keyring.Get(keyringService, keyringPrefix+archive)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keyring: read %s: %w", archive, err)
	}

	var id Identity
	if err := json.Unmarshal([]byte(data), &id); err != nil {
		return nil, fmt.Errorf("keyring: decode %s: %w", archive, err)
	}
	return &id, nil
}

// List returns the identities named in the index. Entries removed from
// the keychain by other tools are skipped.
func (k *KeyringStore) List() ([]*Identity, error) {
	names, err := k.index()
	if err != nil {
		return nil, err
	}
	ids := make([]*Identity, 0, len(names))
	for _, name := range names {
		id, err := k.Retrieve(name)
		if errors.Is(err, ErrCredentialsNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (k *KeyringStore) Delete(archive string) error {
	if archive == "" {
		return ErrInvalidCredentials
	}
	err := keyring.Delete(keyringService, keyringPrefix+archive)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("keyring: delete %s: %w", archive, err)
	}
	return k.updateIndex(func(names map[string]bool) { delete(names, archive) })
}

func (k *KeyringStore) Exists(archive string) bool {
	_, err := k.Retrieve(archive)
	return err == nil
}

// index returns the sorted archive names recorded in the index entry
func (k *KeyringStore) index() ([]string, error) {
	data, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring: read index: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("keyring: decode index: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (k *KeyringStore) updateIndex(fn func(map[string]bool)) error {
	current, err := k.index()
	if err != nil {
		return err
	}
	set := make(map[string]bool, len(current)+1)
	for _, name := range current {
		set[name] = true
	}
	fn(set)

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		if err := keyring.Delete(keyringService, keyringIndex); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring: clear index: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("keyring: write index: %w", err)
	}
	return nil
}
