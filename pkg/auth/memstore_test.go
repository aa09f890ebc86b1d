package auth

import "sync"

// memStore is an in-memory CredentialStore. A non-nil fail is returned by
// every write.
type memStore struct {
	mu   sync.Mutex
	ids  map[string]Identity
	fail error
}

func newMemStore() *memStore {
	return &memStore{ids: make(map[string]Identity)}
}

func newMemManager() (*Manager, *memStore) {
	s := newMemStore()
	return NewManagerWithStores(s), s
}

func (m *memStore) Store(id *Identity) error {
	if m.fail != nil {
		return m.fail
	}
	if id == nil || id.Archive == "" {
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[id.Archive] = *id
	return nil
}

func (m *memStore) Retrieve(archive string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.ids[archive]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &id, nil
}

func (m *memStore) List() ([]*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Identity, 0, len(m.ids))
	for _, id := range m.ids {
		id := id
		out = append(out, &id)
	}
	return out, nil
}

func (m *memStore) Delete(archive string) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[archive]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.ids, archive)
	return nil
}

func (m *memStore) Exists(archive string) bool {
	_, err := m.Retrieve(archive)
	return err == nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}
