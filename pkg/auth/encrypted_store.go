package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

// PassphraseEnv overrides the generated passphrase of the encrypted store
const PassphraseEnv = "HELIODATA_PASSPHRASE"

const (
	saltSize         = 32
	keySize          = 32
	pbkdf2Iterations = 100000
	passphraseFile   = ".passphrase"
)

// EncryptedFileStore keeps identities in one AES-GCM sealed JSON file. The
// key is derived with PBKDF2 from PassphraseEnv, or from a random
// passphrase generated once into .passphrase next to the file.
type EncryptedFileStore struct {
	mu         sync.RWMutex
	path       string
	passphrase []byte
}

// sealedFile is the on-disk layout. Salt, Nonce and Data are base64.
type sealedFile struct {
	Version  int       `json:"version"`
	Salt     string    `json:"salt"`
	Nonce    string    `json:"nonce"`
	Data     string    `json:"data"`
	Modified time.Time `json:"modified"`
}

// NewEncryptedFileStore opens the store at path, creating its directory
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create identity directory: %w", err)
	}
	pass, err := loadPassphrase(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	return &EncryptedFileStore{path: path, passphrase: pass}, nil
}

func (e *EncryptedFileStore) Store(id *Identity) error {
	if id == nil || id.Archive == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.read()
	if err != nil {
		return err
	}
	ids[id.Archive] = *id
	return e.write(ids)
}

func (e *EncryptedFileStore) Retrieve(archive string) (*Identity, error) {
	if archive == "" {
		return nil, ErrInvalidCredentials
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids, err := e.read()
	if err != nil {
		return nil, err
	}
	id, ok := ids[archive]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &id, nil
}

func (e *EncryptedFileStore) List() ([]*Identity, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids, err := e.read()
	if err != nil {
		return nil, err
	}
	out := make([]*Identity, 0, len(ids))
	for _, id := range ids {
		id := id
		out = append(out, &id)
	}
	return out, nil
}

// Delete removes the identity for archive. The file goes away with the
// last identity.
func (e *EncryptedFileStore) Delete(archive string) error {
	if archive == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, err := e.read()
	if err != nil {
		return err
	}
	if _, ok := ids[archive]; !ok {
		return ErrCredentialsNotFound
	}
	delete(ids, archive)
	if len(ids) == 0 {
		return os.Remove(e.path)
	}
	return e.write(ids)
}

func (e *EncryptedFileStore) Exists(archive string) bool {
	_, err := e.Retrieve(archive)
	return err == nil
}

// read returns the decrypted identities; a missing file is an empty set
func (e *EncryptedFileStore) read() (map[string]Identity, error) {
	ids := make(map[string]Identity)

	raw, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}

	var f sealedFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse identity file: %w", err)
	}
	salt, err1 := base64.StdEncoding.DecodeString(f.Salt)
	nonce, err2 := base64.StdEncoding.DecodeString(f.Nonce)
	data, err3 := base64.StdEncoding.DecodeString(f.Data)
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, fmt.Errorf("decode identity file: %w", err)
	}

	aead, err := e.aead(salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("identity file: bad nonce")
	}
	plain, err := aead.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt identity file (wrong %s?): %w", PassphraseEnv, err)
	}

	if err := json.Unmarshal(plain, &ids); err != nil {
		return nil, fmt.Errorf("parse identities: %w", err)
	}
	return ids, nil
}

// write seals ids under a fresh salt and nonce and replaces the file
func (e *EncryptedFileStore) write(ids map[string]Identity) error {
	plain, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	aead, err := e.aead(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	out, err := json.MarshalIndent(sealedFile{
		Version:  2,
		Salt:     base64.StdEncoding.EncodeToString(salt),
		Nonce:    base64.StdEncoding.EncodeToString(nonce),
		Data:     base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plain, nil)),
		Modified: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace identity file: %w", err)
	}
	return nil
}

func (e *EncryptedFileStore) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// loadPassphrase prefers PassphraseEnv, then dir/.passphrase, generating
// the latter on first use.
func loadPassphrase(dir string) ([]byte, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return []byte(pass), nil
	}

	path := filepath.Join(dir, passphraseFile)
	if pass, err := os.ReadFile(path); err == nil && len(pass) > 0 {
		return pass, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate passphrase: %w", err)
	}
	pass := []byte(base64.URLEncoding.EncodeToString(buf))
	if err := os.WriteFile(path, pass, 0600); err != nil {
		return nil, fmt.Errorf("save passphrase: %w", err)
	}
	return pass, nil
}
