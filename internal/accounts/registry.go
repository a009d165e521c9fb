package accounts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

const (
	// ConfigName is the registry file inside the accounts directory.
	ConfigName = "accounts.toml"
	// DBName is the database file inside each account directory.
	DBName = "dc.db"
)

// AccountEntry describes one account in the registry.
type AccountEntry struct {
	// Unique id.
	ID uint32 `toml:"id"`
	// Root directory for all data of this account.
	Dir  string    `toml:"dir"`
	UUID uuid.UUID `toml:"uuid"`
}

// Dbfile returns the canonical database path for this entry.
func (e AccountEntry) Dbfile() string {
	return filepath.Join(e.Dir, DBName)
}

type registryData struct {
	OSName string `toml:"os_name"`
	// The currently selected account, 0 when none.
	SelectedAccount uint32         `toml:"selected_account"`
	NextID          uint32         `toml:"next_id"`
	Accounts        []AccountEntry `toml:"accounts"`
}

// registry is the persisted accounts document. Every mutation
// rewrites the whole file; a single process owns a given directory.
type registry struct {
	file string
	mu   sync.RWMutex
	data registryData
}

// newRegistry writes a fresh registry into dir.
func newRegistry(osName, dir string) (*registry, error) {
	r := &registry{
		file: filepath.Join(dir, ConfigName),
		data: registryData{
			OSName:          osName,
			SelectedAccount: 0,
			NextID:          1,
		},
	}
	if err := r.sync(); err != nil {
		return nil, err
	}
	return r, nil
}

// openRegistry reads an existing registry file into memory.
func openRegistry(file string) (*registry, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	var data registryData
	if err := toml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return &registry{file: file, data: data}, nil
}

// sync writes the in-memory state to disk. Callers must hold the
// write lock or have exclusive access.
func (r *registry) sync() error {
	raw, err := toml.Marshal(&r.data)
	if err != nil {
		return fmt.Errorf("failed to serialize registry: %w", err)
	}
	if err := os.WriteFile(r.file, raw, 0644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

func (r *registry) osName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.OSName
}

func (r *registry) selectedAccount() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.SelectedAccount
}

func (r *registry) selectAccount(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for _, e := range r.data.Accounts {
		if e.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid account id: %d", id)
	}
	r.data.SelectedAccount = id
	return r.sync()
}

// newAccount allocates the next id, creates the registry entry and
// selects it.
func (r *registry) newAccount(dir string) (AccountEntry, error) {
	r.mu.Lock()
	id := r.data.NextID
	u := uuid.New()
	entry := AccountEntry{
		ID:   id,
		Dir:  filepath.Join(dir, strings.ReplaceAll(u.String(), "-", "")),
		UUID: u,
	}
	r.data.Accounts = append(r.data.Accounts, entry)
	r.data.NextID++
	r.data.SelectedAccount = id
	err := r.sync()
	r.mu.Unlock()
	if err != nil {
		return AccountEntry{}, err
	}
	return entry, nil
}

// removeAccount drops the entry; when it was selected, the first
// remaining account (the smallest id) takes over, or 0 when none is
// left.
func (r *registry) removeAccount(id uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.data.Accounts {
		if e.ID == id {
			r.data.Accounts = append(r.data.Accounts[:i], r.data.Accounts[i+1:]...)
			break
		}
	}
	if r.data.SelectedAccount == id {
		if len(r.data.Accounts) > 0 {
			r.data.SelectedAccount = r.data.Accounts[0].ID
		} else {
			r.data.SelectedAccount = 0
		}
	}
	return r.sync()
}

func (r *registry) getAccount(id uint32) (AccountEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.data.Accounts {
		if e.ID == id {
			return e, true
		}
	}
	return AccountEntry{}, false
}

func (r *registry) entries() []AccountEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AccountEntry, len(r.data.Accounts))
	copy(out, r.data.Accounts)
	return out
}
