// Package accounts manages multiple chat accounts in one place: an
// on-disk registry plus one running Context per account.
package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mixelka/chatmail/internal/core"
	"github.com/mixelka/chatmail/internal/event"
	"github.com/mixelka/chatmail/internal/imex"
)

// Accounts is the account manager.
type Accounts struct {
	dir      string
	registry *registry
	timeouts core.Timeouts
	logger   *slog.Logger

	mu       sync.RWMutex
	accounts map[uint32]*core.Context
}

// New loads the accounts directory, creating it with one default
// account when it does not exist yet.
func New(osName, dir string, timeouts core.Timeouts, logger *slog.Logger) (*Accounts, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := Create(osName, dir, timeouts, logger); err != nil {
			return nil, err
		}
	}
	return Open(dir, timeouts, logger)
}

// Create makes a new accounts directory with a registry and a default
// account. Any failure removes what was created.
func Create(osName, dir string, timeouts core.Timeouts, logger *slog.Logger) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create accounts directory: %w", err)
	}

	err := func() error {
		reg, err := newRegistry(osName, dir)
		if err != nil {
			return err
		}
		entry, err := reg.newAccount(dir)
		if err != nil {
			return err
		}
		ctx, err := core.New(osName, entry.Dbfile(), entry.ID, timeouts, logger)
		if err != nil {
			return fmt.Errorf("failed to create default account: %w", err)
		}
		ctx.Close()
		return nil
	}()
	if err != nil {
		os.RemoveAll(dir)
		return err
	}
	return nil
}

// Open loads an existing accounts directory. It errors when the
// directory or its registry file is missing.
func Open(dir string, timeouts core.Timeouts, logger *slog.Logger) (*Accounts, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("accounts directory does not exist: %w", err)
	}
	file := filepath.Join(dir, ConfigName)
	if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("%s does not exist: %w", ConfigName, err)
	}

	reg, err := openRegistry(file)
	if err != nil {
		return nil, err
	}

	a := &Accounts{
		dir:      dir,
		registry: reg,
		timeouts: timeouts,
		logger:   logger,
		accounts: make(map[uint32]*core.Context),
	}
	for _, entry := range reg.entries() {
		ctx, err := core.New(reg.osName(), entry.Dbfile(), entry.ID, timeouts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open account %d: %w", entry.ID, err)
		}
		a.accounts[entry.ID] = ctx
	}
	return a, nil
}

// GetAccount returns the account with the given id.
func (a *Accounts) GetAccount(id uint32) (*core.Context, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ctx, ok := a.accounts[id]
	return ctx, ok
}

// GetSelectedAccount returns the currently selected account. The
// registry guarantees a selection whenever accounts exist; a miss is
// an invariant violation.
func (a *Accounts) GetSelectedAccount() *core.Context {
	id := a.registry.selectedAccount()
	a.mu.RLock()
	defer a.mu.RUnlock()
	ctx, ok := a.accounts[id]
	if !ok {
		panic(fmt.Sprintf("accounts: inconsistent state, selected account %d not loaded", id))
	}
	return ctx
}

// SelectAccount makes the given account the selected one.
func (a *Accounts) SelectAccount(id uint32) error {
	return a.registry.selectAccount(id)
}

// GetAll returns all account ids in ascending order.
func (a *Accounts) GetAll() []uint32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]uint32, 0, len(a.accounts))
	for id := range a.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AddAccount creates a new account, selects it and returns its id.
func (a *Accounts) AddAccount() (uint32, error) {
	entry, err := a.registry.newAccount(a.dir)
	if err != nil {
		return 0, err
	}
	ctx, err := core.New(a.registry.osName(), entry.Dbfile(), entry.ID, a.timeouts, a.logger)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	a.accounts[entry.ID] = ctx
	a.mu.Unlock()
	return entry.ID, nil
}

// RemoveAccount stops the account, deletes its data directory and
// drops it from the registry. Removing an unknown id is an error.
func (a *Accounts) RemoveAccount(id uint32) error {
	a.mu.Lock()
	ctx, ok := a.accounts[id]
	delete(a.accounts, id)
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("no account with this id: %d", id)
	}

	ctx.StopIO()
	ctx.Close()

	if entry, ok := a.registry.getAccount(id); ok {
		if err := os.RemoveAll(entry.Dir); err != nil {
			return fmt.Errorf("failed to remove account data: %w", err)
		}
	}
	return a.registry.removeAccount(id)
}

// MigrateAccount moves an external database (and its blob directory)
// into a freshly created account. A failed rename rolls everything
// back, including the previous selection.
func (a *Accounts) MigrateAccount(dbfile string) (uint32, error) {
	blobdir := core.DeriveBlobdir(dbfile)
	if _, err := os.Stat(dbfile); err != nil {
		return 0, fmt.Errorf("no database found: %s", dbfile)
	}
	if _, err := os.Stat(blobdir); err != nil {
		return 0, fmt.Errorf("no blobdir found: %s", blobdir)
	}

	oldID := a.registry.selectedAccount()

	entry, err := a.registry.newAccount(a.dir)
	if err != nil {
		return 0, err
	}
	newDbfile := entry.Dbfile()
	newBlobdir := core.DeriveBlobdir(newDbfile)

	err = func() error {
		if err := os.MkdirAll(entry.Dir, 0755); err != nil {
			return err
		}
		if err := os.Rename(dbfile, newDbfile); err != nil {
			return err
		}
		return os.Rename(blobdir, newBlobdir)
	}()
	if err != nil {
		// Remove the partial account and restore the selection.
		os.RemoveAll(entry.Dir)
		if rerr := a.registry.removeAccount(entry.ID); rerr != nil {
			a.logger.Warn("failed to remove partial account", "account_id", entry.ID, "error", rerr)
		}
		if oldID != 0 {
			if serr := a.registry.selectAccount(oldID); serr != nil {
				a.logger.Warn("failed to restore selection", "account_id", oldID, "error", serr)
			}
		}
		return 0, fmt.Errorf("failed to migrate account: %w", err)
	}

	ctx, err := core.WithBlobdir(a.registry.osName(), newDbfile, newBlobdir, entry.ID, a.timeouts, a.logger)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	a.accounts[entry.ID] = ctx
	a.mu.Unlock()
	return entry.ID, nil
}

// ImportAccount restores a backup into a new account and selects it.
// A failed import removes the account again and restores the previous
// selection.
func (a *Accounts) ImportAccount(file string) (uint32, error) {
	oldID := a.registry.selectedAccount()

	id, err := a.AddAccount()
	if err != nil {
		return 0, err
	}
	ctx, ok := a.GetAccount(id)
	if !ok {
		panic("accounts: just added account is missing")
	}

	if err := imex.ImportBackup(context.Background(), ctx, file); err != nil {
		if rerr := a.RemoveAccount(id); rerr != nil {
			a.logger.Warn("failed to remove account after import failure", "account_id", id, "error", rerr)
		}
		if oldID != 0 {
			if serr := a.registry.selectAccount(oldID); serr != nil {
				a.logger.Warn("failed to restore selection", "account_id", oldID, "error", serr)
			}
		}
		return 0, err
	}
	return id, nil
}

// StartIO starts the schedulers of all accounts.
func (a *Accounts) StartIO() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, id := range a.sortedIDs() {
		a.accounts[id].StartIO()
	}
}

// StopIO stops the schedulers of all accounts.
func (a *Accounts) StopIO() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, id := range a.sortedIDs() {
		a.accounts[id].StopIO()
	}
}

// MaybeNetwork passes a network-recovery hint to all accounts.
func (a *Accounts) MaybeNetwork() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, id := range a.sortedIDs() {
		a.accounts[id].MaybeNetwork()
	}
}

// sortedIDs must be called with the lock held.
func (a *Accounts) sortedIDs() []uint32 {
	ids := make([]uint32, 0, len(a.accounts))
	for id := range a.accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetEventEmitter merges the event streams of all accounts into one.
func (a *Accounts) GetEventEmitter() *event.MergedEmitter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	emitters := make([]*event.Emitter, 0, len(a.accounts))
	for _, id := range a.sortedIDs() {
		emitters = append(emitters, a.accounts[id].Events())
	}
	return event.Merge(emitters...)
}
