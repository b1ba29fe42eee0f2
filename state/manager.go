// Package state persists sale records, participant accounts and the
// pull-payment ledger over a storage.Database. It is the backend the sale
// engine is wired to in the daemon; tests typically run it over storage.MemDB.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"wordsale/core/types"
	"wordsale/crypto"
	"wordsale/native/wordsale"
	"wordsale/storage"
)

const (
	salePrefix         = "sale/"
	accountPrefix      = "acct/"
	lockedPrefix       = "lock/"
	withdrawablePrefix = "wd/"
)

// vaultSeed derives the module vault account that holds every locked stake.
var vaultSeed = []byte("wordsale/vault")

// Manager stores all durable sale state. Records are JSON-encoded under
// prefixed keys; balances are decimal strings.
type Manager struct {
	db storage.Database
}

// NewManager wraps a database in a sale state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func saleKey(id [32]byte) []byte {
	return append([]byte(salePrefix), fmt.Sprintf("%x", id)...)
}

func accountKey(addr crypto.Address) []byte {
	return append([]byte(accountPrefix), fmt.Sprintf("%x", addr)...)
}

func lockedKey(id [32]byte) []byte {
	return append([]byte(lockedPrefix), fmt.Sprintf("%x", id)...)
}

func withdrawableKey(id [32]byte, addr crypto.Address) []byte {
	return append([]byte(withdrawablePrefix), fmt.Sprintf("%x/%x", id, addr)...)
}

// SalePut validates and persists a sale record.
func (m *Manager) SalePut(s *wordsale.Sale) error {
	sanitized, err := wordsale.SanitizeSale(s)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(sanitized)
	if err != nil {
		return err
	}
	return m.db.Put(saleKey(sanitized.ID), raw)
}

// SaleGet loads a sale record.
func (m *Manager) SaleGet(id [32]byte) (*wordsale.Sale, bool) {
	raw, err := m.db.Get(saleKey(id))
	if err != nil {
		return nil, false
	}
	var s wordsale.Sale
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// ListSales returns every stored sale, in key order.
func (m *Manager) ListSales() ([]*wordsale.Sale, error) {
	var sales []*wordsale.Sale
	err := m.db.IteratePrefix([]byte(salePrefix), func(key, value []byte) bool {
		var s wordsale.Sale
		if err := json.Unmarshal(value, &s); err == nil {
			sales = append(sales, &s)
		}
		return true
	})
	return sales, err
}

// SaleCredit adds to the sale's locked vault balance.
func (m *Manager) SaleCredit(id [32]byte, amt *big.Int) error {
	cur, err := m.readAmount(lockedKey(id))
	if err != nil {
		return err
	}
	return m.writeAmount(lockedKey(id), new(big.Int).Add(cur, amt))
}

// SaleDebit removes from the sale's locked vault balance; underflow rejects.
func (m *Manager) SaleDebit(id [32]byte, amt *big.Int) error {
	cur, err := m.readAmount(lockedKey(id))
	if err != nil {
		return err
	}
	if cur.Cmp(amt) < 0 {
		return fmt.Errorf("state: sale %x vault underflow: %v < %v", id, cur, amt)
	}
	return m.writeAmount(lockedKey(id), new(big.Int).Sub(cur, amt))
}

// SaleLocked returns the sale's currently locked vault balance.
func (m *Manager) SaleLocked(id [32]byte) (*big.Int, error) {
	return m.readAmount(lockedKey(id))
}

// SaleVaultAddress returns the module account that holds locked stakes.
func (m *Manager) SaleVaultAddress() crypto.Address {
	return crypto.BytesToAddress(ethcrypto.Keccak256(vaultSeed))
}

// WithdrawableGet returns a party's claimable balance for the sale.
func (m *Manager) WithdrawableGet(id [32]byte, addr crypto.Address) (*big.Int, error) {
	return m.readAmount(withdrawableKey(id, addr))
}

// WithdrawableSet overwrites a party's claimable balance for the sale.
func (m *Manager) WithdrawableSet(id [32]byte, addr crypto.Address, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: withdrawable must be non-negative")
	}
	return m.writeAmount(withdrawableKey(id, addr), amt)
}

// GetAccount loads a participant account, returning a zeroed account when the
// address has never been seen.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	var acc types.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, err
	}
	return types.EnsureAccount(&acc), nil
}

// PutAccount persists a participant account.
func (m *Manager) PutAccount(addr crypto.Address, acc *types.Account) error {
	raw, err := json.Marshal(types.EnsureAccount(acc))
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), raw)
}

// Credit adds funds to an account. The daemon's dev faucet uses it; in a real
// deployment funding would come from the hosting ledger.
func (m *Manager) Credit(addr crypto.Address, amt *big.Int) error {
	if amt == nil || amt.Sign() <= 0 {
		return fmt.Errorf("state: credit must be positive")
	}
	acc, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amt)
	return m.PutAccount(addr, acc)
}

func (m *Manager) readAmount(key []byte) (*big.Int, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	amt, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state: corrupt amount under %q", key)
	}
	return amt, nil
}

func (m *Manager) writeAmount(key []byte, amt *big.Int) error {
	return m.db.Put(key, []byte(amt.String()))
}
