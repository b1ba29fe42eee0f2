package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"wordsale/crypto"
	"wordsale/native/wordsale"
	"wordsale/storage"
)

func testAddress(fill byte) crypto.Address {
	var addr crypto.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func testSale(nonce uint64) *wordsale.Sale {
	buyer := testAddress(0x01)
	seller := testAddress(0x02)
	return &wordsale.Sale{
		ID:             wordsale.SaleID(buyer, seller, nonce),
		Buyer:          buyer,
		Seller:         seller,
		Collateral:     big.NewInt(1000),
		TimeoutSeconds: 1440,
		NumberOfHashes: 3,
		FilterSize:     256,
		PhaseDeadline:  2000,
		CreatedAt:      560,
		Nonce:          nonce,
	}
}

func TestSaleRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	s := testSale(1)
	s.FilterSeller = wordsale.BuildFilter([]string{"i", "dont", "know"}, 3, 256)
	s.Penalty = big.NewInt(2000)
	s.FactorPercent = 30
	require.NoError(t, m.SalePut(s))

	loaded, ok := m.SaleGet(s.ID)
	require.True(t, ok)
	require.Equal(t, s.Buyer, loaded.Buyer)
	require.Equal(t, s.Seller, loaded.Seller)
	require.Zero(t, loaded.Collateral.Cmp(s.Collateral))
	require.Zero(t, loaded.FilterSeller.Cmp(s.FilterSeller))
	require.Zero(t, loaded.Penalty.Cmp(s.Penalty))
	require.Nil(t, loaded.FilterBuyer)
	require.Equal(t, s.PhaseDeadline, loaded.PhaseDeadline)

	_, ok = m.SaleGet([32]byte{0xFF})
	require.False(t, ok)
}

func TestSalePutRejectsInvalid(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	s := testSale(1)
	s.Collateral = big.NewInt(0)
	require.Error(t, m.SalePut(s))
}

func TestListSales(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.SalePut(testSale(1)))
	require.NoError(t, m.SalePut(testSale(2)))

	sales, err := m.ListSales()
	require.NoError(t, err)
	require.Len(t, sales, 2)
}

func TestVaultAccounting(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	id := wordsale.SaleID(testAddress(0x01), testAddress(0x02), 1)

	locked, err := m.SaleLocked(id)
	require.NoError(t, err)
	require.Zero(t, locked.Sign())

	require.NoError(t, m.SaleCredit(id, big.NewInt(1000)))
	require.NoError(t, m.SaleCredit(id, big.NewInt(2000)))
	locked, err = m.SaleLocked(id)
	require.NoError(t, err)
	require.Zero(t, locked.Cmp(big.NewInt(3000)))

	require.NoError(t, m.SaleDebit(id, big.NewInt(2500)))
	require.Error(t, m.SaleDebit(id, big.NewInt(501)), "underflow must reject")
}

func TestWithdrawableLedger(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	id := wordsale.SaleID(testAddress(0x01), testAddress(0x02), 1)
	addr := testAddress(0x01)

	amt, err := m.WithdrawableGet(id, addr)
	require.NoError(t, err)
	require.Zero(t, amt.Sign())

	require.NoError(t, m.WithdrawableSet(id, addr, big.NewInt(1400)))
	amt, err = m.WithdrawableGet(id, addr)
	require.NoError(t, err)
	require.Zero(t, amt.Cmp(big.NewInt(1400)))

	require.Error(t, m.WithdrawableSet(id, addr, big.NewInt(-1)))
}

func TestAccountsAndCredit(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	addr := testAddress(0x05)

	acc, err := m.GetAccount(addr)
	require.NoError(t, err)
	require.Zero(t, acc.Balance.Sign())

	require.NoError(t, m.Credit(addr, big.NewInt(10_000)))
	acc, err = m.GetAccount(addr)
	require.NoError(t, err)
	require.Zero(t, acc.Balance.Cmp(big.NewInt(10_000)))

	require.Error(t, m.Credit(addr, big.NewInt(0)))
	require.False(t, m.SaleVaultAddress().IsZero())
}

// The manager must satisfy the engine's backend contract end to end.
func TestManagerDrivesEngine(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	engine := wordsale.NewEngine()
	engine.SetState(m)
	now := int64(1_000_000)
	engine.SetNowFunc(func() int64 { return now })

	buyer := testAddress(0x01)
	seller := testAddress(0x02)
	require.NoError(t, m.Credit(buyer, big.NewInt(5000)))
	require.NoError(t, m.Credit(seller, big.NewInt(5000)))

	sale, err := engine.Create(buyer, seller, big.NewInt(1000), 1440, 3, 256, 1)
	require.NoError(t, err)
	require.NoError(t, engine.CommitCollateral(sale.ID, buyer, big.NewInt(1000)))
	require.NoError(t, engine.CommitCollateral(sale.ID, seller, big.NewInt(1000)))
	require.NoError(t, engine.SendBloomFilter(sale.ID, buyer, wordsale.BuildFilter([]string{"hey"}, 3, 256)))
	require.NoError(t, engine.SendBloomFilter(sale.ID, seller, wordsale.BuildFilter([]string{"i", "dont", "know"}, 3, 256)))

	amt, err := engine.Withdraw(sale.ID, buyer)
	require.NoError(t, err)
	require.Zero(t, amt.Cmp(big.NewInt(1000)))

	acc, err := m.GetAccount(buyer)
	require.NoError(t, err)
	require.Zero(t, acc.Balance.Cmp(big.NewInt(5000)))
}
