package wordsale

import (
	"fmt"
	"math/big"

	"wordsale/crypto"
)

// SaleState enumerates the lifecycle phases of a word sale. The machine only
// moves forward; the single branch is BuyerConfirmSale, which resolves to
// either SaleAccepted or LitigiousMode.
type SaleState uint8

const (
	BuyerCommit SaleState = iota
	SellerCommit
	BuyerSendFilter
	SellerSendFilter
	BuyerStartSale
	SellerDeposit
	BuyerConfirmSale
	SaleAccepted
	LitigiousMode
	SaleLocked
)

// Valid reports whether the state value is within the supported range.
func (s SaleState) Valid() bool { return s <= SaleLocked }

// Terminal reports whether no further phase-advancing operation is accepted.
func (s SaleState) Terminal() bool { return s == SaleAccepted || s == SaleLocked }

func (s SaleState) String() string {
	switch s {
	case BuyerCommit:
		return "buyer_commit"
	case SellerCommit:
		return "seller_commit"
	case BuyerSendFilter:
		return "buyer_send_filter"
	case SellerSendFilter:
		return "seller_send_filter"
	case BuyerStartSale:
		return "buyer_start_sale"
	case SellerDeposit:
		return "seller_deposit"
	case BuyerConfirmSale:
		return "buyer_confirm_sale"
	case SaleAccepted:
		return "sale_accepted"
	case LitigiousMode:
		return "litigious_mode"
	case SaleLocked:
		return "sale_locked"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Sale captures one escrowed word-list trade between a buyer and a seller.
// Identity, collateral terms and Bloom-filter configuration are fixed at
// creation; the penalty terms are fixed once by the buyer at startSale. The
// two filter commitments are each written at most once.
type Sale struct {
	ID             [32]byte       `json:"id"`
	Buyer          crypto.Address `json:"buyer"`
	Seller         crypto.Address `json:"seller"`
	State          SaleState      `json:"state"`
	Collateral     *big.Int       `json:"collateral"`
	TimeoutSeconds int64          `json:"timeoutSeconds"`
	NumberOfHashes uint32         `json:"numberOfHashes"`
	FilterSize     uint32         `json:"filterSize"`
	PhaseDeadline  int64          `json:"phaseDeadline"`
	FilterBuyer    *big.Int       `json:"filterBuyer,omitempty"`
	FilterSeller   *big.Int       `json:"filterSeller,omitempty"`
	Penalty        *big.Int       `json:"penalty,omitempty"`
	FactorPercent  uint32         `json:"factorPercent"`
	Forfeited      *big.Int       `json:"forfeited,omitempty"`
	CreatedAt      int64          `json:"createdAt"`
	Nonce          uint64         `json:"nonce"`
}

// Clone returns a deep copy of the sale so callers can safely mutate the copy
// without affecting the stored instance.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Collateral = cloneBigInt(s.Collateral)
	if s.FilterBuyer != nil {
		clone.FilterBuyer = new(big.Int).Set(s.FilterBuyer)
	}
	if s.FilterSeller != nil {
		clone.FilterSeller = new(big.Int).Set(s.FilterSeller)
	}
	if s.Penalty != nil {
		clone.Penalty = new(big.Int).Set(s.Penalty)
	}
	if s.Forfeited != nil {
		clone.Forfeited = new(big.Int).Set(s.Forfeited)
	}
	return &clone
}

// SanitizeSale validates the supplied sale record and returns a cloned
// instance with a non-nil collateral field. It does not mutate the original.
func SanitizeSale(s *Sale) (*Sale, error) {
	if s == nil {
		return nil, fmt.Errorf("wordsale: nil sale")
	}
	clone := s.Clone()
	if clone.Buyer.IsZero() || clone.Seller.IsZero() {
		return nil, fmt.Errorf("wordsale: buyer and seller must be set")
	}
	if clone.Buyer == clone.Seller {
		return nil, fmt.Errorf("wordsale: buyer and seller must differ")
	}
	if clone.Collateral == nil || clone.Collateral.Sign() <= 0 {
		return nil, fmt.Errorf("wordsale: collateral must be positive")
	}
	if clone.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("wordsale: timeout must be positive")
	}
	if clone.NumberOfHashes == 0 {
		return nil, fmt.Errorf("wordsale: number of hashes must be at least 1")
	}
	if clone.FilterSize < 2 {
		return nil, fmt.Errorf("wordsale: filter size must be at least 2")
	}
	if clone.FactorPercent > 100 {
		return nil, fmt.Errorf("wordsale: factor percent out of range: %d", clone.FactorPercent)
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("wordsale: invalid sale state: %d", clone.State)
	}
	return clone, nil
}

// sameTerms reports whether two sale definitions agree on every immutable
// creation-time term. Used for idempotent Create.
func sameTerms(a, b *Sale) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Buyer == b.Buyer &&
		a.Seller == b.Seller &&
		a.Collateral.Cmp(b.Collateral) == 0 &&
		a.TimeoutSeconds == b.TimeoutSeconds &&
		a.NumberOfHashes == b.NumberOfHashes &&
		a.FilterSize == b.FilterSize &&
		a.Nonce == b.Nonce
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
