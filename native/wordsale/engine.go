package wordsale

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"wordsale/core/events"
	"wordsale/core/types"
	"wordsale/crypto"
)

var errNilState = errors.New("wordsale engine: state not configured")

// engineState is the backend the engine needs from its host: sale records,
// the per-sale vault balance, the pull-payment withdrawable ledger, and the
// participant accounts value is debited from and credited to.
type engineState interface {
	SalePut(*Sale) error
	SaleGet(id [32]byte) (*Sale, bool)
	SaleCredit(id [32]byte, amt *big.Int) error
	SaleDebit(id [32]byte, amt *big.Int) error
	SaleVaultAddress() crypto.Address
	WithdrawableGet(id [32]byte, addr crypto.Address) (*big.Int, error)
	WithdrawableSet(id [32]byte, addr crypto.Address, amt *big.Int) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

type saleEvent struct {
	evt *types.Event
}

func (e saleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e saleEvent) Event() *types.Event { return e.evt }

// Engine owns the sale state machine: it validates phase, caller, deadline and
// payment for every operation, moves value through the vault and the
// withdrawable ledger, and resolves disputes against the stored commitment.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a sale engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deadline checks. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(saleEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// SaleID derives the deterministic identifier for a trade between the two
// parties under the given nonce.
func SaleID(buyer, seller crypto.Address, nonce uint64) [32]byte {
	var n [8]byte
	for i := 0; i < 8; i++ {
		n[7-i] = byte(nonce >> (8 * i))
	}
	return ethcrypto.Keccak256Hash(buyer.Bytes(), seller.Bytes(), n[:])
}

func (e *Engine) loadSale(id [32]byte) (*Sale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sale, ok := e.state.SaleGet(id)
	if !ok {
		return nil, ErrSaleNotFound
	}
	return sale, nil
}

// gate runs the common validation sequence for a phase-gated operation:
// current phase, authorized caller, then deadline. Order matters and matches
// the rejection taxonomy.
func (e *Engine) gate(s *Sale, phase SaleState, party, caller crypto.Address) error {
	if s.State != phase {
		return fmt.Errorf("%w: in %s", ErrWrongPhase, s.State)
	}
	if caller != party {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if e.now() > s.PhaseDeadline {
		return fmt.Errorf("%w: deadline %d", ErrDeadlineExceeded, s.PhaseDeadline)
	}
	return nil
}

func checkPayment(value, required *big.Int) error {
	if value == nil || required == nil || value.Cmp(required) != 0 {
		return fmt.Errorf("%w: got %v, want %v", ErrBadPayment, value, required)
	}
	return nil
}

// advance moves the sale into the next phase and, for phases that still
// require a party's action, restarts the deadline clock.
func (e *Engine) advance(s *Sale, next SaleState) {
	s.State = next
	if !next.Terminal() {
		s.PhaseDeadline = e.now() + s.TimeoutSeconds
	}
}

// Create initialises and persists a new sale in the BuyerCommit phase. The
// call is idempotent for an identical definition and rejects a redefinition
// under the same identifier.
func (e *Engine) Create(buyer, seller crypto.Address, collateral *big.Int, timeoutSeconds int64, numberOfHashes, filterSize uint32, nonce uint64) (*Sale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	now := e.now()
	sale := &Sale{
		ID:             SaleID(buyer, seller, nonce),
		Buyer:          buyer,
		Seller:         seller,
		State:          BuyerCommit,
		Collateral:     cloneBigInt(collateral),
		TimeoutSeconds: timeoutSeconds,
		NumberOfHashes: numberOfHashes,
		FilterSize:     filterSize,
		PhaseDeadline:  now + timeoutSeconds,
		CreatedAt:      now,
		Nonce:          nonce,
	}
	sanitized, err := SanitizeSale(sale)
	if err != nil {
		return nil, err
	}
	if existing, ok := e.state.SaleGet(sanitized.ID); ok {
		if !sameTerms(existing, sanitized) {
			return nil, fmt.Errorf("%w: id %x", ErrSaleExists, sanitized.ID)
		}
		return existing, nil
	}
	if err := e.state.SalePut(sanitized); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(sanitized))
	return sanitized.Clone(), nil
}

// Get returns the sale with the given identifier.
func (e *Engine) Get(id [32]byte) (*Sale, error) {
	return e.loadSale(id)
}

// CommitCollateral posts a party's initial stake: the buyer's in BuyerCommit,
// the seller's in SellerCommit. The payment must equal the sale's collateral
// exactly.
func (e *Engine) CommitCollateral(id [32]byte, caller crypto.Address, value *big.Int) error {
	s, err := e.loadSale(id)
	if err != nil {
		return err
	}
	var party crypto.Address
	var next SaleState
	switch s.State {
	case BuyerCommit:
		party, next = s.Buyer, SellerCommit
	case SellerCommit:
		party, next = s.Seller, BuyerSendFilter
	default:
		return fmt.Errorf("%w: in %s", ErrWrongPhase, s.State)
	}
	if err := e.gate(s, s.State, party, caller); err != nil {
		return err
	}
	if err := checkPayment(value, s.Collateral); err != nil {
		return err
	}
	if err := e.collectPayment(s, caller, value); err != nil {
		return err
	}
	e.advance(s, next)
	if err := e.state.SalePut(s); err != nil {
		return err
	}
	e.emit(NewCommitEvent(s, caller, value))
	return nil
}

// SendBloomFilter registers a party's one-shot Bloom-filter commitment: the
// buyer's in BuyerSendFilter, the seller's in SellerSendFilter. Once the
// seller's filter lands both initial collaterals become withdrawable, the
// escape hatch out of a sale neither side wants to pursue.
func (e *Engine) SendBloomFilter(id [32]byte, caller crypto.Address, filter *big.Int) error {
	s, err := e.loadSale(id)
	if err != nil {
		return err
	}
	var party crypto.Address
	var next SaleState
	var slot **big.Int
	switch s.State {
	case BuyerSendFilter:
		party, next, slot = s.Buyer, SellerSendFilter, &s.FilterBuyer
	case SellerSendFilter:
		party, next, slot = s.Seller, BuyerStartSale, &s.FilterSeller
	default:
		return fmt.Errorf("%w: in %s", ErrWrongPhase, s.State)
	}
	if err := e.gate(s, s.State, party, caller); err != nil {
		return err
	}
	if *slot != nil {
		return fmt.Errorf("%w: %s", ErrAlreadySet, caller)
	}
	if !fitsFilter(filter, s.FilterSize) {
		return fmt.Errorf("wordsale: filter does not fit %d bits", s.FilterSize)
	}
	*slot = new(big.Int).Set(filter)
	if next == BuyerStartSale {
		if err := e.creditWithdrawable(s.ID, s.Buyer, s.Collateral); err != nil {
			return err
		}
		if err := e.creditWithdrawable(s.ID, s.Seller, s.Collateral); err != nil {
			return err
		}
	}
	e.advance(s, next)
	if err := e.state.SalePut(s); err != nil {
		return err
	}
	e.emit(NewBloomFilterSentEvent(s, caller))
	return nil
}

// StartSale locks the sale terms: the buyer fixes the penalty and factor and
// posts a fresh stake equal to the collateral.
func (e *Engine) StartSale(id [32]byte, caller crypto.Address, penalty *big.Int, factorPercent uint32, value *big.Int) error {
	s, err := e.loadSale(id)
	if err != nil {
		return err
	}
	if err := e.gate(s, BuyerStartSale, s.Buyer, caller); err != nil {
		return err
	}
	if penalty == nil || penalty.Sign() <= 0 {
		return fmt.Errorf("wordsale: penalty must be positive")
	}
	if factorPercent > 100 {
		return fmt.Errorf("wordsale: factor percent out of range: %d", factorPercent)
	}
	if err := checkPayment(value, s.Collateral); err != nil {
		return err
	}
	if err := e.collectPayment(s, caller, value); err != nil {
		return err
	}
	s.Penalty = new(big.Int).Set(penalty)
	s.FactorPercent = factorPercent
	e.advance(s, SellerDeposit)
	if err := e.state.SalePut(s); err != nil {
		return err
	}
	e.emit(NewSaleStartedEvent(s, value))
	return nil
}

// Deposit posts the seller's penalty stake. The payment must equal the
// penalty fixed at startSale exactly.
func (e *Engine) Deposit(id [32]byte, caller crypto.Address, value *big.Int) error {
	s, err := e.loadSale(id)
	if err != nil {
		return err
	}
	if err := e.gate(s, SellerDeposit, s.Seller, caller); err != nil {
		return err
	}
	if err := checkPayment(value, s.Penalty); err != nil {
		return err
	}
	if err := e.collectPayment(s, caller, value); err != nil {
		return err
	}
	e.advance(s, BuyerConfirmSale)
	if err := e.state.SalePut(s); err != nil {
		return err
	}
	e.emit(NewDepositEvent(s, caller, value))
	return nil
}

// AcceptSale settles the trade in the seller's favour: the buyer's sale stake
// and the penalty deposit accrue to the seller's withdrawable balance. The
// seller's own initial collateral was already credited by the escape hatch.
func (e *Engine) AcceptSale(id [32]byte, caller crypto.Address) error {
	s, err := e.loadSale(id)
	if err != nil {
		return err
	}
	if err := e.gate(s, BuyerConfirmSale, s.Buyer, caller); err != nil {
		return err
	}
	payout := new(big.Int).Add(s.Collateral, s.Penalty)
	if err := e.creditWithdrawable(s.ID, s.Seller, payout); err != nil {
		return err
	}
	e.advance(s, SaleAccepted)
	if err := e.state.SalePut(s); err != nil {
		return err
	}
	e.emit(NewSaleAcceptedEvent(s))
	return nil
}

// RefuseSale enters the dispute phase. The seller must now reveal the word
// set behind their commitment before the deadline.
func (e *Engine) RefuseSale(id [32]byte, caller crypto.Address) error {
	s, err := e.loadSale(id)
	if err != nil {
		return err
	}
	if err := e.gate(s, BuyerConfirmSale, s.Buyer, caller); err != nil {
		return err
	}
	e.advance(s, LitigiousMode)
	if err := e.state.SalePut(s); err != nil {
		return err
	}
	e.emit(NewSaleRefusedEvent(s))
	return nil
}

// SendWords resolves the dispute. The fingerprint is rebuilt from the revealed
// words with the sale's own codec parameters and compared bit-exactly to the
// seller's registered commitment; the asymmetric settlement then follows the
// verdict. Honest seller: the buyer's sale stake plus the penalty less the
// factor deduction accrue to the seller; the deduction stays locked. Dishonest
// seller: the buyer recovers their stake plus the full penalty and the
// seller's deposit is forfeited.
func (e *Engine) SendWords(id [32]byte, caller crypto.Address, words []string) error {
	s, err := e.loadSale(id)
	if err != nil {
		return err
	}
	if err := e.gate(s, LitigiousMode, s.Seller, caller); err != nil {
		return err
	}
	registered := cloneBigInt(s.FilterSeller)
	built := BuildFilter(words, s.NumberOfHashes, s.FilterSize)
	honest := s.FilterSeller != nil && registered.Cmp(built) == 0
	if honest {
		factorAmount := new(big.Int).Mul(s.Penalty, new(big.Int).SetUint64(uint64(s.FactorPercent)))
		factorAmount.Div(factorAmount, big.NewInt(100))
		penaltyReturn := new(big.Int).Sub(s.Penalty, factorAmount)
		payout := new(big.Int).Add(s.Collateral, penaltyReturn)
		if err := e.creditWithdrawable(s.ID, s.Seller, payout); err != nil {
			return err
		}
		s.Forfeited = factorAmount
	} else {
		payout := new(big.Int).Add(s.Collateral, s.Penalty)
		if err := e.creditWithdrawable(s.ID, s.Buyer, payout); err != nil {
			return err
		}
		s.Forfeited = big.NewInt(0)
	}
	e.advance(s, SaleLocked)
	if err := e.state.SalePut(s); err != nil {
		return err
	}
	e.emit(NewLitigiousResultEvent(s, honest, registered, built))
	return nil
}

