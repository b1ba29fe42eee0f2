package wordsale

import (
	"fmt"
	"math/big"

	"wordsale/core/types"
	"wordsale/crypto"
)

// Value movement. All funds a sale ever holds enter through collectPayment
// (caller account -> vault, tracked against the sale's locked balance) and
// leave through Withdraw (vault -> caller account, via the pull-payment
// ledger). Credits to the withdrawable ledger only ever reclassify funds that
// are already locked in the vault, so at every point the vault balance equals
// the sum of withdrawables plus the stakes still at risk.

// transferValue moves balance between two accounts.
func (e *Engine) transferValue(from, to crypto.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("wordsale: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	toAcc = types.EnsureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: %s has %v, needs %v", ErrInsufficientFunds, from, fromAcc.Balance, amt)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to, toAcc)
}

// collectPayment pulls an exact-match payment from the caller into the sale
// vault and records it against the sale's locked balance.
func (e *Engine) collectPayment(s *Sale, from crypto.Address, amount *big.Int) error {
	if err := e.transferValue(from, e.state.SaleVaultAddress(), amount); err != nil {
		return err
	}
	return e.state.SaleCredit(s.ID, amount)
}

// creditWithdrawable accrues already-locked vault funds to a party's
// pull-payment balance.
func (e *Engine) creditWithdrawable(id [32]byte, addr crypto.Address, amount *big.Int) error {
	current, err := e.state.WithdrawableGet(id, addr)
	if err != nil {
		return err
	}
	return e.state.WithdrawableSet(id, addr, new(big.Int).Add(cloneBigInt(current), cloneBigInt(amount)))
}

// Withdrawable returns a party's currently claimable balance for the sale.
func (e *Engine) Withdrawable(id [32]byte, addr crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	amount, err := e.state.WithdrawableGet(id, addr)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(amount), nil
}

// Withdraw pays out the caller's entire accrued balance for the sale. The
// balance is zeroed before the transfer is made and a zero balance rejects.
// Withdraw is never deadline-gated and stays callable in terminal phases.
func (e *Engine) Withdraw(id [32]byte, caller crypto.Address) (*big.Int, error) {
	s, err := e.loadSale(id)
	if err != nil {
		return nil, err
	}
	if caller != s.Buyer && caller != s.Seller {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	amount, err := e.state.WithdrawableGet(id, caller)
	if err != nil {
		return nil, err
	}
	amount = cloneBigInt(amount)
	if amount.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	if err := e.state.WithdrawableSet(id, caller, big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := e.state.SaleDebit(id, amount); err != nil {
		return nil, err
	}
	if err := e.transferValue(e.state.SaleVaultAddress(), caller, amount); err != nil {
		return nil, err
	}
	e.emit(NewWithdrawEvent(s, caller, amount))
	return amount, nil
}
