package wordsale

import stderrors "errors"

// Rejection taxonomy. Every failed operation aborts atomically with one of
// these wrapped in context; no partial effect is ever observable.
var (
	ErrWrongPhase        = stderrors.New("wordsale: operation not allowed in current phase")
	ErrUnauthorized      = stderrors.New("wordsale: caller is not the authorized party")
	ErrDeadlineExceeded  = stderrors.New("wordsale: phase deadline elapsed")
	ErrBadPayment        = stderrors.New("wordsale: payment does not match required amount")
	ErrAlreadySet        = stderrors.New("wordsale: commitment already set")
	ErrSaleNotFound      = stderrors.New("wordsale: sale not found")
	ErrSaleExists        = stderrors.New("wordsale: sale already exists with different terms")
	ErrNothingToWithdraw = stderrors.New("wordsale: nothing to withdraw")
	ErrInsufficientFunds = stderrors.New("wordsale: insufficient account balance")
)
