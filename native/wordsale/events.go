package wordsale

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"wordsale/core/types"
	"wordsale/crypto"
)

const (
	EventTypeCommit          = "wordsale.commit"
	EventTypeBloomFilterSent = "wordsale.filter_sent"
	EventTypeSaleStarted     = "wordsale.sale_started"
	EventTypeDeposit         = "wordsale.deposit"
	EventTypeSaleAccepted    = "wordsale.sale_accepted"
	EventTypeSaleRefused     = "wordsale.sale_refused"
	EventTypeLitigiousResult = "wordsale.litigious_result"
	EventTypeWithdraw        = "wordsale.withdraw"
	EventTypeSaleCreated     = "wordsale.created"
)

// NewCreatedEvent returns the canonical payload for a newly created sale.
func NewCreatedEvent(s *Sale) *types.Event {
	attrs := saleAttrs(s)
	if s == nil {
		return &types.Event{Type: EventTypeSaleCreated, Attributes: attrs}
	}
	attrs["collateral"] = cloneBigInt(s.Collateral).String()
	attrs["timeoutSeconds"] = strconv.FormatInt(s.TimeoutSeconds, 10)
	attrs["numberOfHashes"] = strconv.FormatUint(uint64(s.NumberOfHashes), 10)
	attrs["filterSize"] = strconv.FormatUint(uint64(s.FilterSize), 10)
	return &types.Event{Type: EventTypeSaleCreated, Attributes: attrs}
}

// NewCommitEvent returns the payload emitted when a party posts collateral.
func NewCommitEvent(s *Sale, participant crypto.Address, collateral *big.Int) *types.Event {
	attrs := saleAttrs(s)
	attrs["participant"] = participant.String()
	attrs["collateral"] = cloneBigInt(collateral).String()
	return &types.Event{Type: EventTypeCommit, Attributes: attrs}
}

// NewBloomFilterSentEvent returns the payload emitted when a party registers
// their Bloom-filter commitment.
func NewBloomFilterSentEvent(s *Sale, participant crypto.Address) *types.Event {
	attrs := saleAttrs(s)
	attrs["participant"] = participant.String()
	return &types.Event{Type: EventTypeBloomFilterSent, Attributes: attrs}
}

// NewSaleStartedEvent returns the payload emitted when the buyer locks the
// sale terms and posts the sale stake.
func NewSaleStartedEvent(s *Sale, value *big.Int) *types.Event {
	attrs := saleAttrs(s)
	if s == nil {
		return &types.Event{Type: EventTypeSaleStarted, Attributes: attrs}
	}
	attrs["buyer"] = s.Buyer.String()
	attrs["value"] = cloneBigInt(value).String()
	attrs["penalty"] = cloneBigInt(s.Penalty).String()
	attrs["factor"] = strconv.FormatUint(uint64(s.FactorPercent), 10)
	return &types.Event{Type: EventTypeSaleStarted, Attributes: attrs}
}

// NewDepositEvent returns the payload emitted when the seller posts the
// penalty deposit.
func NewDepositEvent(s *Sale, participant crypto.Address, value *big.Int) *types.Event {
	attrs := saleAttrs(s)
	attrs["participant"] = participant.String()
	attrs["value"] = cloneBigInt(value).String()
	return &types.Event{Type: EventTypeDeposit, Attributes: attrs}
}

// NewSaleAcceptedEvent returns the payload emitted when the buyer accepts.
func NewSaleAcceptedEvent(s *Sale) *types.Event {
	attrs := saleAttrs(s)
	if s == nil {
		return &types.Event{Type: EventTypeSaleAccepted, Attributes: attrs}
	}
	attrs["buyer"] = s.Buyer.String()
	return &types.Event{Type: EventTypeSaleAccepted, Attributes: attrs}
}

// NewSaleRefusedEvent returns the payload emitted when the buyer disputes.
func NewSaleRefusedEvent(s *Sale) *types.Event {
	attrs := saleAttrs(s)
	if s == nil {
		return &types.Event{Type: EventTypeSaleRefused, Attributes: attrs}
	}
	attrs["buyer"] = s.Buyer.String()
	return &types.Event{Type: EventTypeSaleRefused, Attributes: attrs}
}

// NewLitigiousResultEvent returns the payload emitted when a dispute is
// resolved. Both the registered commitment and the rebuilt fingerprint are
// exposed so the verdict can be independently audited.
func NewLitigiousResultEvent(s *Sale, honest bool, registered, built *big.Int) *types.Event {
	attrs := saleAttrs(s)
	attrs["sellerHonesty"] = strconv.FormatBool(honest)
	attrs["bloomFilterRegistered"] = cloneBigInt(registered).String()
	attrs["bloomFilterBuilt"] = cloneBigInt(built).String()
	return &types.Event{Type: EventTypeLitigiousResult, Attributes: attrs}
}

// NewWithdrawEvent returns the payload emitted when a party pulls their
// accrued balance.
func NewWithdrawEvent(s *Sale, participant crypto.Address, value *big.Int) *types.Event {
	attrs := saleAttrs(s)
	attrs["participant"] = participant.String()
	attrs["value"] = cloneBigInt(value).String()
	return &types.Event{Type: EventTypeWithdraw, Attributes: attrs}
}

func saleAttrs(s *Sale) map[string]string {
	attrs := make(map[string]string)
	if s == nil {
		return attrs
	}
	attrs["id"] = hex.EncodeToString(s.ID[:])
	attrs["state"] = s.State.String()
	return attrs
}
