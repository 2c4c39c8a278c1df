package intercessor

import (
	"encoding/hex"
	"strconv"

	"intercessor/core/types"
)

const (
	EventTypeParticipantAdded = "intercessor.participant.added"
	EventTypeTradeCreated     = "intercessor.trade.created"
	EventTypeTradeSwapped     = "intercessor.trade.swapped"
	EventTypeTradeCancelled   = "intercessor.trade.cancelled"
)

type engineEvent struct {
	evt *types.Event
}

func (e engineEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e engineEvent) Event() *types.Event { return e.evt }

// NewParticipantAddedEvent returns the canonical payload emitted when an
// identity is admitted to the registry.
func NewParticipantAddedEvent(identity [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeParticipantAdded,
		Attributes: map[string]string{
			"identity": hex.EncodeToString(identity[:]),
		},
	}
}

// NewTradeCreatedEvent returns the canonical payload for a newly registered
// trade intent.
func NewTradeCreatedEvent(t *TradeIntent) *types.Event {
	return newIntentEvent(EventTypeTradeCreated, t)
}

// NewTradeSwappedEvent returns the canonical payload emitted once both legs
// have moved atomically.
func NewTradeSwappedEvent(t *TradeIntent) *types.Event {
	return newIntentEvent(EventTypeTradeSwapped, t)
}

// NewTradeCancelledEvent returns the canonical payload emitted when the
// initiator withdraws a pending intent.
func NewTradeCancelledEvent(t *TradeIntent) *types.Event {
	return newIntentEvent(EventTypeTradeCancelled, t)
}

func newIntentEvent(eventType string, t *TradeIntent) *types.Event {
	attrs := make(map[string]string)
	if t == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeIntent(t)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["tradeId"] = sanitized.TradeID
	attrs["key"] = hex.EncodeToString(sanitized.Key[:])
	attrs["initiator"] = hex.EncodeToString(sanitized.Initiator[:])
	attrs["baseCounterparty"] = hex.EncodeToString(sanitized.Base.Counterparty[:])
	attrs["baseAmount"] = sanitized.Base.Amount.String()
	attrs["baseAsset"] = sanitized.Base.Asset.String()
	attrs["termCounterparty"] = hex.EncodeToString(sanitized.Term.Counterparty[:])
	attrs["termAmount"] = sanitized.Term.Amount.String()
	attrs["termAsset"] = sanitized.Term.Asset.String()
	attrs["createdAt"] = strconv.FormatInt(sanitized.CreatedAt, 10)
	attrs["status"] = strconv.FormatUint(uint64(sanitized.Status), 10)
	if sanitized.EscrowedNative != nil {
		attrs["escrowedNative"] = sanitized.EscrowedNative.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
