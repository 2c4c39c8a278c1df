package intercessor

import (
	"encoding/hex"
	"math/big"
	"testing"
)

func TestNewParticipantAddedEvent(t *testing.T) {
	identity := newTestAddress(0x0A)
	evt := NewParticipantAddedEvent(identity)
	if evt.Type != EventTypeParticipantAdded {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["identity"] != hex.EncodeToString(identity[:]) {
		t.Fatalf("identity attribute mismatch")
	}
}

func TestIntentEventAttributes(t *testing.T) {
	intent := validIntent()
	intent.EscrowedNative = big.NewInt(42)
	evt := NewTradeCreatedEvent(intent)
	if evt.Type != EventTypeTradeCreated {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	attrs := evt.Attributes
	if attrs["tradeId"] != "tid-types" {
		t.Fatalf("tradeId mismatch: %s", attrs["tradeId"])
	}
	if attrs["baseAmount"] != "25" || attrs["termAmount"] != "30" {
		t.Fatalf("amount attributes mismatch: %s / %s", attrs["baseAmount"], attrs["termAmount"])
	}
	if attrs["baseAsset"] != "USDC" || attrs["termAsset"] != "DAI" {
		t.Fatalf("asset attributes mismatch: %s / %s", attrs["baseAsset"], attrs["termAsset"])
	}
	if attrs["escrowedNative"] != "42" {
		t.Fatalf("escrowedNative mismatch: %s", attrs["escrowedNative"])
	}
}

func TestIntentEventNilPayload(t *testing.T) {
	evt := NewTradeSwappedEvent(nil)
	if evt.Type != EventTypeTradeSwapped {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if len(evt.Attributes) != 0 {
		t.Fatalf("nil intent must produce empty attributes")
	}
}
