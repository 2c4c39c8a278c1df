package intercessor

import (
	"math/big"
	"testing"
)

func validIntent() *TradeIntent {
	return &TradeIntent{
		Key:       TradeKey("tid-types"),
		TradeID:   "tid-types",
		Initiator: newTestAddress(0x01),
		Base:      Leg{Counterparty: newTestAddress(0x01), Amount: big.NewInt(25), Asset: FungibleAsset("usdc")},
		Term:      Leg{Counterparty: newTestAddress(0x02), Amount: big.NewInt(30), Asset: FungibleAsset("dai")},
		CreatedAt: 1000,
		Status:    IntentPending,
	}
}

func TestSanitizeIntentNormalizesAssets(t *testing.T) {
	sanitized, err := SanitizeIntent(validIntent())
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.Base.Asset.Symbol != "USDC" || sanitized.Term.Asset.Symbol != "DAI" {
		t.Fatalf("expected uppercase symbols, got %s / %s", sanitized.Base.Asset.Symbol, sanitized.Term.Asset.Symbol)
	}
}

func TestSanitizeIntentRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TradeIntent)
	}{
		{"empty trade id", func(i *TradeIntent) { i.TradeID = "  " }},
		{"zero base amount", func(i *TradeIntent) { i.Base.Amount = big.NewInt(0) }},
		{"negative term amount", func(i *TradeIntent) { i.Term.Amount = big.NewInt(-1) }},
		{"same counterparties", func(i *TradeIntent) { i.Term.Counterparty = i.Base.Counterparty }},
		{"empty asset symbol", func(i *TradeIntent) { i.Base.Asset = FungibleAsset("  ") }},
		{"invalid status", func(i *TradeIntent) { i.Status = IntentStatus(9) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := validIntent()
			tc.mutate(intent)
			if _, err := SanitizeIntent(intent); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	intent := validIntent()
	intent.EscrowedNative = big.NewInt(7)
	clone := intent.Clone()
	clone.Base.Amount.SetInt64(99)
	clone.EscrowedNative.SetInt64(99)
	if intent.Base.Amount.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("clone shares base amount")
	}
	if intent.EscrowedNative.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("clone shares escrowed amount")
	}
}

func TestTradeKeyTrimsIdentifier(t *testing.T) {
	if TradeKey("tid-1") != TradeKey("  tid-1  ") {
		t.Fatalf("trade key must ignore surrounding whitespace")
	}
	if TradeKey("tid-1") == TradeKey("tid-2") {
		t.Fatalf("distinct identifiers must map to distinct keys")
	}
}

func TestLegEqual(t *testing.T) {
	a := Leg{Counterparty: newTestAddress(0x01), Amount: big.NewInt(25), Asset: FungibleAsset("USDC")}
	b := Leg{Counterparty: newTestAddress(0x01), Amount: big.NewInt(25), Asset: FungibleAsset("USDC")}
	if !a.Equal(b) {
		t.Fatalf("identical legs must compare equal")
	}
	b.Amount = big.NewInt(26)
	if a.Equal(b) {
		t.Fatalf("different amounts must not compare equal")
	}
}
