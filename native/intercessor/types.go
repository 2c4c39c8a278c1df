package intercessor

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AssetKind discriminates the two asset forms a trade leg can carry.
type AssetKind uint8

const (
	AssetFungible AssetKind = iota
	AssetNative
)

// AssetRef identifies the asset moved by a trade leg: a fungible token symbol
// or the native currency. Immutable once constructed.
type AssetRef struct {
	Kind   AssetKind
	Symbol string
}

// FungibleAsset constructs a reference to an external fungible token.
func FungibleAsset(symbol string) AssetRef {
	return AssetRef{Kind: AssetFungible, Symbol: symbol}
}

// NativeAsset constructs a reference to the intrinsic currency.
func NativeAsset() AssetRef {
	return AssetRef{Kind: AssetNative}
}

// IsNative reports whether the reference points at the native currency.
func (a AssetRef) IsNative() bool { return a.Kind == AssetNative }

func (a AssetRef) String() string {
	if a.Kind == AssetNative {
		return "NATIVE"
	}
	return a.Symbol
}

// NormalizeAsset canonicalises the asset reference, uppercasing fungible
// symbols and rejecting empty ones.
func NormalizeAsset(a AssetRef) (AssetRef, error) {
	switch a.Kind {
	case AssetNative:
		return AssetRef{Kind: AssetNative}, nil
	case AssetFungible:
		trimmed := strings.ToUpper(strings.TrimSpace(a.Symbol))
		if trimmed == "" {
			return AssetRef{}, fmt.Errorf("intercessor: empty asset symbol")
		}
		return AssetRef{Kind: AssetFungible, Symbol: trimmed}, nil
	default:
		return AssetRef{}, fmt.Errorf("intercessor: invalid asset kind %d", a.Kind)
	}
}

// IntentStatus represents the lifecycle phases of a trade intent. Settled and
// cancelled entries are removed from the ledger; those statuses survive only
// on returned copies and event payloads.
type IntentStatus uint8

const (
	IntentPending IntentStatus = iota
	IntentSettled
	IntentCancelled
)

// String returns the lowercase status name.
func (s IntentStatus) String() string {
	switch s {
	case IntentPending:
		return "pending"
	case IntentSettled:
		return "settled"
	case IntentCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Valid reports whether the status value is supported.
func (s IntentStatus) Valid() bool {
	switch s {
	case IntentPending, IntentSettled, IntentCancelled:
		return true
	default:
		return false
	}
}

// Leg captures one side of the exchange: who gives, how much, and of what.
type Leg struct {
	Counterparty [20]byte
	Amount       *big.Int
	Asset        AssetRef
}

func (l Leg) clone() Leg {
	out := l
	if l.Amount != nil {
		out.Amount = new(big.Int).Set(l.Amount)
	} else {
		out.Amount = big.NewInt(0)
	}
	return out
}

// Equal reports whether two legs agree on counterparty, amount and asset.
func (l Leg) Equal(other Leg) bool {
	if l.Counterparty != other.Counterparty {
		return false
	}
	if l.Asset != other.Asset {
		return false
	}
	if l.Amount == nil || other.Amount == nil {
		return l.Amount == other.Amount
	}
	return l.Amount.Cmp(other.Amount) == 0
}

// TradeIntent is the unit of exchange proposal. The ledger key is derived
// from the caller-chosen trade identifier so both counterparties address the
// same entry without coordinating on anything but the identifier itself.
type TradeIntent struct {
	Key            [32]byte
	TradeID        string
	Initiator      [20]byte
	Base           Leg
	Term           Leg
	EscrowedNative *big.Int
	CreatedAt      int64
	Status         IntentStatus
}

// TradeKey derives the ledger key for a trade identifier.
func TradeKey(tradeID string) [32]byte {
	return ethcrypto.Keccak256Hash([]byte(strings.TrimSpace(tradeID)))
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the stored instance.
func (t *TradeIntent) Clone() *TradeIntent {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Base = t.Base.clone()
	clone.Term = t.Term.clone()
	if t.EscrowedNative != nil {
		clone.EscrowedNative = new(big.Int).Set(t.EscrowedNative)
	}
	return &clone
}

// SanitizeIntent validates and normalises the supplied intent, returning a
// cloned instance with canonical asset casing and non-nil amount fields. The
// function does not mutate the original value.
func SanitizeIntent(t *TradeIntent) (*TradeIntent, error) {
	if t == nil {
		return nil, fmt.Errorf("intercessor: nil intent")
	}
	clone := t.Clone()
	clone.TradeID = strings.TrimSpace(clone.TradeID)
	if clone.TradeID == "" {
		return nil, fmt.Errorf("intercessor: empty trade identifier")
	}
	baseAsset, err := NormalizeAsset(clone.Base.Asset)
	if err != nil {
		return nil, err
	}
	clone.Base.Asset = baseAsset
	termAsset, err := NormalizeAsset(clone.Term.Asset)
	if err != nil {
		return nil, err
	}
	clone.Term.Asset = termAsset
	if clone.Base.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("intercessor: base amount must be positive")
	}
	if clone.Term.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("intercessor: term amount must be positive")
	}
	if clone.Base.Counterparty == clone.Term.Counterparty {
		return nil, fmt.Errorf("intercessor: counterparties must be distinct")
	}
	if clone.EscrowedNative != nil && clone.EscrowedNative.Sign() < 0 {
		return nil, fmt.Errorf("intercessor: escrowed amount must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("intercessor: invalid status %d", clone.Status)
	}
	return clone, nil
}
