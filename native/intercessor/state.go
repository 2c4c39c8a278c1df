package intercessor

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"intercessor/storage"
)

// EngineState is the persistence surface the engines and registry require:
// the participant whitelist and the trade ledger keyed by trade identifier.
// No business validation lives behind this interface.
type EngineState interface {
	ParticipantAdd(addr [20]byte) error
	ParticipantExists(addr [20]byte) (bool, error)
	IntentPut(intent *TradeIntent) error
	IntentGet(key [32]byte) (*TradeIntent, bool, error)
	IntentRemove(key [32]byte) error
}

var (
	intentKeyPrefix      = []byte("intercessor/intent/")
	participantKeyPrefix = []byte("intercessor/participant/")
)

func intentStorageKey(key [32]byte) []byte {
	encoded := hex.EncodeToString(key[:])
	buf := make([]byte, len(intentKeyPrefix)+len(encoded))
	copy(buf, intentKeyPrefix)
	copy(buf[len(intentKeyPrefix):], encoded)
	return buf
}

func participantStorageKey(addr [20]byte) []byte {
	encoded := hex.EncodeToString(addr[:])
	buf := make([]byte, len(participantKeyPrefix)+len(encoded))
	copy(buf, participantKeyPrefix)
	copy(buf[len(participantKeyPrefix):], encoded)
	return buf
}

// storedLeg is the serialised leg representation. Amounts are stored as
// decimal strings to survive arbitrary magnitudes.
type storedLeg struct {
	Counterparty string `json:"counterparty"`
	Amount       string `json:"amount"`
	AssetKind    uint8  `json:"assetKind"`
	AssetSymbol  string `json:"assetSymbol,omitempty"`
}

type storedIntent struct {
	TradeID        string    `json:"tradeId"`
	Initiator      string    `json:"initiator"`
	Base           storedLeg `json:"base"`
	Term           storedLeg `json:"term"`
	EscrowedNative string    `json:"escrowedNative,omitempty"`
	CreatedAt      int64     `json:"createdAt"`
	Status         uint8     `json:"status"`
}

func encodeLeg(l Leg) storedLeg {
	amount := "0"
	if l.Amount != nil {
		amount = l.Amount.String()
	}
	return storedLeg{
		Counterparty: hex.EncodeToString(l.Counterparty[:]),
		Amount:       amount,
		AssetKind:    uint8(l.Asset.Kind),
		AssetSymbol:  l.Asset.Symbol,
	}
}

func decodeLeg(s storedLeg) (Leg, error) {
	var leg Leg
	raw, err := hex.DecodeString(s.Counterparty)
	if err != nil || len(raw) != 20 {
		return leg, fmt.Errorf("intercessor: malformed stored counterparty")
	}
	copy(leg.Counterparty[:], raw)
	amount, ok := new(big.Int).SetString(s.Amount, 10)
	if !ok {
		return leg, fmt.Errorf("intercessor: malformed stored amount %q", s.Amount)
	}
	leg.Amount = amount
	leg.Asset = AssetRef{Kind: AssetKind(s.AssetKind), Symbol: s.AssetSymbol}
	return leg, nil
}

// KVState persists engine state in a storage.Database under fixed key
// prefixes. Records are JSON encoded.
type KVState struct {
	db storage.Database
}

// NewKVState wraps the supplied database as an EngineState backend.
func NewKVState(db storage.Database) *KVState {
	return &KVState{db: db}
}

func (s *KVState) ParticipantAdd(addr [20]byte) error {
	return s.db.Put(participantStorageKey(addr), []byte{1})
}

func (s *KVState) ParticipantExists(addr [20]byte) (bool, error) {
	return s.db.Has(participantStorageKey(addr))
}

func (s *KVState) IntentPut(intent *TradeIntent) error {
	sanitized, err := SanitizeIntent(intent)
	if err != nil {
		return err
	}
	record := storedIntent{
		TradeID:   sanitized.TradeID,
		Initiator: hex.EncodeToString(sanitized.Initiator[:]),
		Base:      encodeLeg(sanitized.Base),
		Term:      encodeLeg(sanitized.Term),
		CreatedAt: sanitized.CreatedAt,
		Status:    uint8(sanitized.Status),
	}
	if sanitized.EscrowedNative != nil {
		record.EscrowedNative = sanitized.EscrowedNative.String()
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("intercessor: encode intent: %w", err)
	}
	return s.db.Put(intentStorageKey(sanitized.Key), encoded)
}

func (s *KVState) IntentGet(key [32]byte) (*TradeIntent, bool, error) {
	storageKey := intentStorageKey(key)
	ok, err := s.db.Has(storageKey)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	raw, err := s.db.Get(storageKey)
	if err != nil {
		return nil, false, err
	}
	var record storedIntent
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, false, fmt.Errorf("intercessor: decode intent: %w", err)
	}
	intent := &TradeIntent{
		Key:       key,
		TradeID:   record.TradeID,
		CreatedAt: record.CreatedAt,
		Status:    IntentStatus(record.Status),
	}
	rawInitiator, err := hex.DecodeString(record.Initiator)
	if err != nil || len(rawInitiator) != 20 {
		return nil, false, fmt.Errorf("intercessor: malformed stored initiator")
	}
	copy(intent.Initiator[:], rawInitiator)
	if intent.Base, err = decodeLeg(record.Base); err != nil {
		return nil, false, err
	}
	if intent.Term, err = decodeLeg(record.Term); err != nil {
		return nil, false, err
	}
	if record.EscrowedNative != "" {
		escrowed, ok := new(big.Int).SetString(record.EscrowedNative, 10)
		if !ok {
			return nil, false, fmt.Errorf("intercessor: malformed stored escrow amount")
		}
		intent.EscrowedNative = escrowed
	}
	return intent, true, nil
}

func (s *KVState) IntentRemove(key [32]byte) error {
	return s.db.Delete(intentStorageKey(key))
}
