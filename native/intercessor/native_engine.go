package intercessor

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"intercessor/core/events"
	"intercessor/core/types"
	nativecommon "intercessor/native/common"
)

// NativeMover is the native-currency capability consumed by the native
// engine. Escrow custody is expressed as value held by the engine vault.
type NativeMover interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	BalanceOf(owner [20]byte) *big.Int
}

// NativeEngine matches and settles native-for-fungible trades. The base leg
// is escrowed with the registering call; the term leg is pulled via prior
// allowance when the matching submission arrives.
type NativeEngine struct {
	mu       sync.Mutex
	state    EngineState
	registry *Registry
	tokens   TokenMover
	native   NativeMover
	vault    [20]byte
	emitter  events.Emitter
	nowFn    func() int64
	pauses   nativecommon.PauseView
}

// NewNativeEngine constructs a native engine bound to the supplied registry.
// The vault address holds escrowed native value and doubles as the spender
// identity for term-leg allowances.
func NewNativeEngine(registry *Registry, vault [20]byte) *NativeEngine {
	return &NativeEngine{
		registry: registry,
		vault:    vault,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend.
func (e *NativeEngine) SetState(state EngineState) { e.state = state }

// SetTokens configures the fungible asset adapter for the term leg.
func (e *NativeEngine) SetTokens(tokens TokenMover) { e.tokens = tokens }

// SetNative configures the native currency adapter.
func (e *NativeEngine) SetNative(native NativeMover) { e.native = native }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *NativeEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the module pause view.
func (e *NativeEngine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source, primarily used in tests.
func (e *NativeEngine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// VaultAddress returns the escrow custody address.
func (e *NativeEngine) VaultAddress() [20]byte { return e.vault }

// Registry exposes the participant registry owned by this engine instance.
func (e *NativeEngine) Registry() *Registry { return e.registry }

func (e *NativeEngine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(engineEvent{evt: evt})
}

func (e *NativeEngine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Deposit registers a native-for-fungible trade intent. The caller is the
// base counterparty; the attached value moves into vault custody immediately
// and stays there until settlement or cancellation.
func (e *NativeEngine) Deposit(caller [20]byte, tradeID string, baseCounterparty [20]byte, termAmount *big.Int, termCounterparty [20]byte, termAsset AssetRef, attachedValue *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.native == nil {
		return errNilNative
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	normalizedTerm, err := NormalizeAsset(termAsset)
	if err != nil {
		return err
	}
	if normalizedTerm.IsNative() {
		return fmt.Errorf("intercessor: term leg must be a fungible asset")
	}
	if attachedValue == nil || attachedValue.Sign() <= 0 {
		return fmt.Errorf("intercessor: attached value must be positive")
	}
	if termAmount == nil || termAmount.Sign() <= 0 {
		return fmt.Errorf("intercessor: term amount must be positive")
	}
	if caller != baseCounterparty {
		return ErrUnauthorized
	}
	if baseCounterparty == termCounterparty {
		return fmt.Errorf("intercessor: counterparties must be distinct")
	}
	if err := e.registry.requireAdmitted(caller, termCounterparty); err != nil {
		return err
	}
	intent := &TradeIntent{
		Key:            TradeKey(tradeID),
		TradeID:        tradeID,
		Initiator:      caller,
		Base:           Leg{Counterparty: caller, Amount: new(big.Int).Set(attachedValue), Asset: NativeAsset()},
		Term:           Leg{Counterparty: termCounterparty, Amount: new(big.Int).Set(termAmount), Asset: normalizedTerm},
		EscrowedNative: new(big.Int).Set(attachedValue),
		CreatedAt:      e.now(),
		Status:         IntentPending,
	}
	intent, err = SanitizeIntent(intent)
	if err != nil {
		return err
	}
	if _, ok, err := e.state.IntentGet(intent.Key); err != nil {
		return err
	} else if ok {
		return ErrDuplicatePending
	}
	if err := e.native.Transfer(caller, e.vault, intent.EscrowedNative); err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if err := e.state.IntentPut(intent); err != nil {
		if unwindErr := e.native.Transfer(e.vault, caller, intent.EscrowedNative); unwindErr != nil {
			return fmt.Errorf("store intent: %v (escrow unwind failed: %v)", err, unwindErr)
		}
		return err
	}
	e.emit(NewTradeCreatedEvent(intent))
	return nil
}

// Trade settles a deposited intent. The caller is the term counterparty; the
// claimed base amount must equal the escrowed value recorded at deposit time,
// defending against a payout assertion that differs from what is held.
func (e *NativeEngine) Trade(caller [20]byte, tradeID string, claimedBaseAmount *big.Int, baseCounterparty [20]byte, termAmount *big.Int, termCounterparty [20]byte, termAsset AssetRef) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokens
	}
	if e.native == nil {
		return errNilNative
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	normalizedTerm, err := NormalizeAsset(termAsset)
	if err != nil {
		return err
	}
	intent, ok, err := e.state.IntentGet(TradeKey(tradeID))
	if err != nil {
		return err
	}
	if !ok {
		return ErrIntentNotFound
	}
	if err := e.registry.requireAdmitted(caller); err != nil {
		return err
	}
	if caller != intent.Term.Counterparty {
		return ErrUnauthorized
	}
	submittedTerm := Leg{Counterparty: termCounterparty, Amount: termAmount, Asset: normalizedTerm}
	if intent.Base.Counterparty != baseCounterparty || !intent.Term.Equal(submittedTerm) {
		return ErrTermsMismatch
	}
	if claimedBaseAmount == nil || intent.EscrowedNative == nil || claimedBaseAmount.Cmp(intent.EscrowedNative) != 0 {
		return ErrTermsMismatch
	}
	if err := e.settle(intent); err != nil {
		return err
	}
	if err := e.state.IntentRemove(intent.Key); err != nil {
		return err
	}
	intent.Status = IntentSettled
	e.emit(NewTradeSwappedEvent(intent))
	return nil
}

// Cancel withdraws a pending intent and refunds the escrowed native value to
// the initiator. Only the initiator may cancel.
func (e *NativeEngine) Cancel(caller [20]byte, tradeID string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.native == nil {
		return errNilNative
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	key := TradeKey(tradeID)
	intent, ok, err := e.state.IntentGet(key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIntentNotFound
	}
	if caller != intent.Initiator {
		return ErrUnauthorized
	}
	if intent.EscrowedNative != nil && intent.EscrowedNative.Sign() > 0 {
		if err := e.native.Transfer(e.vault, intent.Initiator, intent.EscrowedNative); err != nil {
			return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
	}
	if err := e.state.IntentRemove(key); err != nil {
		return err
	}
	intent.Status = IntentCancelled
	e.emit(NewTradeCancelledEvent(intent))
	return nil
}

// Pending returns a copy of the pending intent for the identifier, if any.
func (e *NativeEngine) Pending(tradeID string) (*TradeIntent, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	intent, ok, err := e.state.IntentGet(TradeKey(tradeID))
	if err != nil || !ok {
		return nil, false, err
	}
	return intent.Clone(), true, nil
}

// settle pulls the term asset from the term counterparty to the base
// counterparty, then releases the escrowed native value from the vault. A
// failed release unwinds the pull, balance and consumed allowance both, so
// neither leg moves alone and a retry needs no fresh approval.
func (e *NativeEngine) settle(intent *TradeIntent) error {
	term := intent.Term
	if e.tokens.BalanceOf(term.Asset.Symbol, term.Counterparty).Cmp(term.Amount) < 0 {
		return fmt.Errorf("%w: insufficient %s balance", ErrSettlementFailed, term.Asset.Symbol)
	}
	if e.tokens.Allowance(term.Asset.Symbol, term.Counterparty, e.vault).Cmp(term.Amount) < 0 {
		return fmt.Errorf("%w: insufficient %s allowance", ErrSettlementFailed, term.Asset.Symbol)
	}
	if err := e.tokens.TransferFrom(term.Asset.Symbol, e.vault, term.Counterparty, intent.Base.Counterparty, term.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if err := e.native.Transfer(e.vault, term.Counterparty, intent.EscrowedNative); err != nil {
		if unwindErr := e.tokens.Transfer(term.Asset.Symbol, intent.Base.Counterparty, term.Counterparty, term.Amount); unwindErr != nil {
			return fmt.Errorf("%w: %v (unwind failed: %v)", ErrSettlementFailed, err, unwindErr)
		}
		if creditErr := e.tokens.IncreaseAllowance(term.Asset.Symbol, term.Counterparty, e.vault, term.Amount); creditErr != nil {
			return fmt.Errorf("%w: %v (allowance restore failed: %v)", ErrSettlementFailed, err, creditErr)
		}
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	return nil
}
