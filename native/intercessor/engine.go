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

const moduleName = "intercessor"

// TokenMover is the transfer-on-authorization capability consumed by the
// engines. The spender identity is the engine module address; pulls fail when
// the owner's balance or prior allowance is insufficient.
type TokenMover interface {
	TransferFrom(symbol string, spender, owner, to [20]byte, amount *big.Int) error
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
	IncreaseAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error
	BalanceOf(symbol string, owner [20]byte) *big.Int
	Allowance(symbol string, owner, spender [20]byte) *big.Int
}

// Engine matches and settles fungible-for-fungible trades. Both legs are
// pulled via prior allowance when the second matching submission arrives.
type Engine struct {
	mu       sync.Mutex
	state    EngineState
	registry *Registry
	tokens   TokenMover
	module   [20]byte
	emitter  events.Emitter
	nowFn    func() int64
	pauses   nativecommon.PauseView
}

// NewEngine constructs an engine bound to the supplied registry. The module
// address is the spender identity counterparties approve allowances for.
func NewEngine(registry *Registry, module [20]byte) *Engine {
	return &Engine{
		registry: registry,
		module:   module,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetTokens configures the asset adapter.
func (e *Engine) SetTokens(tokens TokenMover) { e.tokens = tokens }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// ModuleAddress returns the spender identity the engine pulls allowances with.
func (e *Engine) ModuleAddress() [20]byte { return e.module }

// Registry exposes the participant registry owned by this engine instance.
func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(engineEvent{evt: evt})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Trade registers a trade intent or settles it when the submission mirrors a
// pending entry for the same identifier. The returned flag reports whether
// settlement happened on this call.
//
// First matching submission: the intent is stored pending with the caller as
// initiator and no assets move. Second submission: the parameters must be the
// exact mirror of the stored intent and the caller must be the counterparty
// who did not submit the first leg; both legs then transfer atomically and
// the entry is removed.
func (e *Engine) Trade(caller [20]byte, tradeID string, baseAmount *big.Int, baseCounterparty [20]byte, baseAsset AssetRef, termAmount *big.Int, termCounterparty [20]byte, termAsset AssetRef) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if e.tokens == nil {
		return false, errNilTokens
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return false, err
	}
	normalizedBase, err := NormalizeAsset(baseAsset)
	if err != nil {
		return false, err
	}
	normalizedTerm, err := NormalizeAsset(termAsset)
	if err != nil {
		return false, err
	}
	if normalizedBase.IsNative() || normalizedTerm.IsNative() {
		return false, fmt.Errorf("intercessor: native leg not supported by the token engine")
	}
	if baseAmount == nil || baseAmount.Sign() <= 0 {
		return false, fmt.Errorf("intercessor: base amount must be positive")
	}
	if termAmount == nil || termAmount.Sign() <= 0 {
		return false, fmt.Errorf("intercessor: term amount must be positive")
	}
	if baseCounterparty == termCounterparty {
		return false, fmt.Errorf("intercessor: counterparties must be distinct")
	}
	if caller != baseCounterparty && caller != termCounterparty {
		return false, ErrUnauthorized
	}
	if err := e.registry.requireAdmitted(caller, baseCounterparty, termCounterparty); err != nil {
		return false, err
	}
	submitted := &TradeIntent{
		Key:       TradeKey(tradeID),
		TradeID:   tradeID,
		Initiator: caller,
		Base:      Leg{Counterparty: baseCounterparty, Amount: new(big.Int).Set(baseAmount), Asset: normalizedBase},
		Term:      Leg{Counterparty: termCounterparty, Amount: new(big.Int).Set(termAmount), Asset: normalizedTerm},
		CreatedAt: e.now(),
		Status:    IntentPending,
	}
	submitted, err = SanitizeIntent(submitted)
	if err != nil {
		return false, err
	}
	existing, ok, err := e.state.IntentGet(submitted.Key)
	if err != nil {
		return false, err
	}
	if !ok {
		if err := e.state.IntentPut(submitted); err != nil {
			return false, err
		}
		e.emit(NewTradeCreatedEvent(submitted))
		return false, nil
	}
	if caller == existing.Initiator {
		return false, ErrDuplicatePending
	}
	if !existing.Base.Equal(submitted.Base) || !existing.Term.Equal(submitted.Term) {
		return false, ErrTermsMismatch
	}
	if err := e.settle(existing); err != nil {
		return false, err
	}
	if err := e.state.IntentRemove(existing.Key); err != nil {
		return false, err
	}
	existing.Status = IntentSettled
	e.emit(NewTradeSwappedEvent(existing))
	return true, nil
}

// Cancel withdraws a pending intent. Only the initiator may cancel.
func (e *Engine) Cancel(caller [20]byte, tradeID string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	key := TradeKey(tradeID)
	existing, ok, err := e.state.IntentGet(key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIntentNotFound
	}
	if caller != existing.Initiator {
		return ErrUnauthorized
	}
	if err := e.state.IntentRemove(key); err != nil {
		return err
	}
	existing.Status = IntentCancelled
	e.emit(NewTradeCancelledEvent(existing))
	return nil
}

// Pending returns a copy of the pending intent for the identifier, if any.
func (e *Engine) Pending(tradeID string) (*TradeIntent, bool, error) {
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

// settle moves both legs in a fixed order (base then term). The legs are
// pre-verified against balances and allowances, and a failed second pull
// unwinds the first, balance and consumed allowance both, so no partial swap
// is observable and a retry needs no fresh approval.
func (e *Engine) settle(intent *TradeIntent) error {
	base, term := intent.Base, intent.Term
	for _, leg := range []Leg{base, term} {
		if e.tokens.BalanceOf(leg.Asset.Symbol, leg.Counterparty).Cmp(leg.Amount) < 0 {
			return fmt.Errorf("%w: insufficient %s balance", ErrSettlementFailed, leg.Asset.Symbol)
		}
		if e.tokens.Allowance(leg.Asset.Symbol, leg.Counterparty, e.module).Cmp(leg.Amount) < 0 {
			return fmt.Errorf("%w: insufficient %s allowance", ErrSettlementFailed, leg.Asset.Symbol)
		}
	}
	if err := e.tokens.TransferFrom(base.Asset.Symbol, e.module, base.Counterparty, term.Counterparty, base.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if err := e.tokens.TransferFrom(term.Asset.Symbol, e.module, term.Counterparty, base.Counterparty, term.Amount); err != nil {
		if unwindErr := e.tokens.Transfer(base.Asset.Symbol, term.Counterparty, base.Counterparty, base.Amount); unwindErr != nil {
			return fmt.Errorf("%w: %v (unwind failed: %v)", ErrSettlementFailed, err, unwindErr)
		}
		if creditErr := e.tokens.IncreaseAllowance(base.Asset.Symbol, base.Counterparty, e.module, base.Amount); creditErr != nil {
			return fmt.Errorf("%w: %v (allowance restore failed: %v)", ErrSettlementFailed, err, creditErr)
		}
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	return nil
}
