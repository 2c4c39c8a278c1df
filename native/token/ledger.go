package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

var (
	ErrUnknownAsset          = errors.New("token: unknown asset")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Ledger is an in-process fungible-asset collaborator. It keeps per-asset
// balance and allowance books and implements the pull-based transfer
// capability consumed by the settlement engines.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[string]map[[20]byte]*big.Int
	allowances map[string]map[[20]byte]map[[20]byte]*big.Int
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[string]map[[20]byte]*big.Int),
		allowances: make(map[string]map[[20]byte]map[[20]byte]*big.Int),
	}
}

// NormalizeSymbol canonicalises an asset symbol to its uppercase trimmed form.
func NormalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("token: empty asset symbol")
	}
	return trimmed, nil
}

// Register makes the asset known to the ledger. Registering an existing asset
// is a no-op.
func (l *Ledger) Register(symbol string) error {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[normalized]; !ok {
		l.balances[normalized] = make(map[[20]byte]*big.Int)
		l.allowances[normalized] = make(map[[20]byte]map[[20]byte]*big.Int)
	}
	return nil
}

// Mint credits freshly issued units to the owner.
func (l *Ledger) Mint(symbol string, owner [20]byte, amount *big.Int) error {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token: mint amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	book, ok := l.balances[normalized]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, normalized)
	}
	book[owner] = new(big.Int).Add(balanceOf(book, owner), amount)
	return nil
}

// Approve sets the amount the spender may pull from the owner's balance.
func (l *Ledger) Approve(symbol string, owner, spender [20]byte, amount *big.Int) error {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token: approve amount must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	grants, ok := l.allowances[normalized]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, normalized)
	}
	byOwner, ok := grants[owner]
	if !ok {
		byOwner = make(map[[20]byte]*big.Int)
		grants[owner] = byOwner
	}
	byOwner[spender] = new(big.Int).Set(amount)
	return nil
}

// IncreaseAllowance credits the spender's allowance in place. The settlement
// unwind path uses it to hand back an allowance a reverted pull consumed.
func (l *Ledger) IncreaseAllowance(symbol string, owner, spender [20]byte, amount *big.Int) error {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token: allowance credit must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	grants, ok := l.allowances[normalized]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, normalized)
	}
	byOwner, ok := grants[owner]
	if !ok {
		byOwner = make(map[[20]byte]*big.Int)
		grants[owner] = byOwner
	}
	byOwner[spender] = new(big.Int).Add(allowanceOf(grants, owner, spender), amount)
	return nil
}

// BalanceOf returns the owner's balance; unknown assets and owners read zero.
func (l *Ledger) BalanceOf(symbol string, owner [20]byte) *big.Int {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return big.NewInt(0)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	book, ok := l.balances[normalized]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balanceOf(book, owner))
}

// Allowance returns the remaining amount the spender may pull from the owner.
func (l *Ledger) Allowance(symbol string, owner, spender [20]byte) *big.Int {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return big.NewInt(0)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(allowanceOf(l.allowances[normalized], owner, spender))
}

// Transfer moves units directly between two owners.
func (l *Ledger) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(normalized, from, to, amount)
}

// TransferFrom pulls units from the owner to the recipient on behalf of the
// spender, consuming the matching allowance.
func (l *Ledger) TransferFrom(symbol string, spender, owner, to [20]byte, amount *big.Int) error {
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token: transfer amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	granted := allowanceOf(l.allowances[normalized], owner, spender)
	if granted.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientAllowance, normalized)
	}
	if err := l.move(normalized, owner, to, amount); err != nil {
		return err
	}
	l.allowances[normalized][owner][spender] = new(big.Int).Sub(granted, amount)
	return nil
}

func (l *Ledger) move(normalized string, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token: transfer amount must be positive")
	}
	book, ok := l.balances[normalized]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, normalized)
	}
	fromBal := balanceOf(book, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, normalized)
	}
	book[from] = new(big.Int).Sub(fromBal, amount)
	book[to] = new(big.Int).Add(balanceOf(book, to), amount)
	return nil
}

func balanceOf(book map[[20]byte]*big.Int, owner [20]byte) *big.Int {
	if bal, ok := book[owner]; ok && bal != nil {
		return bal
	}
	return big.NewInt(0)
}

func allowanceOf(grants map[[20]byte]map[[20]byte]*big.Int, owner, spender [20]byte) *big.Int {
	if grants == nil {
		return big.NewInt(0)
	}
	byOwner, ok := grants[owner]
	if !ok {
		return big.NewInt(0)
	}
	if granted, ok := byOwner[spender]; ok && granted != nil {
		return granted
	}
	return big.NewInt(0)
}

// NativeLedger is the native-currency balance book. Custody of escrowed value
// is expressed as a balance held by the engine vault address.
type NativeLedger struct {
	mu       sync.RWMutex
	balances map[[20]byte]*big.Int
}

func NewNativeLedger() *NativeLedger {
	return &NativeLedger{balances: make(map[[20]byte]*big.Int)}
}

// Mint credits native units to the owner.
func (l *NativeLedger) Mint(owner [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token: mint amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[owner] = new(big.Int).Add(balanceOf(l.balances, owner), amount)
	return nil
}

// Transfer moves native units between two owners.
func (l *NativeLedger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("token: transfer amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBal := balanceOf(l.balances, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: native", ErrInsufficientBalance)
	}
	l.balances[from] = new(big.Int).Sub(fromBal, amount)
	l.balances[to] = new(big.Int).Add(balanceOf(l.balances, to), amount)
	return nil
}

// BalanceOf returns the owner's native balance.
func (l *NativeLedger) BalanceOf(owner [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(balanceOf(l.balances, owner))
}
