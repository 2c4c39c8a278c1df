package intercessor

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"intercessor/storage"
)

func TestKVStateIntentLifecycle(t *testing.T) {
	state := NewKVState(storage.NewMemDB())
	intent := validIntent()
	intent.EscrowedNative = big.NewInt(1234)

	_, ok, err := state.IntentGet(intent.Key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, state.IntentPut(intent))

	stored, ok, err := state.IntentGet(intent.Key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, intent.TradeID, stored.TradeID)
	require.Equal(t, intent.Initiator, stored.Initiator)
	require.True(t, stored.Base.Equal(Leg{Counterparty: intent.Base.Counterparty, Amount: big.NewInt(25), Asset: FungibleAsset("USDC")}))
	require.True(t, stored.Term.Equal(Leg{Counterparty: intent.Term.Counterparty, Amount: big.NewInt(30), Asset: FungibleAsset("DAI")}))
	require.Zero(t, stored.EscrowedNative.Cmp(big.NewInt(1234)))
	require.Equal(t, IntentPending, stored.Status)

	require.NoError(t, state.IntentRemove(intent.Key))
	_, ok, err = state.IntentGet(intent.Key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVStateRejectsInvalidIntent(t *testing.T) {
	state := NewKVState(storage.NewMemDB())
	intent := validIntent()
	intent.Base.Amount = big.NewInt(0)
	require.Error(t, state.IntentPut(intent))
}

func TestKVStateParticipants(t *testing.T) {
	state := NewKVState(storage.NewMemDB())
	addr := newTestAddress(0x07)

	exists, err := state.ParticipantExists(addr)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, state.ParticipantAdd(addr))

	exists, err = state.ParticipantExists(addr)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestKVStateNativeIntent(t *testing.T) {
	state := NewKVState(storage.NewMemDB())
	intent := &TradeIntent{
		Key:            TradeKey("tid-native"),
		TradeID:        "tid-native",
		Initiator:      newTestAddress(0x01),
		Base:           Leg{Counterparty: newTestAddress(0x01), Amount: big.NewInt(1000), Asset: NativeAsset()},
		Term:           Leg{Counterparty: newTestAddress(0x02), Amount: big.NewInt(30), Asset: FungibleAsset("DAI")},
		EscrowedNative: big.NewInt(1000),
		CreatedAt:      1000,
		Status:         IntentPending,
	}
	require.NoError(t, state.IntentPut(intent))

	stored, ok, err := state.IntentGet(intent.Key)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, stored.Base.Asset.IsNative())
	require.Zero(t, stored.EscrowedNative.Cmp(big.NewInt(1000)))
}
