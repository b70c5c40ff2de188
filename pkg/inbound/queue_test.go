package inbound

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mw-chain/polkadot-sdk/pkg/channel"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/db"
	"github.com/mw-chain/polkadot-sdk/pkg/envelope"
	"github.com/mw-chain/polkadot-sdk/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	assetHubParaID = 1000
	templateParaID = 1001
)

var (
	testGateway        = common.HexToAddress("0xEDa338E4dC46038493b885327842fD3E301CaB39")
	assetHubChannel    = localCommon.ChannelIDFromParaID(assetHubParaID)
	assetHubSovereign  = localCommon.SiblingSovereignAccount(assetHubParaID)
	templateChannel    = localCommon.ChannelIDFromParaID(templateParaID)
	relayer            = localCommon.AccountID{0xb0, 0xb}
	admin              = localCommon.AccountID{0xad}
	existentialDeposit = uint256.NewInt(1_000)
	initialFund        = uint256.NewInt(1_000_000_000_000)
	testPricing        = PricingParameters{
		BaseFee:     uint256.NewInt(10_000),
		ByteFee:     uint256.NewInt(10),
		LocalReward: uint256.NewInt(100),
	}
)

type mockVerifier struct {
	err   error
	calls int
}

func (v *mockVerifier) Verify(log *envelope.EventLog, proof *Proof) error {
	v.calls++
	return v.err
}

type testEnv struct {
	queue    *Queue
	db       *db.Database
	ledger   *ledger.Ledger
	verifier *mockVerifier
	events   []*MessageReceived
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	registry := channel.NewRegistry()
	require.NoError(t, registry.Register(channel.Channel{ID: assetHubChannel, Gateway: testGateway, FeeAccount: assetHubSovereign}))

	env := &testEnv{
		db:       database,
		ledger:   ledger.New(existentialDeposit),
		verifier: &mockVerifier{},
	}
	observer := ObserverFunc(func(ev *MessageReceived) { env.events = append(env.events, ev) })
	env.queue = NewQueue(zap.NewNop(), database, env.ledger, registry, env.verifier, NewAdminSet(admin), testPricing, observer)

	env.setBalance(t, assetHubSovereign, initialFund)
	return env
}

func (e *testEnv) setBalance(t *testing.T, who localCommon.AccountID, amount *uint256.Int) {
	t.Helper()
	require.NoError(t, e.queue.SetBalance(admin, who, amount))
}

func (e *testEnv) balance(t *testing.T, who localCommon.AccountID) *uint256.Int {
	t.Helper()
	bal, err := e.queue.Balance(who)
	require.NoError(t, err)
	return bal
}

func (e *testEnv) nonce(t *testing.T, ch localCommon.ChannelID) uint64 {
	t.Helper()
	n, err := e.queue.Nonce(ch)
	require.NoError(t, err)
	return n
}

func makeEventProof(t *testing.T, gateway common.Address, ch localCommon.ChannelID, nonce uint64) *EventProof {
	t.Helper()
	cmd := &envelope.Command{Version: envelope.CommandVersion, ChainID: 11155111, Tag: envelope.CommandRegisterToken, Body: []byte{0x87, 0xd1, 0xf7, 0xfd}}
	log, err := envelope.NewEventLog(gateway, ch, nonce, common.Hash{0x01, byte(nonce)}, cmd)
	require.NoError(t, err)
	return &EventProof{
		EventLog: *log,
		Proof:    Proof{ExecutionProof: []byte{0xde, 0xad, 0xbe, 0xef}},
	}
}

func deliveryCostOf(t *testing.T, p *EventProof) *uint256.Int {
	t.Helper()
	length, err := p.EncodedLen()
	require.NoError(t, err)
	return testPricing.DeliveryCost(length)
}

func TestSubmitHappyPath(t *testing.T) {
	env := newTestEnv(t)
	proof := makeEventProof(t, testGateway, assetHubChannel, 1)

	assert.True(t, env.balance(t, relayer).IsZero())
	assert.Equal(t, initialFund, env.balance(t, assetHubSovereign))

	require.NoError(t, env.queue.Submit(relayer, proof))

	cost := deliveryCostOf(t, proof)
	assert.True(t, testPricing.LocalReward.Lt(cost))
	assert.Equal(t, uint64(1), env.nonce(t, assetHubChannel))
	assert.Equal(t, cost, env.balance(t, relayer))
	assert.Equal(t, new(uint256.Int).Sub(initialFund, cost), env.balance(t, assetHubSovereign))

	require.Len(t, env.events, 1)
	assert.Equal(t, assetHubChannel, env.events[0].ChannelID)
	assert.Equal(t, uint64(1), env.events[0].Nonce)
	assert.Equal(t, common.Hash{0x01, 0x01}, env.events[0].MessageID)
	assert.Equal(t, cost, env.events[0].Reward)

	msgs, err := PendingMessages(env.db, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(1), msgs[0].Nonce)
	assert.Equal(t, relayer, msgs[0].Relayer)
	assert.Equal(t, envelope.CommandRegisterToken, msgs[0].Command.Tag)
}

// assertNoMutation checks that a failed submission left nonces, balances, the outbox and observers untouched.
func assertNoMutation(t *testing.T, env *testEnv, relayerBal, feeBal *uint256.Int, nonce uint64) {
	t.Helper()
	assert.Equal(t, nonce, env.nonce(t, assetHubChannel))
	assert.Equal(t, relayerBal, env.balance(t, relayer))
	assert.Equal(t, feeBal, env.balance(t, assetHubSovereign))
	msgs, err := PendingMessages(env.db, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, int(nonce))
	assert.Len(t, env.events, int(nonce))
}

func TestSubmitInvalidChannel(t *testing.T) {
	env := newTestEnv(t)
	env.setBalance(t, localCommon.SiblingSovereignAccount(templateParaID), uint256.NewInt(10_000))

	err := env.queue.Submit(relayer, makeEventProof(t, testGateway, templateChannel, 1))
	assert.ErrorIs(t, err, ErrInvalidChannel)
	assert.Equal(t, 0, env.verifier.calls)
	assertNoMutation(t, env, new(uint256.Int), initialFund, 0)
}

func TestSubmitInvalidGateway(t *testing.T) {
	env := newTestEnv(t)

	other := common.HexToAddress("0x0000000000000000000000000000000000000001")
	err := env.queue.Submit(relayer, makeEventProof(t, other, assetHubChannel, 1))
	assert.ErrorIs(t, err, ErrInvalidGateway)
	assert.Equal(t, 0, env.verifier.calls)
	assertNoMutation(t, env, new(uint256.Int), initialFund, 0)
}

func TestSubmitInvalidProof(t *testing.T) {
	env := newTestEnv(t)
	env.verifier.err = errors.New("receipt not under trusted root")

	err := env.queue.Submit(relayer, makeEventProof(t, testGateway, assetHubChannel, 1))
	assert.ErrorIs(t, err, ErrInvalidProof)
	assert.NotContains(t, err.Error(), "trusted root")
	assertNoMutation(t, env, new(uint256.Int), initialFund, 0)
}

func TestSubmitInvalidLog(t *testing.T) {
	env := newTestEnv(t)

	tests := map[string]func(*EventProof){
		"wrong signature": func(p *EventProof) { p.EventLog.Topics[0] = common.Hash{0xff} },
		"no topics":       func(p *EventProof) { p.EventLog.Topics = nil },
		"truncated data":  func(p *EventProof) { p.EventLog.Data = p.EventLog.Data[:16] },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := makeEventProof(t, testGateway, assetHubChannel, 1)
			mutate(p)
			assert.ErrorIs(t, env.queue.Submit(relayer, p), ErrInvalidLog)
		})
	}
	assert.ErrorIs(t, env.queue.Submit(relayer, nil), ErrInvalidLog)
	assert.Equal(t, 0, env.verifier.calls)
	assertNoMutation(t, env, new(uint256.Int), initialFund, 0)
}

func TestSubmitInvalidNonce(t *testing.T) {
	env := newTestEnv(t)
	proof := makeEventProof(t, testGateway, assetHubChannel, 1)

	require.NoError(t, env.queue.Submit(relayer, proof))
	assert.Equal(t, uint64(1), env.nonce(t, assetHubChannel))

	relayerBal := env.balance(t, relayer)
	feeBal := env.balance(t, assetHubSovereign)

	assert.ErrorIs(t, env.queue.Submit(relayer, proof), ErrInvalidNonce)
	assert.ErrorIs(t, env.queue.Submit(relayer, makeEventProof(t, testGateway, assetHubChannel, 3)), ErrInvalidNonce)
	assertNoMutation(t, env, relayerBal, feeBal, 1)
}

func TestNonceMonotonicity(t *testing.T) {
	env := newTestEnv(t)
	const n = 5

	for i := uint64(1); i <= n; i++ {
		require.NoError(t, env.queue.Submit(relayer, makeEventProof(t, testGateway, assetHubChannel, i)))
		assert.Equal(t, i, env.nonce(t, assetHubChannel))
	}

	relayerBal := env.balance(t, relayer)
	feeBal := env.balance(t, assetHubSovereign)
	for i := uint64(0); i <= n; i++ {
		assert.ErrorIs(t, env.queue.Submit(relayer, makeEventProof(t, testGateway, assetHubChannel, i)), ErrInvalidNonce)
	}
	assertNoMutation(t, env, relayerBal, feeBal, n)

	msgs, err := PendingMessages(env.db, 0)
	require.NoError(t, err)
	for i, m := range msgs {
		assert.Equal(t, uint64(i+1), m.Nonce)
	}
}

func TestSubmitNoFundsToRewardRelayersJustIgnore(t *testing.T) {
	env := newTestEnv(t)
	env.setBalance(t, assetHubSovereign, new(uint256.Int))

	require.NoError(t, env.queue.Submit(relayer, makeEventProof(t, testGateway, assetHubChannel, 1)))
	assert.Equal(t, uint64(1), env.nonce(t, assetHubChannel))
	assert.True(t, env.balance(t, relayer).IsZero())
	require.Len(t, env.events, 1)
	assert.True(t, env.events[0].Reward.IsZero())

	msgs, err := PendingMessages(env.db, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSubmitNoFundsToRewardRelayersAndEDPreserved(t *testing.T) {
	env := newTestEnv(t)
	env.setBalance(t, assetHubSovereign, new(uint256.Int).AddUint64(existentialDeposit, 1))

	proof := makeEventProof(t, testGateway, assetHubChannel, 1)
	require.True(t, deliveryCostOf(t, proof).GtUint64(1))
	require.NoError(t, env.queue.Submit(relayer, proof))
	assert.Equal(t, existentialDeposit, env.balance(t, assetHubSovereign))
	assert.Equal(t, uint256.NewInt(1), env.balance(t, relayer))
	assert.Equal(t, uint64(1), env.nonce(t, assetHubChannel))

	// Same log with the nonce byte bumped.
	next := makeEventProof(t, testGateway, assetHubChannel, 1)
	next.EventLog.Data[31] = 2
	require.NoError(t, env.queue.Submit(relayer, next))
	assert.Equal(t, existentialDeposit, env.balance(t, assetHubSovereign))
	assert.Equal(t, uint256.NewInt(1), env.balance(t, relayer))
	assert.Equal(t, uint64(2), env.nonce(t, assetHubChannel))
	require.Len(t, env.events, 2)
	assert.True(t, env.events[1].Reward.IsZero())
}

func TestSubmitByFeeAccountPaysNothing(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.queue.Submit(assetHubSovereign, makeEventProof(t, testGateway, assetHubChannel, 1)))
	assert.Equal(t, uint64(1), env.nonce(t, assetHubChannel))
	assert.Equal(t, initialFund, env.balance(t, assetHubSovereign))
	require.Len(t, env.events, 1)
	assert.True(t, env.events[0].Reward.IsZero())

	msgs, err := PendingMessages(env.db, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, assetHubSovereign, msgs[0].Relayer)
}

func TestFeeFloorPreservation(t *testing.T) {
	cost := deliveryCostOf(t, makeEventProof(t, testGateway, assetHubChannel, 1))
	ed := existentialDeposit.Uint64()
	c := cost.Uint64()

	tests := []struct {
		name   string
		fund   uint64
		reward uint64
	}{
		{"empty", 0, 0},
		{"at reserve", ed, 0},
		{"one above reserve", ed + 1, 1},
		{"just short", ed + c - 1, c - 1},
		{"exact", ed + c, c},
		{"plenty", ed + 10*c, c},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.setBalance(t, assetHubSovereign, uint256.NewInt(tc.fund))

			require.NoError(t, env.queue.Submit(relayer, makeEventProof(t, testGateway, assetHubChannel, 1)))
			assert.Equal(t, uint64(1), env.nonce(t, assetHubChannel))
			assert.Equal(t, uint256.NewInt(tc.reward), env.balance(t, relayer))

			post := env.balance(t, assetHubSovereign)
			assert.Equal(t, uint256.NewInt(tc.fund-tc.reward), post)
			if tc.fund > 0 {
				assert.False(t, post.Lt(existentialDeposit))
			}
		})
	}
}

func TestSetOperatingMode(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.queue.SetOperatingMode(admin, ModeHalted))
	mode, err := env.queue.OperatingMode()
	require.NoError(t, err)
	assert.Equal(t, ModeHalted, mode)

	assert.ErrorIs(t, env.queue.Submit(relayer, makeEventProof(t, testGateway, assetHubChannel, 1)), ErrHalted)

	// The halt check precedes decoding.
	garbage := &EventProof{EventLog: envelope.EventLog{Data: []byte{1}}}
	assert.ErrorIs(t, env.queue.Submit(relayer, garbage), ErrHalted)
	assert.Equal(t, 0, env.verifier.calls)
	assertNoMutation(t, env, new(uint256.Int), initialFund, 0)

	require.NoError(t, env.queue.SetOperatingMode(admin, ModeNormal))
	assert.NoError(t, env.queue.Submit(relayer, makeEventProof(t, testGateway, assetHubChannel, 1)))
}

func TestSetOperatingModeRootOnly(t *testing.T) {
	env := newTestEnv(t)

	assert.ErrorIs(t, env.queue.SetOperatingMode(relayer, ModeHalted), ErrBadOrigin)
	mode, err := env.queue.OperatingMode()
	require.NoError(t, err)
	assert.Equal(t, ModeNormal, mode)

	assert.Error(t, env.queue.SetOperatingMode(admin, OperatingMode(7)))
}

func TestSetBalanceRequiresPrivilege(t *testing.T) {
	env := newTestEnv(t)
	assert.ErrorIs(t, env.queue.SetBalance(relayer, relayer, uint256.NewInt(5_000)), ErrBadOrigin)
	assert.True(t, env.balance(t, relayer).IsZero())
}

// failingStore fails any write to the outbox so that the commit is aborted after the nonce was advanced.
type failingStore struct {
	*db.Database
}

type failingWriter struct {
	db.KVWriter
}

func (f failingWriter) Set(key, value []byte) error {
	if strings.HasPrefix(string(key), OutboxPrefix) {
		return errors.New("disk full")
	}
	return f.KVWriter.Set(key, value)
}

func (s failingStore) Update(fn func(kv db.KVWriter) error) error {
	return s.Database.Update(func(kv db.KVWriter) error {
		return fn(failingWriter{kv})
	})
}

func TestSubmitRollsBackOnStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	registry := channel.NewRegistry()
	require.NoError(t, registry.Register(channel.Channel{ID: assetHubChannel, Gateway: testGateway, FeeAccount: assetHubSovereign}))
	q := NewQueue(zap.NewNop(), failingStore{env.db}, env.ledger, registry, env.verifier, NewAdminSet(admin), testPricing)

	err := q.Submit(relayer, makeEventProof(t, testGateway, assetHubChannel, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assertNoMutation(t, env, new(uint256.Int), initialFund, 0)
}

func TestDeliveryCost(t *testing.T) {
	assert.Equal(t, uint256.NewInt(10_100), testPricing.DeliveryCost(0))
	assert.Equal(t, uint256.NewInt(10_100+10*250), testPricing.DeliveryCost(250))
	assert.Equal(t, uint256.NewInt(10_100), testPricing.DeliveryCost(-1))

	prev := testPricing.DeliveryCost(0)
	for _, l := range []int{1, 10, 100, 1000, 100000} {
		c := testPricing.DeliveryCost(l)
		assert.True(t, c.Gt(prev))
		prev = c
	}

	huge := PricingParameters{ByteFee: new(uint256.Int).SetAllOne()}
	assert.Equal(t, new(uint256.Int).SetAllOne(), huge.DeliveryCost(2))
	assert.True(t, PricingParameters{}.DeliveryCost(100).IsZero())
}

func TestEncodedLen(t *testing.T) {
	p := makeEventProof(t, testGateway, assetHubChannel, 1)
	length, err := p.EncodedLen()
	require.NoError(t, err)
	assert.Equal(t, 20+1+3*32+4+len(p.EventLog.Data)+4+0+4+len(p.Proof.ExecutionProof), length)
}

func TestPendingMessagesLimitAndRemove(t *testing.T) {
	env := newTestEnv(t)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, env.queue.Submit(relayer, makeEventProof(t, testGateway, assetHubChannel, i)))
	}

	msgs, err := PendingMessages(env.db, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(1), msgs[0].Nonce)

	require.NoError(t, RemoveMessage(env.db, msgs[0]))
	msgs, err = PendingMessages(env.db, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint64(2), msgs[0].Nonce)

	// Removing a message never rewinds the nonce.
	assert.Equal(t, uint64(3), env.nonce(t, assetHubChannel))
}

func TestOperatingModeText(t *testing.T) {
	m, err := ParseOperatingMode(" Halted ")
	require.NoError(t, err)
	assert.Equal(t, ModeHalted, m)
	_, err = ParseOperatingMode("paused")
	assert.Error(t, err)

	b, err := ModeNormal.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "normal", string(b))
}
