package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mw-chain/polkadot-sdk/pkg/channel"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/db"
	"github.com/mw-chain/polkadot-sdk/pkg/envelope"
	"github.com/mw-chain/polkadot-sdk/pkg/inbound"
	"github.com/mw-chain/polkadot-sdk/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testGateway = common.HexToAddress("0xEDa338E4dC46038493b885327842fD3E301CaB39")
	testChannel = localCommon.ChannelIDFromParaID(1000)
	feeAccount  = localCommon.SiblingSovereignAccount(1000)
	relayerAcct = localCommon.AccountID{0xb0}
	adminAcct   = localCommon.AccountID{0xad}
)

const testPermissions = `
permissions:
  - userName: relayer
    apiKey: relayer-key
    account: "0xb000000000000000000000000000000000000000000000000000000000000000"
  - userName: admin
    apiKey: Admin-Key
    account: "0xad00000000000000000000000000000000000000000000000000000000000000"
  - userName: slow
    apiKey: slow-key
    account: "0x0100000000000000000000000000000000000000000000000000000000000000"
    rateLimit: 0.001
    burst: 1
`

type verifierFunc func(*envelope.EventLog, *inbound.Proof) error

func (f verifierFunc) Verify(log *envelope.EventLog, proof *inbound.Proof) error {
	return f(log, proof)
}

func newTestServer(t *testing.T, env localCommon.Environment) (*httptest.Server, *inbound.Queue) {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	registry := channel.NewRegistry()
	require.NoError(t, registry.Register(channel.Channel{ID: testChannel, Gateway: testGateway, FeeAccount: feeAccount}))

	verifier := verifierFunc(func(_ *envelope.EventLog, proof *inbound.Proof) error {
		if bytes.Equal(proof.ExecutionProof, []byte("bad")) {
			return errors.New("bad proof")
		}
		return nil
	})
	pricing := inbound.PricingParameters{BaseFee: uint256.NewInt(100), ByteFee: uint256.NewInt(1)}
	q := inbound.NewQueue(zap.NewNop(), database, ledger.New(uint256.NewInt(10)), registry, verifier, inbound.NewAdminSet(adminAcct), pricing)

	permMap, err := parseConfig([]byte(testPermissions))
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(zap.NewNop(), env, NewPermissionsFromMap(permMap), q))
	t.Cleanup(srv.Close)
	return srv, q
}

func doRequest(t *testing.T, method, url, apiKey string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func eventProof(t *testing.T, nonce uint64, execProof string) *inbound.EventProof {
	t.Helper()
	cmd := &envelope.Command{Version: envelope.CommandVersion, ChainID: 1, Tag: envelope.CommandSendNativeToken}
	log, err := envelope.NewEventLog(testGateway, testChannel, nonce, common.Hash{byte(nonce)}, cmd)
	require.NoError(t, err)
	return &inbound.EventProof{EventLog: *log, Proof: inbound.Proof{ExecutionProof: []byte(execProof)}}
}

func TestSubmit(t *testing.T) {
	srv, q := newTestServer(t, localCommon.GoTest)
	require.NoError(t, q.SetBalance(adminAcct, feeAccount, uint256.NewInt(1_000_000)))

	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/submit", "relayer-key", eventProof(t, 1, "ok"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	nonce, err := q.Nonce(testChannel)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	bal, err := q.Balance(relayerAcct)
	require.NoError(t, err)
	assert.False(t, bal.IsZero())

	tests := []struct {
		name   string
		apiKey string
		body   interface{}
		status int
	}{
		{"replay", "relayer-key", eventProof(t, 1, "ok"), http.StatusBadRequest},
		{"bad proof", "relayer-key", eventProof(t, 2, "bad"), http.StatusUnprocessableEntity},
		{"missing key", "", eventProof(t, 2, "ok"), http.StatusUnauthorized},
		{"unknown key", "nope", eventProof(t, 2, "ok"), http.StatusForbidden},
		{"garbage body", "relayer-key", "not a proof", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, srv.URL+"/v1/submit", tc.apiKey, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestSubmitRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, localCommon.GoTest)

	resp := doRequest(t, http.MethodPost, srv.URL+"/v1/submit", "slow-key", eventProof(t, 1, "ok"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doRequest(t, http.MethodPost, srv.URL+"/v1/submit", "slow-key", eventProof(t, 2, "ok"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestModeEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, localCommon.GoTest)

	resp := doRequest(t, http.MethodPut, srv.URL+"/v1/mode", "relayer-key", map[string]string{"mode": "halted"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// API keys are case insensitive.
	resp = doRequest(t, http.MethodPut, srv.URL+"/v1/mode", "admin-key", map[string]string{"mode": "halted"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/mode", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mode map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mode))
	assert.Equal(t, "halted", mode["mode"])

	resp = doRequest(t, http.MethodPost, srv.URL+"/v1/submit", "relayer-key", eventProof(t, 1, "ok"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = doRequest(t, http.MethodPut, srv.URL+"/v1/mode", "admin-key", map[string]string{"mode": "paused"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A request without a mode must not resume the queue.
	resp = doRequest(t, http.MethodPut, srv.URL+"/v1/mode", "admin-key", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = doRequest(t, http.MethodPut, srv.URL+"/v1/mode", "admin-key", map[string]string{"Mod": "normal"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/mode", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mode = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mode))
	assert.Equal(t, "halted", mode["mode"])

	resp = doRequest(t, http.MethodPut, srv.URL+"/v1/mode", "admin-key", map[string]string{"mode": "normal"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNonceEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, localCommon.GoTest)

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/nonce/0x"+testChannel.String(), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		ChannelID string `json:"channelId"`
		Nonce     uint64 `json:"nonce"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testChannel.String(), body.ChannelID)
	assert.Equal(t, uint64(0), body.Nonce)

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/nonce/1234", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBalanceEndpoints(t *testing.T) {
	url := fmt.Sprintf("/v1/balance/%s", feeAccount)

	t.Run("dev", func(t *testing.T) {
		srv, _ := newTestServer(t, localCommon.GoTest)

		resp := doRequest(t, http.MethodPut, srv.URL+url, "relayer-key", map[string]string{"balance": "5000"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = doRequest(t, http.MethodPut, srv.URL+url, "admin-key", map[string]string{"balance": "5"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "below the existential deposit")

		resp = doRequest(t, http.MethodPut, srv.URL+url, "admin-key", map[string]string{"balance": "5000"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = doRequest(t, http.MethodGet, srv.URL+url, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "5000", body["balance"])
		assert.Equal(t, feeAccount.String(), body["account"])
	})

	t.Run("prod", func(t *testing.T) {
		srv, _ := newTestServer(t, localCommon.MainNet)
		resp := doRequest(t, http.MethodPut, srv.URL+url, "admin-key", map[string]string{"balance": "5000"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, localCommon.GoTest)
	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParseConfigErrors(t *testing.T) {
	tests := map[string]string{
		"duplicate user": `
permissions:
  - {userName: a, apiKey: k1, account: "0x0000000000000000000000000000000000000000000000000000000000000001"}
  - {userName: a, apiKey: k2, account: "0x0000000000000000000000000000000000000000000000000000000000000001"}`,
		"duplicate key": `
permissions:
  - {userName: a, apiKey: KEY, account: "0x0000000000000000000000000000000000000000000000000000000000000001"}
  - {userName: b, apiKey: key, account: "0x0000000000000000000000000000000000000000000000000000000000000001"}`,
		"bad account": `
permissions:
  - {userName: a, apiKey: k1, account: "0xzz"}`,
		"missing key": `
permissions:
  - {userName: a, account: "0x0000000000000000000000000000000000000000000000000000000000000001"}`,
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig([]byte(cfg))
			assert.Error(t, err)
		})
	}
}

func TestPermissionsReload(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "permissions.yaml")
	require.NoError(t, os.WriteFile(fileName, []byte(testPermissions), 0600))

	perms, err := NewPermissions(fileName)
	require.NoError(t, err)
	_, exists := perms.GetUserEntry("relayer-key")
	require.True(t, exists)

	// A broken file keeps the old permissions.
	require.NoError(t, os.WriteFile(fileName, []byte("permissions: ["), 0600))
	perms.Reload(zap.NewNop())
	_, exists = perms.GetUserEntry("relayer-key")
	assert.True(t, exists)

	require.NoError(t, os.WriteFile(fileName, []byte(`
permissions:
  - {userName: other, apiKey: other-key, account: "0x0000000000000000000000000000000000000000000000000000000000000002"}`), 0600))
	perms.Reload(zap.NewNop())
	_, exists = perms.GetUserEntry("relayer-key")
	assert.False(t, exists)
	entry, exists := perms.GetUserEntry("OTHER-KEY")
	require.True(t, exists)
	assert.Equal(t, localCommon.AccountID{31: 2}, entry.account)
}
