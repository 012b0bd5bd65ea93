package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"healthkey/indexer"
	"healthkey/native/healthkey"
)

func rawPost(t *testing.T, h *harness, body string, headers map[string]string) (int, RPCResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.http.URL+"/", strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func rpcErrorOf(t *testing.T, err error) *RPCError {
	t.Helper()
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "expected rpc error, got %v", err)
	return rpcErr
}

func ledgerData(t *testing.T, rpcErr *RPCError) LedgerErrorData {
	t.Helper()
	raw, err := json.Marshal(rpcErr.Data)
	require.NoError(t, err)
	var data LedgerErrorData
	require.NoError(t, json.Unmarshal(raw, &data))
	return data
}

func TestChainInfoHealthAndIDL(t *testing.T) {
	h := newHarness(t, 1000, Config{}, nil)
	ctx := context.Background()

	info, err := h.client.ChainInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, testChainID, info.ChainID)
	require.Equal(t, formatAddress(healthkey.ProgramID), info.Programs["healthkey"])
	require.Equal(t, uint64(128+healthkey.ProfileSpace), info.RentExempt.Profile)

	var idl map[string]interface{}
	require.NoError(t, h.client.Call(ctx, "hk_idl", &idl))
	require.Equal(t, "healthkey_protocol", idl["name"])

	resp, err := h.http.Client().Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), testChainID)
	require.NotEmpty(t, resp.Header.Get(headerRequestID))

	resp, err = h.http.Client().Get(h.http.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "healthkey_rpc_requests_total")
}

func TestProfileAndRewardOverRPC(t *testing.T) {
	h := newHarness(t, 1000, Config{}, nil)
	ctx := context.Background()

	ix, err := healthkey.InitializeUserProfileInstruction(h.user.addr, "ipfs://cid", "10k steps")
	require.NoError(t, err)
	created, err := h.send(h.user, ix)
	require.NoError(t, err)
	require.NotEmpty(t, created.Events)

	var profile ProfileResult
	require.NoError(t, h.client.Call(ctx, "hk_getProfile", &profile, h.user.String()))
	require.Equal(t, "10k steps", profile.Goal)
	require.Equal(t, h.user.String(), profile.Authority)

	ix, err = healthkey.RewardUserInstruction(h.user.addr, h.user.addr, h.node.RewardMint(), 250)
	require.NoError(t, err)
	rewarded, err := h.send(h.user, ix)
	require.NoError(t, err)
	require.Contains(t, strings.Join(rewarded.Logs, "\n"), "Vault PDA: ")

	var balance TokenBalanceResult
	require.NoError(t, h.client.Call(ctx, "hk_getTokenBalance", &balance, h.user.String()))
	require.True(t, balance.Exists)
	require.Equal(t, uint64(250), balance.Amount)

	var vault VaultResult
	require.NoError(t, h.client.Call(ctx, "hk_getVaultAuthority", &vault))
	require.Equal(t, uint64(750), vault.Balance)

	var byHash ReceiptResult
	require.NoError(t, h.client.Call(ctx, "hk_getReceipt", &byHash, rewarded.TxHash))
	require.Equal(t, rewarded.Slot, byHash.Slot)
	var bySlot ReceiptResult
	require.NoError(t, h.client.Call(ctx, "hk_getReceipt", &bySlot, rewarded.Slot))
	require.Equal(t, rewarded.TxHash, bySlot.TxHash)

	var audit AuditResult
	require.NoError(t, h.client.Call(ctx, "hk_auditSupply", &audit))
	require.True(t, audit.Balanced)
	require.True(t, audit.NativeBalanced)

	nonce, err := h.client.Nonce(ctx, h.user.String())
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)
}

func TestLedgerErrorsMapToClassCodes(t *testing.T) {
	h := newHarness(t, 100, Config{}, nil)
	mint := h.node.RewardMint()

	ix, err := healthkey.RewardUserInstruction(h.user.addr, h.user.addr, mint, 0)
	require.NoError(t, err)
	_, err = h.send(h.user, ix)
	rpcErr := rpcErrorOf(t, err)
	require.Equal(t, codeValidation, rpcErr.Code)
	data := ledgerData(t, rpcErr)
	require.Equal(t, "InvalidAmount", data.Code)
	require.False(t, data.Retryable)

	ix, err = healthkey.RewardUserInstruction(h.user.addr, h.user.addr, mint, 500)
	require.NoError(t, err)
	_, err = h.send(h.user, ix)
	rpcErr = rpcErrorOf(t, err)
	require.Equal(t, codeResource, rpcErr.Code)
	data = ledgerData(t, rpcErr)
	require.Equal(t, "InsufficientFunds", data.Code)
	require.True(t, data.Retryable)

	var profile ProfileResult
	err = h.client.Call(context.Background(), "hk_getProfile", &profile, h.user.String())
	require.Equal(t, codeNotFound, rpcErrorOf(t, err).Code)

	var receipt ReceiptResult
	err = h.client.Call(context.Background(), "hk_getReceipt", &receipt, "0xdead")
	require.Equal(t, codeNotFound, rpcErrorOf(t, err).Code)
}

func TestMalformedRequests(t *testing.T) {
	h := newHarness(t, 10, Config{}, nil)

	status, resp := rawPost(t, h, `{"jsonrpc":"2.0","method":`, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeParseError, resp.Error.Code)

	status, resp = rawPost(t, h, `{"jsonrpc":"2.0","method":"hk_nope","id":1}`, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	status, resp = rawPost(t, h, `{"jsonrpc":"1.0","method":"hk_idl","id":1}`, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	status, resp = rawPost(t, h, `{"jsonrpc":"2.0","method":"hk_getProfile","params":["hk1nope"],"id":2}`, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = rawPost(t, h, `{"jsonrpc":"2.0","method":"hk_sendTransaction","params":["0xzz"],"id":3}`, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = rawPost(t, h, `{"jsonrpc":"2.0","method":"hk_getRewardHistory","params":[],"id":4}`, nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, codeServerError, resp.Error.Code)
}

type staticHistory struct {
	records []indexer.RewardRecord
}

func (s staticHistory) RewardHistory(_ context.Context, _ [20]byte, limit int) ([]indexer.RewardRecord, error) {
	if limit > 0 && limit < len(s.records) {
		return s.records[:limit], nil
	}
	return s.records, nil
}

func (s staticHistory) TotalRewarded(context.Context, [20]byte) (uint64, error) {
	var total uint64
	for _, rec := range s.records {
		total += rec.Amount
	}
	return total, nil
}

func TestRewardHistory(t *testing.T) {
	history := staticHistory{records: []indexer.RewardRecord{
		{TxHash: "aa", Slot: 5, Amount: 40, AccountCreated: false},
		{TxHash: "bb", Slot: 3, Amount: 60, AccountCreated: true},
	}}
	h := newHarness(t, 10, Config{}, history)

	var out RewardHistoryResult
	require.NoError(t, h.client.Call(context.Background(), "hk_getRewardHistory", &out, h.user.String(), 1))
	require.Equal(t, uint64(100), out.Total)
	require.Len(t, out.Rewards, 1)
	require.Equal(t, "0xaa", out.Rewards[0].TxHash)
}

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	h := newHarness(t, 10, Config{RequestsPerMinute: 1, Burst: 2}, nil)
	ctx := context.Background()

	require.NoError(t, h.client.Call(ctx, "hk_idl", nil))
	require.NoError(t, h.client.Call(ctx, "hk_idl", nil))
	err := h.client.Call(ctx, "hk_idl", nil)
	require.Equal(t, codeRateLimited, rpcErrorOf(t, err).Code)

	resp, err := h.http.Client().Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSendTransactionRequiresBearerTokenWhenConfigured(t *testing.T) {
	const secret = "rpc-test-secret"
	h := newHarness(t, 10, Config{AuthSecret: secret, AuthIssuer: "healthkey-tests"}, nil)

	ix, err := healthkey.InitializeUserProfileInstruction(h.user.addr, "p", "g")
	require.NoError(t, err)
	_, err = h.send(h.user, ix)
	require.Equal(t, codeUnauthorized, rpcErrorOf(t, err).Code)

	wrong := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "someone-else",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err := wrong.SignedString([]byte(secret))
	require.NoError(t, err)
	h.client.token = signed
	_, err = h.send(h.user, ix)
	require.Equal(t, codeUnauthorized, rpcErrorOf(t, err).Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "healthkey-tests",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	signed, err = token.SignedString([]byte(secret))
	require.NoError(t, err)
	h.client.token = signed
	_, err = h.send(h.user, ix)
	require.NoError(t, err)

	var info ChainInfoResult
	h.client.token = ""
	require.NoError(t, h.client.Call(context.Background(), "hk_chainInfo", &info))
}

func TestIdempotentSubmissionReplaysReceipt(t *testing.T) {
	store, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idempotency.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h := newHarness(t, 1000, Config{Idempotency: store}, nil)
	ctx := context.Background()

	ix, err := healthkey.RewardUserInstruction(h.user.addr, h.user.addr, h.node.RewardMint(), 10)
	require.NoError(t, err)
	tx := h.signed(h.user, ix)

	first, err := h.client.SendTransaction(ctx, tx, "reward-1")
	require.NoError(t, err)
	second, err := h.client.SendTransaction(ctx, tx, "reward-1")
	require.NoError(t, err)
	require.Equal(t, first, second)

	var balance TokenBalanceResult
	require.NoError(t, h.client.Call(ctx, "hk_getTokenBalance", &balance, h.user.String()))
	require.Equal(t, uint64(10), balance.Amount)

	other := h.signed(h.user, ix)
	_, err = h.client.SendTransaction(ctx, other, "reward-1")
	require.Equal(t, codeIdempotency, rpcErrorOf(t, err).Code)

	// Without a key the replay hits the ledger's nonce check.
	_, err = h.client.SendTransaction(ctx, tx, "")
	require.Equal(t, codeValidation, rpcErrorOf(t, err).Code)
}

func TestIdempotencyStoreExpiry(t *testing.T) {
	store, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idem.db"), time.Minute)
	require.NoError(t, err)
	defer store.Close()
	now := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save("k", "0x01", json.RawMessage(`{"slot":1}`)))
	rec, found, err := store.Lookup("k", "0x01")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"slot":1}`, string(rec.Result))

	now = now.Add(2 * time.Minute)
	_, found, err = store.Lookup("k", "0x01")
	require.NoError(t, err)
	require.False(t, found)

	removed, err := store.Prune()
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}

func TestIdempotencyStoreLongKeys(t *testing.T) {
	store, err := OpenIdempotencyStore(filepath.Join(t.TempDir(), "idem.db"), time.Minute)
	require.NoError(t, err)
	defer store.Close()

	long := strings.Repeat("retry-", 2000)
	require.Len(t, storeKey(long), 32)
	require.NoError(t, store.Save(long, "0x02", json.RawMessage(`{"slot":2}`)))
	_, found, err := store.Lookup(long, "0x02")
	require.NoError(t, err)
	require.True(t, found)

	_, _, err = store.Lookup(long+"x", "0x02")
	require.NoError(t, err)
	_, _, err = store.Lookup(long, "0x03")
	require.ErrorIs(t, err, ErrIdempotencyMismatch)
}
