package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeRateLimited    = -32020
	codeIdempotency    = -32021
	codeValidation     = -32030
	codeDerivation     = -32031
	codeResource       = -32032
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// LedgerErrorData accompanies errors raised while executing a transaction.
type LedgerErrorData struct {
	Class     string `json:"class"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, id, codeServerError, "failed to encode result", err.Error())
		return
	}
	writeRawResult(w, id, raw)
}

func writeRawResult(w http.ResponseWriter, id interface{}, raw json.RawMessage) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: raw}
	_ = json.NewEncoder(w).Encode(resp)
}

// ReceiptResult is the JSON view of a committed receipt.
type ReceiptResult struct {
	TxHash    string        `json:"txHash"`
	Slot      uint64        `json:"slot"`
	Timestamp int64         `json:"timestamp"`
	StateRoot string        `json:"stateRoot"`
	Events    []EventResult `json:"events"`
	Logs      []string      `json:"logs,omitempty"`
}

type EventResult struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type ChainInfoResult struct {
	ChainID    string            `json:"chainId"`
	Slot       uint64            `json:"slot"`
	StateRoot  string            `json:"stateRoot"`
	RewardMint string            `json:"rewardMint"`
	Programs   map[string]string `json:"programs"`
	RentExempt RentResult        `json:"rentExempt"`
}

type RentResult struct {
	Profile      uint64 `json:"profile"`
	TokenAccount uint64 `json:"tokenAccount"`
}

type NonceResult struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

type ProfileResult struct {
	Address        string `json:"address"`
	Authority      string `json:"authority"`
	ContentPointer string `json:"contentPointer"`
	Goal           string `json:"goal"`
	CreatedAt      int64  `json:"createdAt"`
}

type VaultResult struct {
	Authority    string `json:"authority"`
	Bump         uint8  `json:"bump"`
	TokenAccount string `json:"tokenAccount"`
	Mint         string `json:"mint"`
	Balance      uint64 `json:"balance"`
}

type TokenBalanceResult struct {
	Owner   string `json:"owner"`
	Mint    string `json:"mint"`
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
	Exists  bool   `json:"exists"`
}

type RewardResult struct {
	TxHash         string `json:"txHash"`
	Slot           uint64 `json:"slot"`
	Timestamp      int64  `json:"timestamp"`
	RecipientToken string `json:"recipientToken"`
	Mint           string `json:"mint"`
	Amount         uint64 `json:"amount"`
	AccountCreated bool   `json:"accountCreated"`
}

type RewardHistoryResult struct {
	Recipient string         `json:"recipient"`
	Total     uint64         `json:"total"`
	Rewards   []RewardResult `json:"rewards"`
}

type AuditResult struct {
	Mint           string `json:"mint"`
	Supply         string `json:"supply"`
	Held           string `json:"held"`
	Accounts       int    `json:"accounts"`
	Balanced       bool   `json:"balanced"`
	NativeHeld     string `json:"nativeHeld"`
	NativeRecorded uint64 `json:"nativeRecorded"`
	NativeBalanced bool   `json:"nativeBalanced"`
}
