package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"healthkey/core"
	coreerrors "healthkey/core/errors"
	"healthkey/core/types"
	"healthkey/crypto"
	"healthkey/native/healthkey"
	"healthkey/native/system"
	"healthkey/native/token"
)

const headerIdempotencyKey = "Idempotency-Key"

func formatAddress(raw [20]byte) string {
	return crypto.FromRaw(raw).String()
}

func decodeAddressParam(raw json.RawMessage) ([20]byte, error) {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return [20]byte{}, fmt.Errorf("address must be a string")
	}
	return crypto.ParseAddress(value)
}

func requireAddress(req *RPCRequest, idx int, name string) ([20]byte, *failure) {
	if len(req.Params) <= idx {
		return [20]byte{}, fail(http.StatusBadRequest, codeInvalidParams, name+" parameter required", nil)
	}
	addr, err := decodeAddressParam(req.Params[idx])
	if err != nil {
		return [20]byte{}, fail(http.StatusBadRequest, codeInvalidParams, "invalid "+name, err.Error())
	}
	return addr, nil
}

// ledgerFailure maps an error class onto a JSON-RPC code.
func ledgerFailure(err error) *failure {
	data := LedgerErrorData{
		Class:     string(coreerrors.Classify(err)),
		Code:      coreerrors.Code(err),
		Retryable: coreerrors.Retryable(err),
		Detail:    err.Error(),
	}
	switch coreerrors.Classify(err) {
	case coreerrors.ClassValidation:
		return fail(http.StatusBadRequest, codeValidation, "transaction rejected", data)
	case coreerrors.ClassDerivation:
		return fail(http.StatusBadRequest, codeDerivation, "account derivation mismatch", data)
	case coreerrors.ClassResource:
		return fail(http.StatusConflict, codeResource, "insufficient resources", data)
	default:
		return fail(http.StatusInternalServerError, codeServerError, "transaction failed", data)
	}
}

func receiptResult(receipt *types.Receipt) ReceiptResult {
	out := ReceiptResult{
		TxHash:    hexutil.Encode(receipt.TxHash),
		Slot:      receipt.Slot,
		Timestamp: receipt.Timestamp,
		StateRoot: hexutil.Encode(receipt.StateRoot),
		Events:    make([]EventResult, 0, len(receipt.Events)),
		Logs:      receipt.Logs,
	}
	for _, evt := range receipt.Events {
		out.Events = append(out.Events, EventResult{Type: evt.Type, Attributes: evt.Attributes})
	}
	return out
}

func (s *Server) handleSendTransaction(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	if authErr := s.auth.check(r); authErr != nil {
		return nil, &failure{status: http.StatusUnauthorized, err: authErr}
	}
	if len(req.Params) != 1 {
		return nil, fail(http.StatusBadRequest, codeInvalidParams, "signed transaction parameter required", nil)
	}
	var encoded string
	if err := json.Unmarshal(req.Params[0], &encoded); err != nil {
		return nil, fail(http.StatusBadRequest, codeInvalidParams, "transaction must be a hex string", err.Error())
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"))
	if err != nil {
		return nil, fail(http.StatusBadRequest, codeInvalidParams, "invalid transaction hex", err.Error())
	}
	tx, err := types.DecodeTransaction(raw)
	if err != nil {
		return nil, fail(http.StatusBadRequest, codeInvalidParams, "invalid transaction encoding", err.Error())
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, fail(http.StatusBadRequest, codeInvalidParams, "failed to hash transaction", err.Error())
	}
	txHash := hexutil.Encode(hash)

	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	store := s.cfg.Idempotency
	if key != "" && store != nil {
		rec, found, err := store.Lookup(key, txHash)
		if errors.Is(err, ErrIdempotencyMismatch) {
			return nil, fail(http.StatusConflict, codeIdempotency, err.Error(), key)
		}
		if err != nil {
			return nil, fail(http.StatusInternalServerError, codeServerError, "idempotency lookup failed", err.Error())
		}
		if found {
			s.metrics.RecordReplay(req.Method)
			return rec.Result, nil
		}
	}

	receipt, err := s.node.SubmitTransaction(r.Context(), tx)
	if err != nil {
		return nil, ledgerFailure(err)
	}
	result := receiptResult(receipt)
	if key != "" && store != nil {
		encodedResult, err := json.Marshal(result)
		if err == nil {
			err = store.Save(key, txHash, encodedResult)
		}
		if err != nil {
			s.logger.Warn("idempotency save failed",
				slog.String("request_id", RequestIDFrom(r.Context())),
				slog.String("error", err.Error()))
		}
	}
	return result, nil
}

func (s *Server) handleChainInfo(_ *http.Request, _ *RPCRequest) (interface{}, *failure) {
	head := s.node.Head()
	return ChainInfoResult{
		ChainID:    s.node.ChainID(),
		Slot:       head.Slot,
		StateRoot:  head.Root.Hex(),
		RewardMint: formatAddress(s.node.RewardMint()),
		Programs: map[string]string{
			"system":    formatAddress(system.ProgramID),
			"token":     formatAddress(token.ProgramID),
			"healthkey": formatAddress(healthkey.ProgramID),
		},
		RentExempt: RentResult{
			Profile:      s.node.RentExemptMinimum(healthkey.ProfileSpace),
			TokenAccount: s.node.RentExemptMinimum(token.AccountSpace),
		},
	}, nil
}

func (s *Server) handleGetNonce(_ *http.Request, req *RPCRequest) (interface{}, *failure) {
	addr, failed := requireAddress(req, 0, "address")
	if failed != nil {
		return nil, failed
	}
	nonce, err := s.node.Nonce(addr)
	if err != nil {
		return nil, fail(http.StatusInternalServerError, codeServerError, "failed to load account", err.Error())
	}
	return NonceResult{Address: formatAddress(addr), Nonce: nonce}, nil
}

func (s *Server) handleGetProfile(_ *http.Request, req *RPCRequest) (interface{}, *failure) {
	authority, failed := requireAddress(req, 0, "authority")
	if failed != nil {
		return nil, failed
	}
	profile, addr, found, err := s.node.Profile(authority)
	if err != nil {
		return nil, fail(http.StatusInternalServerError, codeServerError, "failed to load profile", err.Error())
	}
	if !found {
		return nil, fail(http.StatusNotFound, codeNotFound, "profile not found", formatAddress(addr))
	}
	return ProfileResult{
		Address:        formatAddress(addr),
		Authority:      formatAddress(profile.Authority),
		ContentPointer: profile.ContentPointer,
		Goal:           profile.Goal,
		CreatedAt:      profile.CreatedAt,
	}, nil
}

func (s *Server) handleGetVaultAuthority(_ *http.Request, _ *RPCRequest) (interface{}, *failure) {
	vault, err := s.node.Vault()
	if err != nil {
		return nil, fail(http.StatusInternalServerError, codeServerError, "failed to load vault", err.Error())
	}
	return VaultResult{
		Authority:    formatAddress(vault.Authority),
		Bump:         vault.Bump,
		TokenAccount: formatAddress(vault.TokenAccount),
		Mint:         formatAddress(vault.Mint),
		Balance:      vault.Balance,
	}, nil
}

func (s *Server) handleGetTokenBalance(_ *http.Request, req *RPCRequest) (interface{}, *failure) {
	owner, failed := requireAddress(req, 0, "owner")
	if failed != nil {
		return nil, failed
	}
	mint := s.node.RewardMint()
	if len(req.Params) > 1 {
		if mint, failed = requireAddress(req, 1, "mint"); failed != nil {
			return nil, failed
		}
	}
	amount, account, exists, err := s.node.TokenBalance(owner, mint)
	if err != nil {
		return nil, fail(http.StatusInternalServerError, codeServerError, "failed to load balance", err.Error())
	}
	return TokenBalanceResult{
		Owner:   formatAddress(owner),
		Mint:    formatAddress(mint),
		Account: formatAddress(account),
		Amount:  amount,
		Exists:  exists,
	}, nil
}

func (s *Server) handleGetReceipt(_ *http.Request, req *RPCRequest) (interface{}, *failure) {
	if len(req.Params) != 1 {
		return nil, fail(http.StatusBadRequest, codeInvalidParams, "transaction hash or slot required", nil)
	}
	var (
		receipt *types.Receipt
		err     error
	)
	var slot uint64
	if json.Unmarshal(req.Params[0], &slot) == nil {
		receipt, err = s.node.ReceiptBySlot(slot)
	} else {
		var encoded string
		if jsonErr := json.Unmarshal(req.Params[0], &encoded); jsonErr != nil {
			return nil, fail(http.StatusBadRequest, codeInvalidParams, "hash must be a hex string or slot a number", jsonErr.Error())
		}
		hash, decodeErr := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"))
		if decodeErr != nil {
			return nil, fail(http.StatusBadRequest, codeInvalidParams, "invalid transaction hash", decodeErr.Error())
		}
		receipt, err = s.node.Receipt(hash)
	}
	if errors.Is(err, core.ErrReceiptNotFound) {
		return nil, fail(http.StatusNotFound, codeNotFound, "receipt not found", nil)
	}
	if err != nil {
		return nil, fail(http.StatusInternalServerError, codeServerError, "failed to load receipt", err.Error())
	}
	return receiptResult(receipt), nil
}

func (s *Server) handleGetRewardHistory(r *http.Request, req *RPCRequest) (interface{}, *failure) {
	if s.history == nil {
		return nil, fail(http.StatusServiceUnavailable, codeServerError, "reward history indexer disabled", nil)
	}
	recipient, failed := requireAddress(req, 0, "recipient")
	if failed != nil {
		return nil, failed
	}
	limit := 0
	if len(req.Params) > 1 {
		if err := json.Unmarshal(req.Params[1], &limit); err != nil {
			return nil, fail(http.StatusBadRequest, codeInvalidParams, "limit must be an integer", err.Error())
		}
	}
	records, err := s.history.RewardHistory(r.Context(), recipient, limit)
	if err != nil {
		return nil, fail(http.StatusInternalServerError, codeServerError, "failed to load reward history", err.Error())
	}
	total, err := s.history.TotalRewarded(r.Context(), recipient)
	if err != nil {
		return nil, fail(http.StatusInternalServerError, codeServerError, "failed to total rewards", err.Error())
	}
	out := RewardHistoryResult{
		Recipient: formatAddress(recipient),
		Total:     total,
		Rewards:   make([]RewardResult, 0, len(records)),
	}
	for _, rec := range records {
		out.Rewards = append(out.Rewards, RewardResult{
			TxHash:         "0x" + rec.TxHash,
			Slot:           rec.Slot,
			Timestamp:      rec.Timestamp,
			RecipientToken: rec.RecipientToken,
			Mint:           rec.Mint,
			Amount:         rec.Amount,
			AccountCreated: rec.AccountCreated,
		})
	}
	return out, nil
}

func (s *Server) handleAuditSupply(_ *http.Request, _ *RPCRequest) (interface{}, *failure) {
	audit, err := s.node.AuditSupply()
	if err != nil {
		return nil, fail(http.StatusInternalServerError, codeServerError, "audit failed", err.Error())
	}
	return AuditResult{
		Mint:           formatAddress(audit.Token.Mint),
		Supply:         fmt.Sprint(audit.Token.Supply),
		Held:           audit.Token.Held.Dec(),
		Accounts:       audit.Token.Accounts,
		Balanced:       audit.Token.Balanced(),
		NativeHeld:     audit.NativeHeld,
		NativeRecorded: audit.NativeRecorded,
		NativeBalanced: audit.NativeHeld == fmt.Sprint(audit.NativeRecorded),
	}, nil
}

func (s *Server) handleIDL(_ *http.Request, _ *RPCRequest) (interface{}, *failure) {
	return json.RawMessage(healthkey.IDL), nil
}
