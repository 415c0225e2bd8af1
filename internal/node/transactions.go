package node

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/coldbell/predictchain/internal/ledger"
)

// transactionRequest is an unsigned transaction. The local node takes the
// signer list on trust instead of verifying signatures.
type transactionRequest struct {
	Signers      []string             `json:"signers"`
	Instructions []instructionRequest `json:"instructions"`
}

type instructionRequest struct {
	ProgramID string               `json:"program_id"`
	Accounts  []accountMetaRequest `json:"accounts"`
	Data      string               `json:"data"`
}

type accountMetaRequest struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

type transactionResponse struct {
	ID      string   `json:"id"`
	Slot    uint64   `json:"slot"`
	Updated []string `json:"updated"`
}

func (req transactionRequest) build() (ledger.Transaction, error) {
	if len(req.Instructions) == 0 {
		return ledger.Transaction{}, errors.New("at least one instruction is required")
	}

	var tx ledger.Transaction
	for _, raw := range req.Signers {
		signer, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
		if err != nil {
			return ledger.Transaction{}, fmt.Errorf("invalid signer %q: %w", raw, err)
		}
		tx.Signers = append(tx.Signers, signer)
	}

	for i, ix := range req.Instructions {
		programID, err := solana.PublicKeyFromBase58(strings.TrimSpace(ix.ProgramID))
		if err != nil {
			return ledger.Transaction{}, fmt.Errorf("instruction %d: invalid program_id: %w", i, err)
		}
		data, err := base64.StdEncoding.DecodeString(ix.Data)
		if err != nil {
			return ledger.Transaction{}, fmt.Errorf("instruction %d: data must be base64: %w", i, err)
		}
		metas := make(solana.AccountMetaSlice, 0, len(ix.Accounts))
		for j, meta := range ix.Accounts {
			key, err := solana.PublicKeyFromBase58(strings.TrimSpace(meta.Pubkey))
			if err != nil {
				return ledger.Transaction{}, fmt.Errorf("instruction %d account %d: %w", i, j, err)
			}
			metas = append(metas, solana.NewAccountMeta(key, meta.IsWritable, meta.IsSigner))
		}
		tx.Instructions = append(tx.Instructions, solana.NewInstruction(programID, metas, data))
	}
	return tx, nil
}

func (s *Service) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}

	var request transactionRequest
	if err := decodeJSONBody(w, r, &request); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := request.build()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := uuid.NewString()
	receipt, err := s.bank.Process(r.Context(), tx)
	if err != nil {
		s.logger.Debug("transaction rejected", "id", id, "err", err)
		s.respondTransactionError(w, err)
		return
	}
	s.logger.Info("transaction committed", "id", id, "slot", receipt.Slot, "updated", len(receipt.Updated))

	updated := make([]string, 0, len(receipt.Updated))
	for _, key := range receipt.Updated {
		updated = append(updated, key.String())
	}
	s.respondJSON(w, http.StatusOK, transactionResponse{ID: id, Slot: receipt.Slot, Updated: updated})
}

func (s *Service) respondTransactionError(w http.ResponseWriter, err error) {
	response := errorResponse{Error: err.Error()}

	var txErr *ledger.TransactionError
	if errors.As(err, &txErr) {
		index := txErr.InstructionIndex
		response.InstructionIndex = &index
		if code, ok := ledger.CustomCode(err); ok {
			response.Code = &code
		}
		s.respondJSON(w, http.StatusUnprocessableEntity, response)
		return
	}

	switch {
	case errors.Is(err, ledger.ErrMissingSignature), errors.Is(err, ledger.ErrEmptyTransaction):
		s.respondJSON(w, http.StatusBadRequest, response)
	default:
		s.logger.Error("process transaction failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to process transaction")
	}
}
