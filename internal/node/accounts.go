package node

import (
	"encoding/base64"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/coldbell/predictchain/internal/ledger"
	"github.com/coldbell/predictchain/internal/pda"
	"github.com/coldbell/predictchain/internal/predictchain"
)

type accountResponse struct {
	Pubkey     string `json:"pubkey"`
	Owner      string `json:"owner"`
	Lamports   uint64 `json:"lamports"`
	Executable bool   `json:"executable"`
	Data       string `json:"data"`
}

type marketResponse struct {
	Pubkey           string `json:"pubkey"`
	Layout           string `json:"layout"`
	BumpSeed         uint8  `json:"bump_seed"`
	Authority        string `json:"authority,omitempty"`
	ResolveAuthority string `json:"resolve_authority"`
	YesMint          string `json:"yes_mint"`
	NoMint           string `json:"no_mint"`
	Volume           uint64 `json:"volume"`
	VolumeSOL        string `json:"volume_sol"`
	Lamports         uint64 `json:"lamports"`
	Initialized      bool   `json:"initialized"`
}

// setAccountRequest writes an account directly. The local node uses it in
// place of the host's account creation and funding.
type setAccountRequest struct {
	Pubkey     string `json:"pubkey"`
	Owner      string `json:"owner"`
	Lamports   uint64 `json:"lamports"`
	Data       string `json:"data"`
	Executable bool   `json:"executable"`
}

func newAccountResponse(key solana.PublicKey, account *ledger.Account) accountResponse {
	return accountResponse{
		Pubkey:     key.String(),
		Owner:      account.Owner.String(),
		Lamports:   account.Lamports,
		Executable: account.Executable,
		Data:       base64.StdEncoding.EncodeToString(account.Data),
	}
}

var errNotMarket = errors.New("account is not a market owned by the program")

func (s *Service) newMarketResponse(key solana.PublicKey, account *ledger.Account) (marketResponse, error) {
	if !account.Owner.Equals(s.cfg.ProgramID) {
		return marketResponse{}, errNotMarket
	}
	market, err := predictchain.UnpackMarket(account.Data)
	if err != nil {
		return marketResponse{}, err
	}

	out := marketResponse{
		Pubkey:           key.String(),
		Layout:           "v1",
		BumpSeed:         market.BumpSeed,
		ResolveAuthority: market.ResolveAuthority.String(),
		YesMint:          market.YesMint.String(),
		NoMint:           market.NoMint.String(),
		Volume:           market.Volume,
		VolumeSOL:        lamportsToSOL(market.Volume),
		Lamports:         account.Lamports,
		Initialized:      market.IsInitialized(),
	}
	if authority, err := pda.DeriveAuthority(s.cfg.ProgramID, key, market.BumpSeed); err == nil {
		out.Authority = authority.String()
	}
	return out, nil
}

const lamportsPerSOLExp = -9

func lamportsToSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), lamportsPerSOLExp).String()
}

func (s *Service) loadAccount(w http.ResponseWriter, r *http.Request) (solana.PublicKey, *ledger.Account, bool) {
	key, err := parsePubkeyPath(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return solana.PublicKey{}, nil, false
	}
	account, err := s.bank.Account(r.Context(), key)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			s.respondError(w, http.StatusNotFound, "account not found")
			return solana.PublicKey{}, nil, false
		}
		s.logger.Error("load account failed", "pubkey", key, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load account")
		return solana.PublicKey{}, nil, false
	}
	return key, account, true
}

func (s *Service) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	key, account, ok := s.loadAccount(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, newAccountResponse(key, account))
}

func (s *Service) handleMarket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	key, account, ok := s.loadAccount(w, r)
	if !ok {
		return
	}
	market, err := s.newMarketResponse(key, account)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, market)
}

func (s *Service) handleSetAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondMethodNotAllowed(w)
		return
	}

	var request setAccountRequest
	if err := decodeJSONBody(w, r, &request); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(request.Pubkey))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid pubkey")
		return
	}
	owner := solana.SystemProgramID
	if raw := strings.TrimSpace(request.Owner); raw != "" {
		owner, err = solana.PublicKeyFromBase58(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid owner")
			return
		}
	}
	data, err := base64.StdEncoding.DecodeString(request.Data)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "data must be base64")
		return
	}

	account := &ledger.Account{
		Owner:      owner,
		Lamports:   request.Lamports,
		Data:       data,
		Executable: request.Executable,
	}
	if err := s.bank.SetAccount(r.Context(), key, account); err != nil {
		s.logger.Error("set account failed", "pubkey", key, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to set account")
		return
	}
	s.logger.Info("account set", "pubkey", key, "account", account)
	s.respondJSON(w, http.StatusOK, newAccountResponse(key, account))
}
