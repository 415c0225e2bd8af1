// Package node serves a local PredictChain ledger over HTTP: account and
// market reads, transaction submission and a websocket stream of committed
// account updates.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/predictchain/internal/config"
	"github.com/coldbell/predictchain/internal/ledger"
	"github.com/coldbell/predictchain/internal/ledger/postgres"
	"github.com/coldbell/predictchain/internal/ledger/tokenprogram"
	"github.com/coldbell/predictchain/internal/predictchain"
)

type Service struct {
	cfg              config.NodeConfig
	logger           *slog.Logger
	store            ledger.AccountStore
	bank             *ledger.Bank
	pingInterval     time.Duration
	allowAllOrigins  bool
	allowedOriginSet map[string]struct{}
}

// New opens the configured account store and builds a bank with the token
// program and the PredictChain program registered.
func New(ctx context.Context, cfg config.NodeConfig, logger *slog.Logger) (*Service, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bank, err := NewBank(ctx, cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return NewWithBank(cfg, store, bank, logger), nil
}

func NewWithBank(cfg config.NodeConfig, store ledger.AccountStore, bank *ledger.Bank, logger *slog.Logger) *Service {
	allowAllOrigins := false
	allowedOriginSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAllOrigins = true
			continue
		}
		allowedOriginSet[trimmed] = struct{}{}
	}
	if len(allowedOriginSet) == 0 && !allowAllOrigins {
		allowAllOrigins = true
	}

	return &Service{
		cfg:              cfg,
		logger:           logger,
		store:            store,
		bank:             bank,
		pingInterval:     defaultPingInterval,
		allowAllOrigins:  allowAllOrigins,
		allowedOriginSet: allowedOriginSet,
	}
}

func NewBank(ctx context.Context, cfg config.NodeConfig, store ledger.AccountStore, logger *slog.Logger) (*ledger.Bank, error) {
	rent := ledger.Rent{
		LamportsPerByteYear:     cfg.Rent.LamportsPerByteYear,
		ExemptionThresholdYears: cfg.Rent.ExemptionThresholdYears,
	}
	bank, err := ledger.NewBank(ctx, store, rent, logger)
	if err != nil {
		return nil, fmt.Errorf("init bank: %w", err)
	}
	bank.RegisterProgram(solana.TokenProgramID, tokenprogram.New(logger))
	bank.RegisterProgram(cfg.ProgramID, predictchain.New(cfg.ProgramID, logger))
	return bank, nil
}

func openStore(ctx context.Context, cfg config.NodeConfig) (ledger.AccountStore, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		return store, nil
	case config.StoreMemory, "":
		return ledger.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/accounts", s.handleSetAccount)
	mux.HandleFunc("/v1/accounts/{pubkey}", s.handleAccount)
	mux.HandleFunc("/v1/markets/{pubkey}", s.handleMarket)
	mux.HandleFunc("/v1/transactions", s.handleTransactions)
	mux.HandleFunc("/ws", s.handleWebsocket)
	return s.withCORS(mux)
}

func (s *Service) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("failed to close store", "err", err)
		}
	}()

	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("predictchain-node started",
		"listen_addr", s.cfg.ListenAddr,
		"program_id", s.cfg.ProgramID,
		"store_driver", string(s.cfg.StoreDriver),
		"slot", s.bank.Slot(),
		"allowed_origins", strings.Join(s.cfg.AllowedOrigins, ","),
	)

	select {
	case <-ctx.Done():
		s.logger.Info("predictchain-node stopping")
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown predictchain-node: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

type healthResponse struct {
	OK   bool   `json:"ok"`
	Slot uint64 `json:"slot"`
}

type errorResponse struct {
	Error            string  `json:"error"`
	Code             *uint32 `json:"code,omitempty"`
	InstructionIndex *int    `json:"instruction_index,omitempty"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	s.respondJSON(w, http.StatusOK, healthResponse{OK: true, Slot: s.bank.Slot()})
}

func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" && s.isOriginAllowed(origin) {
			if s.allowAllOrigins {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "300")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) isOriginAllowed(origin string) bool {
	if origin == "" || s.allowAllOrigins {
		return true
	}
	_, ok := s.allowedOriginSet[origin]
	return ok
}

func parsePubkeyPath(r *http.Request) (solana.PublicKey, error) {
	raw := strings.TrimSpace(r.PathValue("pubkey"))
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid pubkey %q: %w", raw, err)
	}
	return key, nil
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Service) respondMethodNotAllowed(w http.ResponseWriter) {
	s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Service) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, errorResponse{Error: message})
}

func (s *Service) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}
