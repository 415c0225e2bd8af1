package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var loaderProgramID = solana.MustPublicKeyFromBase58("BPFLoaderUpgradeab1e11111111111111111111111")

// Program is an instruction processor registered with the bank.
type Program interface {
	ProcessInstruction(ctx InvokeContext, programID solana.PublicKey, accounts []*AccountInfo, data []byte) error
}

type ProgramFunc func(ctx InvokeContext, programID solana.PublicKey, accounts []*AccountInfo, data []byte) error

func (f ProgramFunc) ProcessInstruction(ctx InvokeContext, programID solana.PublicKey, accounts []*AccountInfo, data []byte) error {
	return f(ctx, programID, accounts, data)
}

// Transaction is a list of instructions executed as one unit. Signers lists
// the keys whose signatures the submitter vouches for.
type Transaction struct {
	Instructions []solana.Instruction
	Signers      []solana.PublicKey
}

type Receipt struct {
	Slot    uint64
	Updated []solana.PublicKey
}

type Update struct {
	Slot    uint64
	Key     solana.PublicKey
	Account *Account
}

// Bank executes transactions against an AccountStore. Transactions are
// serialized: at most one executes or commits at a time.
type Bank struct {
	mu       sync.Mutex
	store    AccountStore
	rent     Rent
	logger   *slog.Logger
	programs map[solana.PublicKey]Program
	slot     uint64

	subsMu      sync.Mutex
	subscribers map[int]chan Update
	nextSubID   int
}

func NewBank(ctx context.Context, store AccountStore, rent Rent, logger *slog.Logger) (*Bank, error) {
	slot, err := store.LatestSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest slot: %w", err)
	}
	return &Bank{
		store:       store,
		rent:        rent,
		logger:      logger,
		programs:    make(map[solana.PublicKey]Program),
		slot:        slot,
		subscribers: make(map[int]chan Update),
	}, nil
}

func (b *Bank) RegisterProgram(programID solana.PublicKey, program Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.programs[programID] = program
}

func (b *Bank) Rent() Rent {
	return b.rent
}

func (b *Bank) Slot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot
}

func (b *Bank) Account(ctx context.Context, key solana.PublicKey) (*Account, error) {
	loaded, err := b.store.Load(ctx, []solana.PublicKey{key})
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", key, err)
	}
	account, ok := loaded[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return account, nil
}

// Balance returns the lamports of key; an address never written holds zero.
func (b *Bank) Balance(ctx context.Context, key solana.PublicKey) (uint64, error) {
	loaded, err := b.store.Load(ctx, []solana.PublicKey{key})
	if err != nil {
		return 0, fmt.Errorf("load account %s: %w", key, err)
	}
	if account, ok := loaded[key]; ok {
		return account.Lamports, nil
	}
	return 0, nil
}

// SetAccount writes an account outside of any transaction. It stands in for
// the account creation and funding steps of the host.
func (b *Bank) SetAccount(ctx context.Context, key solana.PublicKey, account *Account) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot := b.slot + 1
	if err := b.store.Commit(ctx, slot, map[solana.PublicKey]*Account{key: account}); err != nil {
		return fmt.Errorf("commit account %s: %w", key, err)
	}
	b.slot = slot
	b.publish(slot, map[solana.PublicKey]*Account{key: account})
	return nil
}

// Process executes tx. Either every instruction succeeds and all writable
// accounts are committed, or nothing is committed.
func (b *Bank) Process(ctx context.Context, tx Transaction) (*Receipt, error) {
	if len(tx.Instructions) == 0 {
		return nil, ErrEmptyTransaction
	}

	signers := make(map[solana.PublicKey]bool, len(tx.Signers))
	for _, signer := range tx.Signers {
		signers[signer] = true
	}

	keys := make([]solana.PublicKey, 0, 8)
	writable := make(map[solana.PublicKey]bool)
	seen := make(map[solana.PublicKey]struct{})
	addKey := func(key solana.PublicKey) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, ix := range tx.Instructions {
		addKey(ix.ProgramID())
		for _, meta := range ix.Accounts() {
			if meta.IsSigner && !signers[meta.PublicKey] {
				return nil, fmt.Errorf("%w: %s", ErrMissingSignature, meta.PublicKey)
			}
			if meta.IsWritable {
				writable[meta.PublicKey] = true
			}
			addKey(meta.PublicKey)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	loaded, err := b.store.Load(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load transaction accounts: %w", err)
	}

	working := make(map[solana.PublicKey]*Account, len(keys))
	for _, key := range keys {
		switch {
		case b.programs[key] != nil:
			working[key] = &Account{Owner: loaderProgramID, Executable: true}
		case loaded[key] != nil:
			working[key] = loaded[key].Clone()
		default:
			working[key] = newDefaultAccount()
		}
	}

	for index, ix := range tx.Instructions {
		data, err := ix.Data()
		if err != nil {
			return nil, &TransactionError{InstructionIndex: index, Err: fmt.Errorf("encode instruction data: %w", err)}
		}

		metas := ix.Accounts()
		infos := make([]*AccountInfo, 0, len(metas))
		for _, meta := range metas {
			account := working[meta.PublicKey]
			infos = append(infos, &AccountInfo{
				Key:        meta.PublicKey,
				IsSigner:   signers[meta.PublicKey],
				IsWritable: writable[meta.PublicKey] && !account.Executable,
				Account:    account,
			})
		}

		if err := b.invoke(ix.ProgramID(), infos, data, 1); err != nil {
			b.logger.Warn("transaction failed",
				"instruction", index,
				"program", ix.ProgramID(),
				"err", err,
			)
			return nil, &TransactionError{InstructionIndex: index, Err: err}
		}
	}

	changed := make(map[solana.PublicKey]*Account)
	for _, key := range keys {
		account := working[key]
		if account.Executable || !writable[key] {
			continue
		}
		if prev, ok := loaded[key]; ok && prev.Equal(account) {
			continue
		}
		if _, ok := loaded[key]; !ok && account.Equal(newDefaultAccount()) {
			continue
		}
		changed[key] = account
	}

	slot := b.slot + 1
	if len(changed) > 0 {
		if err := b.store.Commit(ctx, slot, changed); err != nil {
			return nil, fmt.Errorf("commit transaction: %w", err)
		}
	}
	b.slot = slot
	b.publish(slot, changed)

	updated := make([]solana.PublicKey, 0, len(changed))
	for _, key := range keys {
		if _, ok := changed[key]; ok {
			updated = append(updated, key)
		}
	}

	b.logger.Debug("transaction committed",
		"slot", slot,
		"instructions", len(tx.Instructions),
		"updated", len(updated),
	)
	return &Receipt{Slot: slot, Updated: updated}, nil
}

// Subscribe registers for committed account updates. The returned function
// unregisters and closes the channel. Updates are dropped for a subscriber
// whose buffer is full.
func (b *Bank) Subscribe(buffer int) (<-chan Update, func()) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	ch := make(chan Update, buffer)
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.subsMu.Lock()
			defer b.subsMu.Unlock()
			delete(b.subscribers, id)
			close(ch)
		})
	}
}

func (b *Bank) publish(slot uint64, accounts map[solana.PublicKey]*Account) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	for key, account := range accounts {
		for id, ch := range b.subscribers {
			select {
			case ch <- Update{Slot: slot, Key: key, Account: account.Clone()}:
			default:
				b.logger.Warn("dropping account update for slow subscriber", "subscriber", id, "account", key)
			}
		}
	}
}
