package predictchain

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/predictchain/internal/ledger"
	"github.com/coldbell/predictchain/internal/ledger/tokenprogram"
	"github.com/coldbell/predictchain/internal/pda"
)

const testPayment = 50_000_000

type fixture struct {
	bank      *ledger.Bank
	programID solana.PublicKey
	creator   solana.PublicKey
	payer     solana.PublicKey
	market    solana.PublicKey
	authority solana.PublicKey
	bump      uint8
	yesMint   solana.PublicKey
	noMint    solana.PublicKey
	yesHolder solana.PublicKey
	noHolder  solana.PublicKey
	payment   solana.PublicKey
}

func generateKeys(t *testing.T, n int) []solana.PublicKey {
	t.Helper()
	keys := make([]solana.PublicKey, n)
	for i := range keys {
		priv, err := solana.NewRandomPrivateKey()
		require.NoError(t, err)
		keys[i] = priv.PublicKey()
	}
	return keys
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture creates an uninitialized, rent-funded market entry whose bump
// derives the authority configured on both outcome mints, plus one holding
// account per mint and a funded payment account.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()

	bank, err := ledger.NewBank(ctx, ledger.NewMemoryStore(), ledger.DefaultRent, logger)
	require.NoError(t, err)

	keys := generateKeys(t, 10)
	f := &fixture{
		bank:      bank,
		programID: keys[0],
		creator:   keys[1],
		payer:     keys[2],
		market:    keys[3],
		yesMint:   keys[4],
		noMint:    keys[5],
		yesHolder: keys[6],
		noHolder:  keys[7],
		payment:   keys[8],
	}
	bank.RegisterProgram(solana.TokenProgramID, tokenprogram.New(logger))
	bank.RegisterProgram(f.programID, New(f.programID, logger))

	f.authority, f.bump = pda.MustFindAuthority(f.programID, f.market)

	entry, err := (&Market{BumpSeed: f.bump}).Marshal()
	require.NoError(t, err)
	require.NoError(t, bank.SetAccount(ctx, f.market, &ledger.Account{
		Owner:    f.programID,
		Lamports: bank.Rent().MinimumBalance(MarketSizeV1),
		Data:     entry,
	}))

	for _, mint := range []solana.PublicKey{f.yesMint, f.noMint} {
		account, err := tokenprogram.NewMintAccount(bank.Rent(), f.authority, 0)
		require.NoError(t, err)
		require.NoError(t, bank.SetAccount(ctx, mint, account))
	}
	holders := map[solana.PublicKey]solana.PublicKey{f.yesHolder: f.yesMint, f.noHolder: f.noMint}
	for holder, mint := range holders {
		account, err := tokenprogram.NewTokenAccount(bank.Rent(), mint, keys[9])
		require.NoError(t, err)
		require.NoError(t, bank.SetAccount(ctx, holder, account))
	}

	f.fundPayment(t, testPayment)
	return f
}

func (f *fixture) fundPayment(t *testing.T, lamports uint64) {
	t.Helper()
	require.NoError(t, f.bank.SetAccount(context.Background(), f.payment, &ledger.Account{
		Owner:    f.programID,
		Lamports: lamports,
	}))
}

func (f *fixture) initialize(t *testing.T) {
	t.Helper()
	_, err := f.initializeMarket()
	require.NoError(t, err)
}

func (f *fixture) initializeMarket() (*ledger.Receipt, error) {
	ix, err := NewInitializeMarketInstruction(f.programID, InitializeAccounts{
		Signer:  f.creator,
		Market:  f.market,
		YesMint: f.yesMint,
		NoMint:  f.noMint,
	})
	if err != nil {
		return nil, err
	}
	return f.bank.Process(context.Background(), ledger.Transaction{
		Instructions: []solana.Instruction{ix},
		Signers:      []solana.PublicKey{f.creator},
	})
}

func (f *fixture) purchaseAccounts(side uint8) PurchaseAccounts {
	destination := f.noHolder
	if side == SideYes {
		destination = f.yesHolder
	}
	return PurchaseAccounts{
		Payer:        f.payer,
		Authority:    f.authority,
		Market:       f.market,
		YesMint:      f.yesMint,
		NoMint:       f.noMint,
		Destination:  destination,
		Payment:      f.payment,
		TokenProgram: solana.TokenProgramID,
	}
}

func (f *fixture) purchase(accounts PurchaseAccounts, side uint8, numTokens uint64) error {
	ix, err := NewPurchaseSharesInstruction(f.programID, accounts, PurchaseSharesArgs{
		SideIndex: side,
		NumTokens: numTokens,
	})
	if err != nil {
		return err
	}
	_, err = f.bank.Process(context.Background(), ledger.Transaction{
		Instructions: []solana.Instruction{ix},
		Signers:      []solana.PublicKey{accounts.Payer},
	})
	return err
}

// snapshot is the observable state a purchase may change.
type snapshot struct {
	yesBalance     uint64
	noBalance      uint64
	yesSupply      uint64
	noSupply       uint64
	marketLamports uint64
	volume         uint64
	payment        uint64
}

func (f *fixture) snapshot(t *testing.T) snapshot {
	t.Helper()
	ctx := context.Background()

	holderBalance := func(key solana.PublicKey) uint64 {
		account, err := f.bank.Account(ctx, key)
		require.NoError(t, err)
		state, err := tokenprogram.DecodeAccount(account.Data)
		require.NoError(t, err)
		return state.Amount
	}
	supply := func(key solana.PublicKey) uint64 {
		account, err := f.bank.Account(ctx, key)
		require.NoError(t, err)
		state, err := tokenprogram.DecodeMint(account.Data)
		require.NoError(t, err)
		return state.Supply
	}

	marketAccount, err := f.bank.Account(ctx, f.market)
	require.NoError(t, err)
	market, err := UnpackMarket(marketAccount.Data)
	require.NoError(t, err)

	payment, err := f.bank.Balance(ctx, f.payment)
	require.NoError(t, err)

	return snapshot{
		yesBalance:     holderBalance(f.yesHolder),
		noBalance:      holderBalance(f.noHolder),
		yesSupply:      supply(f.yesMint),
		noSupply:       supply(f.noMint),
		marketLamports: marketAccount.Lamports,
		volume:         market.Volume,
		payment:        payment,
	}
}

func (f *fixture) loadMarket(t *testing.T) *Market {
	t.Helper()
	account, err := f.bank.Account(context.Background(), f.market)
	require.NoError(t, err)
	market, err := UnpackMarket(account.Data)
	require.NoError(t, err)
	return market
}
