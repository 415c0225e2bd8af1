package predictchain

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/predictchain/internal/ledger"
)

func TestInitializeMarket(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.initializeMarket()
	require.NoError(t, err)
	assert.Equal(t, []solana.PublicKey{f.market}, receipt.Updated)

	market := f.loadMarket(t)
	assert.Equal(t, f.bump, market.BumpSeed)
	assert.Equal(t, f.yesMint, market.YesMint)
	assert.Equal(t, f.noMint, market.NoMint)
	assert.Zero(t, market.Volume)
	assert.True(t, market.IsInitialized())
}

func TestInitializeMarket_AlreadyInitialized(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	_, err := f.initializeMarket()
	requireCode(t, err, ErrAlreadyInitialized)
}

func TestInitializeMarket_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		want  Error
	}{
		{
			name: "not rent exempt",
			setup: func(t *testing.T, f *fixture) {
				account, err := f.bank.Account(t.Context(), f.market)
				require.NoError(t, err)
				account.Lamports = f.bank.Rent().MinimumBalance(MarketSizeV1) - 1
				require.NoError(t, f.bank.SetAccount(t.Context(), f.market, account))
			},
			want: ErrNotRentExempt,
		},
		{
			name: "foreign owner",
			setup: func(t *testing.T, f *fixture) {
				account, err := f.bank.Account(t.Context(), f.market)
				require.NoError(t, err)
				account.Owner = solana.SystemProgramID
				require.NoError(t, f.bank.SetAccount(t.Context(), f.market, account))
			},
			want: ErrIncorrectOwner,
		},
		{
			name: "wrong data length",
			setup: func(t *testing.T, f *fixture) {
				account, err := f.bank.Account(t.Context(), f.market)
				require.NoError(t, err)
				account.Data = append(account.Data, 0)
				account.Lamports = f.bank.Rent().MinimumBalance(len(account.Data))
				require.NoError(t, f.bank.SetAccount(t.Context(), f.market, account))
			},
			want: ErrInvalidAccountData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			_, err := f.initializeMarket()
			requireCode(t, err, tt.want)
		})
	}
}

func TestInitializeMarket_MissingSigner(t *testing.T) {
	f := newFixture(t)

	ix, err := NewInitializeMarketInstruction(f.programID, InitializeAccounts{
		Signer:  f.creator,
		Market:  f.market,
		YesMint: f.yesMint,
		NoMint:  f.noMint,
	})
	require.NoError(t, err)
	metas := ix.Accounts()
	metas[0].IsSigner = false

	_, err = f.bank.Process(t.Context(), ledger.Transaction{
		Instructions: []solana.Instruction{solana.NewInstruction(f.programID, metas, mustData(t, ix))},
	})
	requireCode(t, err, ErrMissingRequiredSignature)
	assert.False(t, f.loadMarket(t).IsInitialized())
}
