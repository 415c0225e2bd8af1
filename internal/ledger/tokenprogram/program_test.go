package tokenprogram

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/predictchain/internal/ledger"
)

type fixture struct {
	bank      *ledger.Bank
	authority solana.PublicKey
	mint      solana.PublicKey
	holder    solana.PublicKey
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

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bank, err := ledger.NewBank(ctx, ledger.NewMemoryStore(), ledger.DefaultRent, logger)
	require.NoError(t, err)
	bank.RegisterProgram(solana.TokenProgramID, New(logger))

	keys := generateKeys(t, 4)
	f := &fixture{bank: bank, authority: keys[0], mint: keys[1], holder: keys[2]}

	mint, err := NewMintAccount(bank.Rent(), f.authority, 0)
	require.NoError(t, err)
	require.NoError(t, bank.SetAccount(ctx, f.mint, mint))

	holder, err := NewTokenAccount(bank.Rent(), f.mint, keys[3])
	require.NoError(t, err)
	require.NoError(t, bank.SetAccount(ctx, f.holder, holder))
	return f
}

func (f *fixture) balance(t *testing.T) uint64 {
	t.Helper()
	account, err := f.bank.Account(context.Background(), f.holder)
	require.NoError(t, err)
	state, err := DecodeAccount(account.Data)
	require.NoError(t, err)
	return state.Amount
}

func (f *fixture) supply(t *testing.T) uint64 {
	t.Helper()
	account, err := f.bank.Account(context.Background(), f.mint)
	require.NoError(t, err)
	state, err := DecodeMint(account.Data)
	require.NoError(t, err)
	return state.Supply
}

func mintToInstruction(t *testing.T, amount uint64, mint, destination, authority solana.PublicKey) solana.Instruction {
	t.Helper()
	ix, err := token.NewMintToInstruction(amount, mint, destination, authority, nil).ValidateAndBuild()
	require.NoError(t, err)
	return ix
}

func TestMintTo(t *testing.T) {
	f := setup(t)

	_, err := f.bank.Process(context.Background(), ledger.Transaction{
		Instructions: []solana.Instruction{mintToInstruction(t, 40, f.mint, f.holder, f.authority)},
		Signers:      []solana.PublicKey{f.authority},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 40, f.balance(t))
	assert.EqualValues(t, 40, f.supply(t))

	_, err = f.bank.Process(context.Background(), ledger.Transaction{
		Instructions: []solana.Instruction{mintToInstruction(t, 2, f.mint, f.holder, f.authority)},
		Signers:      []solana.PublicKey{f.authority},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 42, f.balance(t))
	assert.EqualValues(t, 42, f.supply(t))
}

func TestMintTo_WrongAuthority(t *testing.T) {
	f := setup(t)
	impostor := generateKeys(t, 1)[0]

	_, err := f.bank.Process(context.Background(), ledger.Transaction{
		Instructions: []solana.Instruction{mintToInstruction(t, 5, f.mint, f.holder, impostor)},
		Signers:      []solana.PublicKey{impostor},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOwnerMismatch)

	code, ok := ledger.CustomCode(err)
	require.True(t, ok)
	assert.Equal(t, uint32(ErrOwnerMismatch), code)

	assert.Zero(t, f.balance(t))
	assert.Zero(t, f.supply(t))
}

func TestMintTo_MintMismatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other := generateKeys(t, 1)[0]

	otherMint, err := NewMintAccount(f.bank.Rent(), f.authority, 0)
	require.NoError(t, err)
	require.NoError(t, f.bank.SetAccount(ctx, other, otherMint))

	_, err = f.bank.Process(ctx, ledger.Transaction{
		Instructions: []solana.Instruction{mintToInstruction(t, 5, other, f.holder, f.authority)},
		Signers:      []solana.PublicKey{f.authority},
	})
	assert.ErrorIs(t, err, ErrMintMismatch)
	assert.Zero(t, f.balance(t))
}

func TestProcessInstruction_Unsupported(t *testing.T) {
	p := New(slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := p.ProcessInstruction(nil, solana.TokenProgramID, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInstruction)

	err = p.ProcessInstruction(nil, solana.TokenProgramID, nil, []byte{token.Instruction_Transfer})
	assert.ErrorIs(t, err, ErrInvalidInstruction)

	err = p.ProcessInstruction(nil, solana.TokenProgramID, nil, []byte{token.Instruction_MintTo, 1, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}
