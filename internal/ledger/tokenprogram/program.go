// Package tokenprogram is the token-minting collaborator of the reference
// host. It executes the MintTo instruction of the SPL token program against
// SPL-compatible mint and holding account layouts.
package tokenprogram

import (
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/coldbell/predictchain/internal/ledger"
)

type Program struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Program {
	return &Program{logger: logger}
}

func (p *Program) ProcessInstruction(_ ledger.InvokeContext, programID solana.PublicKey, accounts []*ledger.AccountInfo, data []byte) error {
	if len(data) == 0 || data[0] != token.Instruction_MintTo {
		return fmt.Errorf("%w: only MintTo is supported", ErrInvalidInstruction)
	}
	// mint, destination, authority
	if len(accounts) < 3 {
		return fmt.Errorf("%w: MintTo expects 3 accounts, got %d", ErrInvalidInstruction, len(accounts))
	}

	metas := make([]*solana.AccountMeta, 0, len(accounts))
	for _, info := range accounts {
		metas = append(metas, solana.NewAccountMeta(info.Key, info.IsWritable, info.IsSigner))
	}
	decoded, err := token.DecodeInstruction(metas, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}

	mintTo, ok := decoded.Impl.(*token.MintTo)
	if !ok || mintTo.Amount == nil {
		return fmt.Errorf("%w: unexpected instruction %T", ErrInvalidInstruction, decoded.Impl)
	}
	return p.mintTo(programID, accounts[0], accounts[1], accounts[2], *mintTo.Amount)
}

func (p *Program) mintTo(programID solana.PublicKey, mintInfo, destInfo, authority *ledger.AccountInfo, amount uint64) error {
	if !mintInfo.Owner.Equals(programID) || !destInfo.Owner.Equals(programID) {
		return fmt.Errorf("%w: mint and destination must be owned by the token program", ErrInvalidState)
	}
	if !mintInfo.IsWritable || !destInfo.IsWritable {
		return fmt.Errorf("%w: mint and destination must be writable", ErrInvalidState)
	}

	mint, err := DecodeMint(mintInfo.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if !mint.IsInitialized {
		return fmt.Errorf("%w: mint %s", ErrUninitializedState, mintInfo.Key)
	}
	dest, err := DecodeAccount(destInfo.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if dest.Mint.IsZero() {
		return fmt.Errorf("%w: token account %s", ErrUninitializedState, destInfo.Key)
	}
	if !dest.Mint.Equals(mintInfo.Key) {
		return fmt.Errorf("%w: account %s holds %s, not %s", ErrMintMismatch, destInfo.Key, dest.Mint, mintInfo.Key)
	}

	if mint.MintAuthority == nil {
		return fmt.Errorf("%w: mint %s", ErrFixedSupply, mintInfo.Key)
	}
	if !mint.MintAuthority.Equals(authority.Key) {
		return fmt.Errorf("%w: mint authority is %s, got %s", ErrOwnerMismatch, mint.MintAuthority, authority.Key)
	}
	if !authority.IsSigner {
		return fmt.Errorf("%w: mint authority %s did not sign", ErrOwnerMismatch, authority.Key)
	}

	supply, carry := bits.Add64(mint.Supply, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	balance, carry := bits.Add64(dest.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	mint.Supply = supply
	dest.Amount = balance

	if err := writeState(mintInfo, mint); err != nil {
		return err
	}
	if err := writeState(destInfo, dest); err != nil {
		return err
	}

	p.logger.Debug("tokens minted",
		"mint", mintInfo.Key,
		"destination", destInfo.Key,
		"amount", amount,
		"supply", supply,
	)
	return nil
}
