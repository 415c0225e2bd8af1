package predictchain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/coldbell/predictchain/internal/ledger"
	"github.com/coldbell/predictchain/internal/pda"
)

type mintRequest struct {
	tokenProgram *ledger.AccountInfo
	mint         *ledger.AccountInfo
	destination  *ledger.AccountInfo
	authority    *ledger.AccountInfo
	amount       uint64
	market       solana.PublicKey
	bump         uint8
}

// mintShares mints req.amount of req.mint to req.destination, signed by the
// market authority through a capability granted for this one call.
func (p *Processor) mintShares(ctx ledger.InvokeContext, req mintRequest) error {
	capability, err := pda.Grant(p.programID, req.market, req.bump)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBumpSeed, err)
	}

	built, err := token.NewMintToInstruction(
		req.amount,
		req.mint.Key,
		req.destination.Key,
		req.authority.Key,
		nil,
	).ValidateAndBuild()
	if err != nil {
		return fmt.Errorf("%w: build mint_to: %v", ErrMintFailed, err)
	}
	data, err := built.Data()
	if err != nil {
		return fmt.Errorf("%w: encode mint_to: %v", ErrMintFailed, err)
	}
	ix := solana.NewInstruction(req.tokenProgram.Key, built.Accounts(), data)

	if err := ctx.InvokeSigned(ix, capability); err != nil {
		return fmt.Errorf("%w: %w", ErrMintFailed, err)
	}
	return nil
}
