// Package predictchain is the on-ledger program of a binary-outcome
// prediction market. Purchases mint yes or no outcome tokens under a
// market authority derived from the market address, and accumulate the
// payment into the market's balance and volume.
package predictchain

import (
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/predictchain/internal/ledger"
)

// Processor is the program entry point. programID is the identity the
// program is deployed under; it is injected so the same code can run under
// several identities.
type Processor struct {
	programID solana.PublicKey
	logger    *slog.Logger
}

func New(programID solana.PublicKey, logger *slog.Logger) *Processor {
	return &Processor{
		programID: programID,
		logger:    logger.With("program", programID.String()),
	}
}

func (p *Processor) ProgramID() solana.PublicKey {
	return p.programID
}

func (p *Processor) ProcessInstruction(ctx ledger.InvokeContext, programID solana.PublicKey, accounts []*ledger.AccountInfo, data []byte) error {
	if !programID.Equals(p.programID) {
		p.logger.Error("invoked under a foreign program id", "invoked_as", programID)
		return ErrGeneric
	}

	ix, err := DecodeInstruction(data)
	if err != nil {
		p.logger.Warn("instruction rejected", "err", err)
		return err
	}

	p.logger.Debug("instruction", "opcode", ix.Opcode.String())
	switch ix.Opcode {
	case OpcodeInitializeMarket:
		err = p.initializeMarket(ctx, accounts)
	case OpcodePurchaseShares:
		err = p.purchaseShares(ctx, accounts, ix.Purchase.SideIndex, ix.Purchase.NumTokens)
	}
	if err != nil {
		p.logger.Warn("instruction failed", "opcode", ix.Opcode.String(), "code", Code(err), "err", err)
		return err
	}
	return nil
}
