package predictchain

import (
	"fmt"

	"github.com/coldbell/predictchain/internal/ledger"
)

// initializeMarket records the outcome mints of a pre-created market entry.
// The bump seed is part of the entry's initial bytes and is never written
// here, only checked.
func (p *Processor) initializeMarket(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo) error {
	if len(accounts) < 4 {
		return fmt.Errorf("%w: initialize expects 4 accounts, got %d", ErrNotEnoughAccountKeys, len(accounts))
	}
	signer, marketInfo, yesMint, noMint := accounts[0], accounts[1], accounts[2], accounts[3]

	if err := requireSigner(signer, "signer"); err != nil {
		return err
	}
	if err := p.requireOwned(marketInfo, "market"); err != nil {
		return err
	}
	if minimum := ctx.MinimumBalance(len(marketInfo.Data)); marketInfo.Lamports < minimum {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrNotRentExempt, marketInfo.Key, marketInfo.Lamports, minimum)
	}

	market, err := UnpackMarket(marketInfo.Data)
	if err != nil {
		return err
	}
	if _, err := p.marketAuthority(marketInfo.Key, market.BumpSeed); err != nil {
		return err
	}
	if market.IsInitialized() {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, marketInfo.Key)
	}

	market.YesMint = yesMint.Key
	market.NoMint = noMint.Key
	if err := market.Pack(marketInfo.Data); err != nil {
		return err
	}

	p.logger.Info("market initialized",
		"market", marketInfo.Key,
		"yes_mint", market.YesMint,
		"no_mint", market.NoMint,
	)
	return nil
}
