package predictchain

import (
	"fmt"
	"math/bits"

	"github.com/coldbell/predictchain/internal/ledger"
)

// purchaseShares mints numTokens outcome tokens of one side to the
// destination and sweeps the payment account into the market. Every check
// runs before the first mutation; the host discards the working copy if a
// later step fails.
func (p *Processor) purchaseShares(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, sideIndex uint8, numTokens uint64) error {
	if sideIndex > SideNo {
		return fmt.Errorf("%w: %d", ErrInvalidSideIndex, sideIndex)
	}
	if numTokens == 0 {
		return fmt.Errorf("%w: num_tokens must be positive", ErrInvalidAmount)
	}

	accs, err := parsePurchaseAccounts(accounts)
	if err != nil {
		return err
	}
	if err := p.validatePurchase(accs); err != nil {
		return err
	}

	market, err := UnpackMarket(accs.market.Data)
	if err != nil {
		return err
	}
	if err := p.requireAuthority(accs.authority, accs.market.Key, market.BumpSeed); err != nil {
		return err
	}
	if !market.IsInitialized() {
		return fmt.Errorf("%w: %s", ErrUninitializedMarket, accs.market.Key)
	}
	if !accs.yesMint.Key.Equals(market.YesMint) || !accs.noMint.Key.Equals(market.NoMint) {
		return fmt.Errorf("%w: market %s", ErrMintMismatch, accs.market.Key)
	}

	want, err := market.MintFor(sideIndex)
	if err != nil {
		return err
	}
	mint := accs.yesMint
	if !mint.Key.Equals(want) {
		mint = accs.noMint
	}
	p.logger.Debug("purchase_shares",
		"market", accs.market.Key,
		"side", sideIndex,
		"num_tokens", numTokens,
		"mint", mint.Key,
	)

	if err := p.mintShares(ctx, mintRequest{
		tokenProgram: accs.tokenProgram,
		mint:         mint,
		destination:  accs.destination,
		authority:    accs.authority,
		amount:       numTokens,
		market:       accs.market.Key,
		bump:         market.BumpSeed,
	}); err != nil {
		return err
	}

	paid := accs.payment.Lamports
	volume, carry := bits.Add64(market.Volume, paid, 0)
	if carry != 0 {
		return fmt.Errorf("%w: volume %d + payment %d", ErrOverflow, market.Volume, paid)
	}
	market.Volume = volume
	if err := market.Pack(accs.market.Data); err != nil {
		return err
	}

	balance, carry := bits.Add64(accs.market.Lamports, paid, 0)
	if carry != 0 {
		return fmt.Errorf("%w: market balance %d + payment %d", ErrOverflow, accs.market.Lamports, paid)
	}
	accs.market.Lamports = balance
	accs.payment.Lamports = 0

	p.logger.Info("shares purchased",
		"market", accs.market.Key,
		"side", sideIndex,
		"num_tokens", numTokens,
		"paid", paid,
		"volume", market.Volume,
	)
	return nil
}
