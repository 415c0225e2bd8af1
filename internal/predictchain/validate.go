package predictchain

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/predictchain/internal/ledger"
	"github.com/coldbell/predictchain/internal/pda"
)

func (p *Processor) requireOwned(info *ledger.AccountInfo, role string) error {
	if !info.Owner.Equals(p.programID) {
		return fmt.Errorf("%w: %s account %s is owned by %s", ErrIncorrectOwner, role, info.Key, info.Owner)
	}
	return nil
}

func requireSigner(info *ledger.AccountInfo, role string) error {
	if !info.IsSigner {
		return fmt.Errorf("%w: %s %s", ErrMissingRequiredSignature, role, info.Key)
	}
	return nil
}

// marketAuthority re-derives the authority of market from its stored bump.
func (p *Processor) marketAuthority(market solana.PublicKey, bump uint8) (solana.PublicKey, error) {
	authority, err := pda.DeriveAuthority(p.programID, market, bump)
	if err != nil {
		if errors.Is(err, pda.ErrInvalidBumpSeed) {
			return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidBumpSeed, err)
		}
		return solana.PublicKey{}, err
	}
	return authority, nil
}

func (p *Processor) requireAuthority(supplied *ledger.AccountInfo, market solana.PublicKey, bump uint8) error {
	expected, err := p.marketAuthority(market, bump)
	if err != nil {
		return err
	}
	if !supplied.Key.Equals(expected) {
		p.logger.Debug("authority mismatch",
			"market", market,
			"bump_seed", bump,
			"received", supplied.Key,
			"calculated", expected,
		)
		return fmt.Errorf("%w: got %s, want %s", ErrAuthorityMismatch, supplied.Key, expected)
	}
	return nil
}

// purchaseAccounts is the fixed-order account list of a purchase.
type purchaseAccounts struct {
	payer        *ledger.AccountInfo
	authority    *ledger.AccountInfo
	market       *ledger.AccountInfo
	yesMint      *ledger.AccountInfo
	noMint       *ledger.AccountInfo
	destination  *ledger.AccountInfo
	payment      *ledger.AccountInfo
	tokenProgram *ledger.AccountInfo
}

func parsePurchaseAccounts(accounts []*ledger.AccountInfo) (*purchaseAccounts, error) {
	if len(accounts) < 8 {
		return nil, fmt.Errorf("%w: purchase expects 8 accounts, got %d", ErrNotEnoughAccountKeys, len(accounts))
	}
	return &purchaseAccounts{
		payer:        accounts[0],
		authority:    accounts[1],
		market:       accounts[2],
		yesMint:      accounts[3],
		noMint:       accounts[4],
		destination:  accounts[5],
		payment:      accounts[6],
		tokenProgram: accounts[7],
	}, nil
}

// validatePurchase checks ownership and signer flags of a purchase. It
// inspects the accounts only.
func (p *Processor) validatePurchase(accs *purchaseAccounts) error {
	if err := p.requireOwned(accs.market, "market"); err != nil {
		return err
	}
	if err := p.requireOwned(accs.payment, "payment"); err != nil {
		return err
	}
	return requireSigner(accs.payer, "payer")
}
