package pda

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrInvalidBumpSeed    = errors.New("bump seed does not derive a program address")
	ErrCapabilityRedeemed = errors.New("signing capability already redeemed")
	ErrCapabilityProgram  = errors.New("signing capability belongs to another program")
)

// DeriveAuthority returns the market authority: the program address of
// [market, bump] under programID. The address has no private key.
func DeriveAuthority(programID, market solana.PublicKey, bump uint8) (solana.PublicKey, error) {
	pk, err := solana.CreateProgramAddress(authoritySeeds(market, bump), programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: market %s bump %d", ErrInvalidBumpSeed, market, bump)
	}
	return pk, nil
}

// FindAuthority searches for the canonical bump of a market. Market creation
// stores the returned bump in the market entry.
func FindAuthority(programID, market solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{market.Bytes()}, programID)
}

func MustFindAuthority(programID, market solana.PublicKey) (solana.PublicKey, uint8) {
	pk, bump, err := FindAuthority(programID, market)
	if err != nil {
		panic(fmt.Errorf("find market authority: %w", err))
	}
	return pk, bump
}

func authoritySeeds(market solana.PublicKey, bump uint8) [][]byte {
	return [][]byte{market.Bytes(), {bump}}
}

// Capability proves that the holder may sign as a derived authority for a
// single cross-program invocation. The host re-derives the address from the
// seeds with the invoking program id, so a capability granted under one
// program cannot sign for another.
type Capability struct {
	programID solana.PublicKey
	authority solana.PublicKey
	seeds     [][]byte
	redeemed  bool
}

func Grant(programID, market solana.PublicKey, bump uint8) (*Capability, error) {
	authority, err := DeriveAuthority(programID, market, bump)
	if err != nil {
		return nil, err
	}
	return &Capability{
		programID: programID,
		authority: authority,
		seeds:     authoritySeeds(market, bump),
	}, nil
}

func (c *Capability) Authority() solana.PublicKey {
	return c.authority
}

// Redeem consumes the capability on behalf of the invoking program and
// returns the address it signs for.
func (c *Capability) Redeem(invoker solana.PublicKey) (solana.PublicKey, error) {
	if c.redeemed {
		return solana.PublicKey{}, ErrCapabilityRedeemed
	}
	c.redeemed = true

	if !invoker.Equals(c.programID) {
		return solana.PublicKey{}, fmt.Errorf("%w: granted to %s, invoked by %s", ErrCapabilityProgram, c.programID, invoker)
	}
	signer, err := solana.CreateProgramAddress(c.seeds, invoker)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("re-derive capability signer: %w", err)
	}
	if !signer.Equals(c.authority) {
		return solana.PublicKey{}, fmt.Errorf("%w: seeds derive %s, expected %s", ErrCapabilityProgram, signer, c.authority)
	}
	return signer, nil
}
