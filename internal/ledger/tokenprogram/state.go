package tokenprogram

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/coldbell/predictchain/internal/ledger"
)

func DecodeMint(data []byte) (*token.Mint, error) {
	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return nil, fmt.Errorf("decode mint: %w", err)
	}
	return &mint, nil
}

func DecodeAccount(data []byte) (*token.Account, error) {
	var account token.Account
	if err := bin.NewBinDecoder(data).Decode(&account); err != nil {
		return nil, fmt.Errorf("decode token account: %w", err)
	}
	return &account, nil
}

func encode(v any) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBinEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewMintAccount builds a rent-exempt, initialized mint owned by the token
// program whose supply can only be increased by authority.
func NewMintAccount(rent ledger.Rent, authority solana.PublicKey, decimals uint8) (*ledger.Account, error) {
	data, err := encode(&token.Mint{
		MintAuthority: &authority,
		Decimals:      decimals,
		IsInitialized: true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode mint: %w", err)
	}
	return &ledger.Account{
		Owner:    solana.TokenProgramID,
		Lamports: rent.MinimumBalance(len(data)),
		Data:     data,
	}, nil
}

// NewTokenAccount builds an empty holding account of mint for owner.
func NewTokenAccount(rent ledger.Rent, mint, owner solana.PublicKey) (*ledger.Account, error) {
	data, err := encode(&token.Account{
		Mint:  mint,
		Owner: owner,
	})
	if err != nil {
		return nil, fmt.Errorf("encode token account: %w", err)
	}
	return &ledger.Account{
		Owner:    solana.TokenProgramID,
		Lamports: rent.MinimumBalance(len(data)),
		Data:     data,
	}, nil
}

func writeState(info *ledger.AccountInfo, v any) error {
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if len(data) != len(info.Data) {
		return fmt.Errorf("%w: encoded %d bytes into %d-byte account %s", ErrInvalidState, len(data), len(info.Data), info.Key)
	}
	copy(info.Data, data)
	return nil
}
