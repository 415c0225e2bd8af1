package predictchain

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

type Opcode uint8

const (
	OpcodeInitializeMarket Opcode = iota
	OpcodePurchaseShares
)

func (o Opcode) String() string {
	switch o {
	case OpcodeInitializeMarket:
		return "initialize_market"
	case OpcodePurchaseShares:
		return "purchase_shares"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(o))
	}
}

const (
	SideYes uint8 = 0
	SideNo  uint8 = 1
)

type PurchaseSharesArgs struct {
	// SideIndex is 0 for yes, 1 for no.
	SideIndex uint8
	NumTokens uint64
}

// Instruction is a decoded program instruction. Purchase is set only for
// OpcodePurchaseShares.
type Instruction struct {
	Opcode   Opcode
	Purchase *PurchaseSharesArgs
}

func DecodeInstruction(data []byte) (*Instruction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidInstructionData)
	}

	opcode := Opcode(data[0])
	payload := data[1:]
	switch opcode {
	case OpcodeInitializeMarket:
		if len(payload) != 0 {
			return nil, fmt.Errorf("%w: %s takes no payload, got %d bytes", ErrInvalidInstructionData, opcode, len(payload))
		}
		return &Instruction{Opcode: opcode}, nil
	case OpcodePurchaseShares:
		var args PurchaseSharesArgs
		dec := bin.NewBorshDecoder(payload)
		if err := dec.Decode(&args); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInstructionData, opcode, err)
		}
		if dec.HasRemaining() {
			return nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrInvalidInstructionData, opcode, dec.Remaining())
		}
		return &Instruction{Opcode: opcode, Purchase: &args}, nil
	default:
		return nil, fmt.Errorf("%w: unknown %s", ErrInvalidInstructionData, opcode)
	}
}

func (ix *Instruction) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(ix.Opcode))
	switch ix.Opcode {
	case OpcodeInitializeMarket:
	case OpcodePurchaseShares:
		if ix.Purchase == nil {
			return nil, fmt.Errorf("%w: %s without arguments", ErrInvalidInstructionData, ix.Opcode)
		}
		if err := bin.NewBorshEncoder(buf).Encode(ix.Purchase); err != nil {
			return nil, fmt.Errorf("encode %s: %w", ix.Opcode, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown %s", ErrInvalidInstructionData, ix.Opcode)
	}
	return buf.Bytes(), nil
}

// PurchaseAccounts are the accounts of a purchase in instruction order.
type PurchaseAccounts struct {
	Payer        solana.PublicKey
	Authority    solana.PublicKey
	Market       solana.PublicKey
	YesMint      solana.PublicKey
	NoMint       solana.PublicKey
	Destination  solana.PublicKey
	Payment      solana.PublicKey
	TokenProgram solana.PublicKey
}

func NewPurchaseSharesInstruction(programID solana.PublicKey, accounts PurchaseAccounts, args PurchaseSharesArgs) (solana.Instruction, error) {
	data, err := (&Instruction{Opcode: OpcodePurchaseShares, Purchase: &args}).Marshal()
	if err != nil {
		return nil, err
	}

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Payer, false, true),
		solana.NewAccountMeta(accounts.Authority, false, false),
		solana.NewAccountMeta(accounts.Market, true, false),
		solana.NewAccountMeta(accounts.YesMint, true, false),
		solana.NewAccountMeta(accounts.NoMint, true, false),
		solana.NewAccountMeta(accounts.Destination, true, false),
		solana.NewAccountMeta(accounts.Payment, true, false),
		solana.NewAccountMeta(accounts.TokenProgram, false, false),
	}
	return solana.NewInstruction(programID, metas, data), nil
}

type InitializeAccounts struct {
	Signer  solana.PublicKey
	Market  solana.PublicKey
	YesMint solana.PublicKey
	NoMint  solana.PublicKey
}

func NewInitializeMarketInstruction(programID solana.PublicKey, accounts InitializeAccounts) (solana.Instruction, error) {
	data, err := (&Instruction{Opcode: OpcodeInitializeMarket}).Marshal()
	if err != nil {
		return nil, err
	}

	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Signer, false, true),
		solana.NewAccountMeta(accounts.Market, true, false),
		solana.NewAccountMeta(accounts.YesMint, false, false),
		solana.NewAccountMeta(accounts.NoMint, false, false),
	}
	return solana.NewInstruction(programID, metas, data), nil
}
