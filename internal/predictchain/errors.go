package predictchain

import (
	"errors"
	"fmt"
)

// Error is a failure reported by the program. The numeric value is the
// custom error code the host surfaces to the submitter; code 0 is the
// generic error of earlier deployments.
type Error uint32

const (
	ErrGeneric Error = iota
	ErrInvalidSideIndex
	ErrInvalidAmount
	ErrIncorrectOwner
	ErrMissingRequiredSignature
	ErrAuthorityMismatch
	ErrInvalidAccountData
	ErrMintFailed
	ErrNotRentExempt
	ErrInvalidInstructionData
	ErrNotEnoughAccountKeys
	ErrInvalidBumpSeed
	ErrUninitializedMarket
	ErrMintMismatch
	ErrAlreadyInitialized
	ErrOverflow
)

var errorText = map[Error]string{
	ErrGeneric:                  "generic error",
	ErrInvalidSideIndex:         "side index must be 0 (yes) or 1 (no)",
	ErrInvalidAmount:            "amount should be more than zero",
	ErrIncorrectOwner:           "account is not owned by the program",
	ErrMissingRequiredSignature: "signature missing in transaction",
	ErrAuthorityMismatch:        "invalid authority account provided",
	ErrInvalidAccountData:       "account data is not a valid market entry",
	ErrMintFailed:               "token mint invocation failed",
	ErrNotRentExempt:            "lamport balance below rent-exempt threshold",
	ErrInvalidInstructionData:   "invalid instruction data",
	ErrNotEnoughAccountKeys:     "not enough account keys",
	ErrInvalidBumpSeed:          "stored bump seed does not derive a market authority",
	ErrUninitializedMarket:      "market mints are not initialized",
	ErrMintMismatch:             "mint account does not match the market",
	ErrAlreadyInitialized:       "market mints are already initialized",
	ErrOverflow:                 "market volume overflow",
}

func (e Error) Error() string {
	if text, ok := errorText[e]; ok {
		return "predictchain: " + text
	}
	return fmt.Sprintf("predictchain: error %d", uint32(e))
}

func (e Error) CustomCode() uint32 {
	return uint32(e)
}

// Code returns the custom code of the first program Error in err's chain.
// Errors raised outside the program map to ErrGeneric.
func Code(err error) uint32 {
	var programErr Error
	if errors.As(err, &programErr) {
		return uint32(programErr)
	}
	return uint32(ErrGeneric)
}
