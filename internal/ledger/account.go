package ledger

import (
	"bytes"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// Account is the persisted state of one ledger address.
type Account struct {
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Data = append([]byte(nil), a.Data...)
	return &out
}

func (a *Account) Equal(other *Account) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Owner.Equals(other.Owner) &&
		a.Lamports == other.Lamports &&
		a.Executable == other.Executable &&
		bytes.Equal(a.Data, other.Data)
}

func (a *Account) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("owner", a.Owner.String()),
		slog.Uint64("lamports", a.Lamports),
		slog.Int("data_len", len(a.Data)),
	)
}

// AccountInfo is the view of an account handed to a program for one
// invocation. Entries for the same key share the underlying *Account, so a
// change made through one entry is visible through every other entry and to
// nested invocations.
type AccountInfo struct {
	Key        solana.PublicKey
	IsSigner   bool
	IsWritable bool
	*Account
}

func newDefaultAccount() *Account {
	return &Account{Owner: solana.SystemProgramID}
}
