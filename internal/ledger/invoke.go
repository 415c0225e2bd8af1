package ledger

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/predictchain/internal/pda"
)

const maxInvokeDepth = 4

// InvokeContext is the host surface available to a running program.
type InvokeContext interface {
	// InvokeSigned runs ix as a cross-program invocation. A non-nil
	// capability is redeemed and its derived authority signs the invocation.
	InvokeSigned(ix solana.Instruction, capability *pda.Capability) error
	// MinimumBalance is the rent-exempt balance for dataLen bytes of data.
	MinimumBalance(dataLen int) uint64
}

type invocation struct {
	bank      *Bank
	programID solana.PublicKey
	accounts  []*AccountInfo
	before    map[solana.PublicKey]*Account
	depth     int
}

func (b *Bank) invoke(programID solana.PublicKey, accounts []*AccountInfo, data []byte, depth int) error {
	if depth > maxInvokeDepth {
		return ErrCallDepth
	}
	program, ok := b.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, programID)
	}

	inv := &invocation{
		bank:      b,
		programID: programID,
		accounts:  accounts,
		before:    snapshot(accounts),
		depth:     depth,
	}
	if err := program.ProcessInstruction(inv, programID, accounts, data); err != nil {
		return err
	}
	return inv.verify()
}

func (inv *invocation) MinimumBalance(dataLen int) uint64 {
	return inv.bank.rent.MinimumBalance(dataLen)
}

func (inv *invocation) InvokeSigned(ix solana.Instruction, capability *pda.Capability) error {
	// changes made by the caller so far are checked under the caller's rules
	// before the callee sees the accounts
	if err := inv.verify(); err != nil {
		return err
	}

	var derivedSigner *solana.PublicKey
	if capability != nil {
		signer, err := capability.Redeem(inv.programID)
		if err != nil {
			return err
		}
		derivedSigner = &signer
	}

	calleeID := ix.ProgramID()
	if inv.find(calleeID) == nil {
		return fmt.Errorf("%w: program %s", ErrMissingAccount, calleeID)
	}

	metas := ix.Accounts()
	infos := make([]*AccountInfo, 0, len(metas))
	for _, meta := range metas {
		caller := inv.find(meta.PublicKey)
		if caller == nil {
			return fmt.Errorf("%w: %s", ErrMissingAccount, meta.PublicKey)
		}
		isSigner := caller.IsSigner || (derivedSigner != nil && derivedSigner.Equals(meta.PublicKey))
		if meta.IsSigner && !isSigner {
			return fmt.Errorf("%w: %s requested as signer", ErrPrivilegeEscalation, meta.PublicKey)
		}
		if meta.IsWritable && !caller.IsWritable {
			return fmt.Errorf("%w: %s requested as writable", ErrPrivilegeEscalation, meta.PublicKey)
		}
		infos = append(infos, &AccountInfo{
			Key:        meta.PublicKey,
			IsSigner:   isSigner && meta.IsSigner,
			IsWritable: meta.IsWritable,
			Account:    caller.Account,
		})
	}

	data, err := ix.Data()
	if err != nil {
		return fmt.Errorf("encode instruction data: %w", err)
	}
	if err := inv.bank.invoke(calleeID, infos, data, inv.depth+1); err != nil {
		return err
	}

	inv.before = snapshot(inv.accounts)
	return nil
}

func (inv *invocation) find(key solana.PublicKey) *AccountInfo {
	for _, info := range inv.accounts {
		if info.Key.Equals(key) {
			return info
		}
	}
	return nil
}

// verify applies the host's account rules to everything the running program
// changed since the invocation started or the last cross-program call
// returned.
func (inv *invocation) verify() error {
	var sumBefore, sumAfter, carry uint64
	checked := make(map[solana.PublicKey]struct{}, len(inv.before))

	for _, info := range inv.accounts {
		if _, ok := checked[info.Key]; ok {
			continue
		}
		checked[info.Key] = struct{}{}

		pre := inv.before[info.Key]
		post := info.Account

		if !post.Owner.Equals(pre.Owner) {
			return fmt.Errorf("%w: %s", ErrOwnerModified, info.Key)
		}
		if pre.Equal(post) {
			sumBefore, carry = bits.Add64(sumBefore, pre.Lamports, 0)
			if carry != 0 {
				return fmt.Errorf("%w: lamport overflow", ErrUnbalancedInstruction)
			}
			sumAfter, _ = bits.Add64(sumAfter, post.Lamports, 0)
			continue
		}
		if post.Executable || pre.Executable || !writableIn(inv.accounts, info.Key) {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, info.Key)
		}
		if !bytes.Equal(pre.Data, post.Data) && !pre.Owner.Equals(inv.programID) {
			return fmt.Errorf("%w: %s", ErrExternalDataModified, info.Key)
		}
		if post.Lamports < pre.Lamports && !pre.Owner.Equals(inv.programID) {
			return fmt.Errorf("%w: %s", ErrExternalLamportSpend, info.Key)
		}

		sumBefore, carry = bits.Add64(sumBefore, pre.Lamports, 0)
		if carry != 0 {
			return fmt.Errorf("%w: lamport overflow", ErrUnbalancedInstruction)
		}
		sumAfter, carry = bits.Add64(sumAfter, post.Lamports, 0)
		if carry != 0 {
			return fmt.Errorf("%w: lamport overflow", ErrUnbalancedInstruction)
		}
	}

	if sumBefore != sumAfter {
		return fmt.Errorf("%w: %d before, %d after", ErrUnbalancedInstruction, sumBefore, sumAfter)
	}
	return nil
}

func writableIn(accounts []*AccountInfo, key solana.PublicKey) bool {
	for _, info := range accounts {
		if info.Key.Equals(key) && info.IsWritable {
			return true
		}
	}
	return false
}

func snapshot(accounts []*AccountInfo) map[solana.PublicKey]*Account {
	out := make(map[solana.PublicKey]*Account, len(accounts))
	for _, info := range accounts {
		if _, ok := out[info.Key]; ok {
			continue
		}
		out[info.Key] = info.Account.Clone()
	}
	return out
}
