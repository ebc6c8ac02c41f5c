package execution

import (
	"go.dedis.ch/pollchain/core/account"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/store"
	"go.dedis.ch/pollchain/core/txn"
	"golang.org/x/xerrors"
)

// Context is the view of the ledger given to a program for one instruction.
type Context interface {
	// GetAccount returns the account at the address. An unallocated address
	// returns an empty account.
	GetAccount(addr address.Address) (account.Account, error)

	// SetData replaces the data of an account owned by the program. The size
	// of the data cannot change.
	SetData(addr address.Address, data []byte) error

	// CreateAccount allocates the account at the address with zeroed data of
	// the given size, owned by the program, and debits from the payer what
	// the address misses of the rent-exempt balance. When seeds are given,
	// they must derive the address for the program, otherwise the address
	// must sign.
	CreateAccount(addr address.Address, space int, payer address.Address, seeds ...[]byte) error
}

// accountContext is the implementation of the context on top of a snapshot
// where accounts are stored at the bytes of their address.
//
// - implements execution.Context
type accountContext struct {
	snap  store.Snapshot
	step  Step
	metas map[address.Address]txn.AccountMeta
}

// NewContext returns the context of the step backed by the snapshot.
func NewContext(snap store.Snapshot, step Step) Context {
	instr := step.Instruction()

	metas := make(map[address.Address]txn.AccountMeta, len(instr.Accounts)+1)
	metas[instr.Program] = txn.NewReadonly(instr.Program, false)

	for _, meta := range instr.Accounts {
		prev := metas[meta.Address]
		meta.Signer = meta.Signer || prev.Signer
		meta.Writable = meta.Writable || prev.Writable
		metas[meta.Address] = meta
	}

	return accountContext{
		snap:  snap,
		step:  step,
		metas: metas,
	}
}

// GetAccount implements execution.Context.
func (ctx accountContext) GetAccount(addr address.Address) (account.Account, error) {
	_, found := ctx.metas[addr]
	if !found {
		return account.Account{}, ErrUndeclaredAccount.With("%v", addr)
	}

	return ctx.read(addr)
}

// SetData implements execution.Context.
func (ctx accountContext) SetData(addr address.Address, data []byte) error {
	err := ctx.checkWritable(addr)
	if err != nil {
		return err
	}

	acc, err := ctx.read(addr)
	if err != nil {
		return err
	}

	if acc.Owner != ctx.step.Program() {
		return ErrIllegalOwner.With("%v is owned by %v", addr, acc.Owner)
	}

	if len(data) != len(acc.Data) {
		return ErrInvalidSpace.With("cannot resize %v from %d to %d",
			addr, len(acc.Data), len(data))
	}

	acc.Data = data

	return ctx.write(addr, acc)
}

// CreateAccount implements execution.Context.
func (ctx accountContext) CreateAccount(addr address.Address, space int,
	payer address.Address, seeds ...[]byte) error {

	err := ctx.checkWritable(addr)
	if err != nil {
		return err
	}

	err = ctx.checkWritable(payer)
	if err != nil {
		return err
	}

	if !ctx.metas[payer].Signer {
		return ErrMissingSignature.With("payer %v", payer)
	}

	if len(seeds) == 0 {
		if !ctx.metas[addr].Signer {
			return ErrMissingSignature.With("new account %v", addr)
		}
	} else {
		derived, err := address.CreateProgramAddress(seeds, ctx.step.Program())
		if err != nil || derived != addr {
			return ErrInvalidSeeds.With("seeds do not derive %v", addr)
		}
	}

	if space < 0 || space > account.MaxDataSize {
		return ErrInvalidSpace.With("%d", space)
	}

	acc, err := ctx.read(addr)
	if err != nil {
		return err
	}

	if !acc.IsEmpty() || addr == payer {
		return ErrAllocation.With("address %v already in use", addr)
	}

	from, err := ctx.read(payer)
	if err != nil {
		return err
	}

	// The payer only tops up the balance already held by the address.
	rent := account.MinimumBalance(space)
	if acc.Lamports < rent {
		topUp := rent - acc.Lamports

		if from.Lamports < topUp {
			return ErrInsufficientFunds.With("%v has %d but needs %d", payer, from.Lamports, topUp)
		}

		from.Lamports -= topUp
		acc.Lamports = rent

		err = ctx.write(payer, from)
		if err != nil {
			return err
		}
	}

	acc.Owner = ctx.step.Program()
	acc.Data = make([]byte, space)

	return ctx.write(addr, acc)
}

func (ctx accountContext) checkWritable(addr address.Address) error {
	meta, found := ctx.metas[addr]
	if !found {
		return ErrUndeclaredAccount.With("%v", addr)
	}

	if !meta.Writable {
		return ErrReadonlyAccount.With("%v", addr)
	}

	return nil
}

func (ctx accountContext) read(addr address.Address) (account.Account, error) {
	data, err := ctx.snap.Get(addr[:])
	if err != nil {
		return account.Account{}, xerrors.Errorf("failed to read account: %v", err)
	}

	acc := account.Account{}
	if data == nil {
		return acc, nil
	}

	err = acc.UnmarshalBinary(data)
	if err != nil {
		return acc, xerrors.Errorf("failed to decode account %v: %v", addr, err)
	}

	return acc, nil
}

func (ctx accountContext) write(addr address.Address, acc account.Account) error {
	data, err := acc.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to encode account: %v", err)
	}

	err = ctx.snap.Set(addr[:], data)
	if err != nil {
		return xerrors.Errorf("failed to write account: %v", err)
	}

	return nil
}
