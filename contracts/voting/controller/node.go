package controller

import (
	"go.dedis.ch/pollchain/contracts/voting"
	"go.dedis.ch/pollchain/contracts/voting/client"
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/execution/native"
	"go.dedis.ch/pollchain/core/ledger"
	"go.dedis.ch/pollchain/core/store/kv"
	"go.dedis.ch/pollchain/crypto/ed25519"
	"go.dedis.ch/pollchain/crypto/loader"
	"golang.org/x/xerrors"
)

// node is the set of components opened by an action.
type node struct {
	db     kv.DB
	ledger *ledger.Ledger
	client *client.Client
}

// openNode opens the ledger database and registers the voting program.
func openNode(ctx Context) (*node, error) {
	db, err := kv.New(ctx.Flags.Path("db"))
	if err != nil {
		return nil, xerrors.Errorf("failed to open ledger: %v", err)
	}

	exec := native.NewExecution()
	voting.RegisterContract(exec, voting.NewContract())

	l := ledger.New(db, exec, ledger.WithClock(ctx.Clock))

	n := &node{
		db:     db,
		ledger: l,
		client: client.NewClient(l),
	}

	return n, nil
}

// Close closes the ledger database.
func (n *node) Close() error {
	return n.db.Close()
}

// loadSigner reads the private key of the identity.
func loadSigner(ctx Context) (ed25519.Signer, error) {
	signer, err := loader.LoadSigner(loader.NewFileLoader(ctx.Flags.Path("key")), false)
	if err != nil {
		return ed25519.Signer{}, xerrors.Errorf("failed to load identity: %v", err)
	}

	return signer, nil
}

// parseAddress reads the address of the flag.
func parseAddress(ctx Context, name string) (address.Address, error) {
	addr, err := address.Parse(ctx.Flags.String(name))
	if err != nil {
		return address.Address{}, xerrors.Errorf("invalid %s: %v", name, err)
	}

	return addr, nil
}

// addressOrIdentity reads the address of the flag, or returns the address of
// the identity if the flag is empty.
func addressOrIdentity(ctx Context, name string) (address.Address, error) {
	if ctx.Flags.String(name) != "" {
		return parseAddress(ctx, name)
	}

	signer, err := loadSigner(ctx)
	if err != nil {
		return address.Address{}, err
	}

	return signer.Address(), nil
}
