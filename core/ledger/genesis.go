package ledger

import (
	"context"
	"os"

	"go.dedis.ch/pollchain/core/address"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// Genesis is the initial distribution of lamports of a new ledger.
type Genesis struct {
	Accounts []Allocation `yaml:"accounts"`
}

// Allocation is the balance given to an address at genesis.
type Allocation struct {
	Address  string `yaml:"address"`
	Lamports uint64 `yaml:"lamports"`
}

// LoadGenesis reads the YAML genesis file at the path.
func LoadGenesis(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, xerrors.Errorf("failed to read genesis: %v", err)
	}

	var genesis Genesis

	err = yaml.UnmarshalStrict(data, &genesis)
	if err != nil {
		return Genesis{}, xerrors.Errorf("failed to parse genesis: %v", err)
	}

	return genesis, nil
}

// Init credits every allocation of the genesis.
func (l *Ledger) Init(ctx context.Context, genesis Genesis) error {
	for i, alloc := range genesis.Accounts {
		addr, err := address.Parse(alloc.Address)
		if err != nil {
			return xerrors.Errorf("allocation %d: %v", i, err)
		}

		err = l.Airdrop(ctx, addr, alloc.Lamports)
		if err != nil {
			return xerrors.Errorf("failed to credit %v: %v", addr, err)
		}
	}

	return nil
}
