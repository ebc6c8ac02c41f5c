// Package native implements an execution service to run native programs.
//
// A native program is written in Go and packaged with the application. It is
// registered at the address that instructions use to call it.
package native

import (
	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/execution"
	"go.dedis.ch/pollchain/core/store"
	"golang.org/x/xerrors"
)

// Contract is the interface to implement to register a program that will be
// executed natively.
type Contract interface {
	Execute(ctx execution.Context, step execution.Step) error
}

// Service is an execution service for packaged programs. A program only
// reaches the snapshot through the context of the instruction.
//
// - implements execution.Service
type Service struct {
	contracts map[address.Address]Contract
}

// NewExecution returns a new native execution.
func NewExecution() *Service {
	return &Service{
		contracts: map[address.Address]Contract{},
	}
}

// Set stores the contract at the program address. An instruction triggers the
// contract by naming the same address as its program.
func (ns *Service) Set(program address.Address, contract Contract) {
	ns.contracts[program] = contract
}

// Execute implements execution.Service. It runs the program of the instruction
// and returns the result. The code of the result is the one of the first coded
// error returned by the program.
func (ns *Service) Execute(snap store.Snapshot, step execution.Step) (execution.Result, error) {
	program := step.Program()

	contract := ns.contracts[program]
	if contract == nil {
		return execution.Result{}, xerrors.Errorf("unknown program '%v'", program)
	}

	res := execution.Result{
		Accepted: true,
	}

	err := contract.Execute(execution.NewContext(snap, step), step)
	if err != nil {
		res.Accepted = false
		res.Message = err.Error()
		res.Code, _ = execution.Code(err)
	}

	return res, nil
}
