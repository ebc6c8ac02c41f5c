package ledger

import (
	"sort"
	"sync"

	"go.dedis.ch/pollchain/core/address"
	"go.dedis.ch/pollchain/core/txn"
)

// lockTable provides a read-write lock per address. A transaction takes the
// locks of every account it declares, exclusive for the writable ones, always
// in address order so that two transactions cannot wait on each other.
type lockTable struct {
	sync.Mutex
	locks map[address.Address]*addrLock
}

type addrLock struct {
	sync.RWMutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{
		locks: make(map[address.Address]*addrLock),
	}
}

// acquire blocks until the locks of the accounts are taken and returns the
// function that releases them.
func (t *lockTable) acquire(metas []txn.AccountMeta) func() {
	sorted := make([]txn.AccountMeta, len(metas))
	copy(sorted, metas)

	sort.Slice(sorted, func(i, j int) bool {
		return address.Compare(sorted[i].Address, sorted[j].Address) < 0
	})

	held := make([]*addrLock, len(sorted))

	for i, meta := range sorted {
		lock := t.ref(meta.Address)
		held[i] = lock

		if meta.Writable {
			lock.Lock()
		} else {
			lock.RLock()
		}
	}

	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			if sorted[i].Writable {
				held[i].Unlock()
			} else {
				held[i].RUnlock()
			}

			t.unref(sorted[i].Address)
		}
	}
}

func (t *lockTable) ref(addr address.Address) *addrLock {
	t.Lock()
	defer t.Unlock()

	lock := t.locks[addr]
	if lock == nil {
		lock = &addrLock{}
		t.locks[addr] = lock
	}

	lock.refs++

	return lock
}

func (t *lockTable) unref(addr address.Address) {
	t.Lock()
	defer t.Unlock()

	lock := t.locks[addr]
	lock.refs--

	if lock.refs == 0 {
		delete(t.locks, addr)
	}
}

// size returns the number of addresses currently locked or waited for.
func (t *lockTable) size() int {
	t.Lock()
	defer t.Unlock()

	return len(t.locks)
}
