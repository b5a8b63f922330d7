package eventcreator

import (
	"errors"
	"sync"
)

// ErrPoolFull is returned when the transaction pool reached its capacity.
var ErrPoolFull = errors.New("transaction pool is full")

// TransactionSupplier provides the payload of new events. Pull is called once
// per creation attempt and must not block.
type TransactionSupplier interface {
	Pull() [][]byte
	HasPending() bool
}

// TransactionPool is a bounded, thread-safe TransactionSupplier. Clients
// submit transactions from any goroutine; the creator pulls them.
type TransactionPool struct {
	sync.Mutex
	txs         [][]byte
	maxPending  int
	maxPerEvent int
}

// NewTransactionPool creates a pool holding at most maxPending transactions
// and handing out at most maxPerEvent per Pull. Zero means no limit.
func NewTransactionPool(maxPending, maxPerEvent int) *TransactionPool {
	return &TransactionPool{
		maxPending:  maxPending,
		maxPerEvent: maxPerEvent,
	}
}

// Submit queues a transaction.
func (p *TransactionPool) Submit(tx []byte) error {
	p.Lock()
	defer p.Unlock()

	if p.maxPending > 0 && len(p.txs) >= p.maxPending {
		return ErrPoolFull
	}

	p.txs = append(p.txs, tx)

	return nil
}

// Pull removes and returns the oldest pending transactions.
func (p *TransactionPool) Pull() [][]byte {
	p.Lock()
	defer p.Unlock()

	n := len(p.txs)
	if p.maxPerEvent > 0 && n > p.maxPerEvent {
		n = p.maxPerEvent
	}

	res := make([][]byte, n)
	copy(res, p.txs[:n])
	p.txs = p.txs[n:]

	return res
}

// HasPending ...
func (p *TransactionPool) HasPending() bool {
	p.Lock()
	defer p.Unlock()
	return len(p.txs) > 0
}

// Len ...
func (p *TransactionPool) Len() int {
	p.Lock()
	defer p.Unlock()
	return len(p.txs)
}

// Clear drops all pending transactions.
func (p *TransactionPool) Clear() {
	p.Lock()
	defer p.Unlock()
	p.txs = nil
}
