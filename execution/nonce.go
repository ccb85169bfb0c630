package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/arbengine/rpc"
	"github.com/michaelpento.lv/arbengine/types"
)

// NonceTracker hands out sequential nonces per network, reading the pending
// nonce from the node on first use and after a Reset
type NonceTracker struct {
	mu   sync.Mutex
	next map[types.Network]uint64
}

func NewNonceTracker() *NonceTracker {
	return &NonceTracker{next: make(map[types.Network]uint64)}
}

// Next returns the nonce to use for the next transaction of account on n
func (t *NonceTracker) Next(ctx context.Context, n types.Network, c rpc.Client, account common.Address) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if nonce, ok := t.next[n]; ok {
		return nonce, nil
	}

	nonce, err := c.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending nonce: %w", err)
	}
	t.next[n] = nonce
	return nonce, nil
}

// Commit records that nonce was accepted by the node
func (t *NonceTracker) Commit(n types.Network, nonce uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next[n] = nonce + 1
}

// Reset forgets the cached nonce so the next call resyncs from the node
func (t *NonceTracker) Reset(n types.Network) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.next, n)
}
