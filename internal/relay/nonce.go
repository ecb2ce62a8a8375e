package relay

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// NonceManager reserves anti-replay nonces from the relay. The relay is
// authoritative: it has to prevent replay across sessions and devices, so a
// locally remembered value is only ever a sanity check.
type NonceManager struct {
	client *Client

	mu           sync.Mutex
	lastReserved map[string]uint64
}

func NewNonceManager(client *Client) *NonceManager {
	return &NonceManager{
		client:       client,
		lastReserved: make(map[string]uint64),
	}
}

// Reserve asks the relay for the next valid nonce. When the query fails the
// caller may proceed degraded: submit with NonceUnassigned and adopt whatever
// nonce the relay echoes back. degraded=true signals that path.
func (nm *NonceManager) Reserve(ctx context.Context, account string) (nonce uint64, degraded bool, err error) {
	resp, err := nm.client.GetNonce(ctx, account)
	if err != nil {
		log.Warnf("Nonce reservation failed for %s, falling back to relay-assigned nonce: %v", account, err)
		return 0, true, err
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if last, ok := nm.lastReserved[account]; ok && resp.Nonce <= last {
		// relay restarted or another device consumed nonces; the relay value
		// still wins, just make it visible
		log.Warnf("Relay nonce %d for %s is not above last reserved %d", resp.Nonce, account, last)
	}
	nm.lastReserved[account] = resp.Nonce
	return resp.Nonce, false, nil
}

// Confirm records the nonce the relay actually bound a submitted request to.
// Under the degraded path this is the first time the client learns it.
func (nm *NonceManager) Confirm(account string, nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	if nonce > nm.lastReserved[account] {
		nm.lastReserved[account] = nonce
	}
}

// LastReserved returns the most recent nonce seen for an account, used only
// for status display.
func (nm *NonceManager) LastReserved(account string) (uint64, bool) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	n, ok := nm.lastReserved[account]
	return n, ok
}
