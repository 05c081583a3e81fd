// Package credential manages the signing identities used to authorize
// benchmark operations against the ledger.
package credential

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/ledgerbench/internal/rpc"
)

// Credential holds a signing key and its local sequencing counter.
// The counter is shared by every task that reuses this credential;
// concurrent reuse produces nonce conflicts that the retry engine
// absorbs, it is not serialized here.
type Credential struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
	nonce      uint64
	mu         sync.Mutex
}

// New creates a credential from a private key.
func New(privateKey *ecdsa.PrivateKey) *Credential {
	return &Credential{
		PrivateKey: privateKey,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// NewFromHex creates a credential from a hex-encoded private key.
func NewFromHex(hexKey string) (*Credential, error) {
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, err
	}
	return New(privateKey), nil
}

// Nonce represents a reserved sequence number that must be committed
// or rolled back. Use defer n.Rollback() immediately after reserving.
type Nonce struct {
	value      uint64
	credential *Credential
	committed  atomic.Bool
}

// Value returns the nonce value.
func (n *Nonce) Value() uint64 {
	return n.value
}

// Commit marks the nonce as successfully used. Idempotent.
func (n *Nonce) Commit() {
	n.committed.Store(true)
}

// Rollback returns the nonce to the credential if not committed. Idempotent.
func (n *Nonce) Rollback() {
	if n.committed.Swap(true) {
		return
	}
	n.credential.rollback(n.value)
}

// ReserveNonce reserves the next sequence number for a submission.
// The returned Nonce MUST be either Committed or Rolled back.
func (c *Credential) ReserveNonce() *Nonce {
	c.mu.Lock()
	nonce := c.nonce
	c.nonce++
	c.mu.Unlock()

	return &Nonce{
		value:      nonce,
		credential: c,
	}
}

// rollback decrements the counter only if this was the last nonce
// issued, which keeps out-of-order rollbacks from corrupting it.
func (c *Credential) rollback(nonce uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nonce == nonce+1 {
		c.nonce = nonce
	}
}

// PeekNonce returns the current counter without reserving.
func (c *Credential) PeekNonce() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce
}

// SetNonce sets the counter directly. Prefer Resync for fetching from chain.
func (c *Credential) SetNonce(nonce uint64) {
	c.mu.Lock()
	c.nonce = nonce
	c.mu.Unlock()
}

// Resync fetches the confirmed nonce from the chain and updates the
// local counter. Set-if-higher so a concurrent reservation between the
// RPC call and the lock acquisition never moves the counter backwards.
func (c *Credential) Resync(ctx context.Context, client rpc.Client) error {
	nonce, err := client.GetConfirmedNonce(ctx, c.Address.Hex())
	if err != nil {
		return err
	}
	c.mu.Lock()
	if nonce > c.nonce {
		c.nonce = nonce
	}
	c.mu.Unlock()
	return nil
}
