package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/gateway-fm/ledgerbench/internal/rpc"
)

// ErrEmptyPool is returned when a pool is created with no credentials.
// An empty pool is fatal at startup: no task could ever be signed.
var ErrEmptyPool = errors.New("credential pool is empty")

// Pool is a fixed ordered set of credentials cycled round-robin across
// tasks. Assignment is index mod len(pool): deterministic and
// reproducible for a given (totalTasks, credentialCount) pair.
type Pool struct {
	credentials []*Credential
}

// NewPool creates a pool from an ordered credential list.
func NewPool(credentials []*Credential) (*Pool, error) {
	if len(credentials) == 0 {
		return nil, ErrEmptyPool
	}
	return &Pool{credentials: credentials}, nil
}

// NewPoolFromHex creates a pool from hex-encoded private keys.
func NewPoolFromHex(hexKeys []string) (*Pool, error) {
	if len(hexKeys) == 0 {
		return nil, ErrEmptyPool
	}
	credentials := make([]*Credential, 0, len(hexKeys))
	for i, key := range hexKeys {
		c, err := NewFromHex(key)
		if err != nil {
			return nil, fmt.Errorf("invalid private key at index %d: %w", i, err)
		}
		credentials = append(credentials, c)
	}
	return &Pool{credentials: credentials}, nil
}

// ForTask returns the credential assigned to a task index.
func (p *Pool) ForTask(index int) *Credential {
	return p.credentials[index%len(p.credentials)]
}

// Len returns the number of credentials in the pool.
func (p *Pool) Len() int {
	return len(p.credentials)
}

// All returns the credentials in order.
func (p *Pool) All() []*Credential {
	return p.credentials
}

// Resync aligns every credential's counter with confirmed chain state.
// Called before a run so local counters start from truth.
func (p *Pool) Resync(ctx context.Context, client rpc.Client) error {
	for _, c := range p.credentials {
		if err := c.Resync(ctx, client); err != nil {
			return fmt.Errorf("resync %s: %w", c.Address.Hex(), err)
		}
	}
	return nil
}

// TestPrivateKeys are the well-known Anvil/Hardhat development keys.
var TestPrivateKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80", // Account 0
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d", // Account 1
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a", // Account 2
	"7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6", // Account 3
	"47e179ec197488593b187f80a00eb0da91f1b9d0b13f8733639f19c30a34926a", // Account 4
	"8b3a350cf5c34c9194ca85829a2df0ec3153be0318b5e2d3348e872092edffba", // Account 5
	"92db14e403b83dfe3df233f83dfa3a0d7096f21ca9b0d6d6b8d88b2b4ec1564e", // Account 6
	"4bbbf85ce3377467afe5d46f804f221813b2bb87f24d81f60f1fcdbf7cbf4356", // Account 7
	"dbda1821b80551c9d65939329250298aa3472ba22feea921c0cf5d620ea67b97", // Account 8
	"2a871d0798f97d79848a013d4936a73bf4cc922c825d33c1cf7073dff6d409c6", // Account 9
}

// TestPool builds a pool from the standard development keys.
func TestPool() (*Pool, error) {
	return NewPoolFromHex(TestPrivateKeys)
}
