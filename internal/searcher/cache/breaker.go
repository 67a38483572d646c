package cache

import (
	"context"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// guardedRemote short-circuits the remote tier while Redis is failing so a
// dead cache costs a query nothing instead of a dial timeout. Key misses do
// not count as failures.
type guardedRemote struct {
	next Remote
	cb   *resilience.CircuitBreaker
}

// GuardRemote wraps r with cb.
func GuardRemote(r Remote, cb *resilience.CircuitBreaker) Remote {
	return &guardedRemote{next: r, cb: cb}
}

func (g *guardedRemote) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := g.cb.ExecuteIgnoring(func() error {
		var err error
		val, err = g.next.Get(ctx, key)
		return err
	}, pkgredis.IsNilError)
	return val, err
}

func (g *guardedRemote) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.cb.Execute(func() error {
		return g.next.Set(ctx, key, value, ttl)
	})
}

func (g *guardedRemote) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var n int64
	err := g.cb.Execute(func() error {
		var err error
		n, err = g.next.FlushByPattern(ctx, pattern)
		return err
	})
	return n, err
}
