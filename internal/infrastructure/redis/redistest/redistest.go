// Package redistest provides an in-process Redis for infrastructure tests.
package redistest

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redisinfra "github.com/rentiva/rentiva/internal/infrastructure/redis"
	"github.com/rentiva/rentiva/pkg/logger"
)

// NewManager starts a miniredis server and returns a connection manager
// whose three clients all point at it. The server is torn down with the
// test.
func NewManager(t *testing.T) (*redisinfra.Manager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := func() *goredis.Client {
		return goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	}

	mgr := redisinfra.NewFromClients(client(), client(), client(), logger.NewForTesting())
	t.Cleanup(func() {
		mgr.Close()
	})
	return mgr, mr
}
