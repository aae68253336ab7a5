package kvstoretest

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/yungbote/bookrec-backend/internal/platform/kvstore"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

// New starts an in-process redis and returns a Store bound to it. Both are
// torn down with the test.
func New(tb testing.TB) (*kvstore.Client, *miniredis.Miniredis) {
	tb.Helper()
	mr := miniredis.RunT(tb)
	c, err := kvstore.New(kvstore.Options{Addr: mr.Addr(), OpTimeout: time.Second}, logger.Nop())
	if err != nil {
		tb.Fatalf("kvstore.New: %v", err)
	}
	tb.Cleanup(func() { _ = c.Close() })
	return c, mr
}
