//go:build integration

package integration

import (
	"fmt"
	"sync/atomic"
	"time"
)

const TestPassword = "TestPassword123!"

var userSeq atomic.Int64

// TestUser generates unique test credentials.
func TestUser(suffix string) (username, email string) {
	n := userSeq.Add(1)
	username = fmt.Sprintf("user-%d-%s", n, suffix)
	email = fmt.Sprintf("test-%d-%d-%s@example.com", time.Now().Unix(), n, suffix)
	return username, email
}
