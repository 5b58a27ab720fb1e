// =============================================================================
// 🧰 测试辅助函数 - 上下文与异步断言
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"
)

// TestContext 返回绑定到测试生命周期的 context，测试结束自动取消。
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带超时的测试 context。
func TestContextWithTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回一个已经取消的 context，用于取消路径测试。
func CancelledContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// AssertEventuallyTrue 轮询等待条件满足，超时则测试失败。
func AssertEventuallyTrue(t *testing.T, cond func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
