package lsp

import (
	"context"
	"time"
)

// Close runs the graceful shutdown sequence: close every open
// document, send shutdown, send exit, then wait shutdownGracePeriod for
// the child to exit before killing it. Shutdown errors are swallowed —
// the process is force-killed regardless. Close is idempotent.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() { err = c.shutdown(ctx) })
	return err
}

func (c *Client) shutdown(ctx context.Context) error {
	// Documents are closed before entering Stopping, which admits only
	// shutdown/exit, so the didClose notifications are actually sent.
	c.CloseAllDocuments(ctx)

	c.setState(StateStopping)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_ = c.Call(shutdownCtx, "shutdown", nil, nil)
	cancel()

	_ = c.Notify(ctx, "exit", nil)

	if c.stdin != nil {
		_ = c.stdin.Close()
	}

	c.failAllPending(errClientStopped)

	if c.proc == nil || c.proc.Process == nil {
		c.setState(StateStopped)
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.proc.Wait() }()

	select {
	case <-done:
	case <-time.After(shutdownGracePeriod):
		_ = c.proc.Process.Kill()
		<-done
	}

	c.setState(StateStopped)
	return nil
}

var errClientStopped = &stoppedError{}

type stoppedError struct{}

func (*stoppedError) Error() string { return "lsp: client is stopping" }
