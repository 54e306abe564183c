// Package sandbox provides restricted in-process script execution.
//
// The sandbox package runs untrusted ECMAScript snippets inside a
// capability-restricted goja VM. Scripts see only the symbols the
// capability Registry installs plus the modules the import Gate
// allows; there is no ambient access to the filesystem, the network or
// the host process. Each execution gets a fresh session with bounded
// output capture, a wall-clock timeout enforced by interrupting the
// VM, figure artifacts saved under a dedicated output directory, and
// the variables it created serialized to JSON-safe values.
//
// Usage:
//
//	interp := sandbox.New(logger, sandbox.Config{Timeout: 30 * time.Second})
//	result, err := interp.Execute(ctx, sandbox.Request{
//	    Source: "x = 5; y = 10; print(x + y)",
//	})
package sandbox
