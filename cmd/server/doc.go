// Package main is the entry point for the Scriptbox MCP server.
//
// The Scriptbox server implements a Model Context Protocol (MCP) server that
// executes untrusted scripts inside a capability-restricted in-process
// sandbox. Scripts see a fixed allowlist of modules and capabilities; output
// is captured with a byte cap, figures are saved as artifacts under a
// dedicated directory, and a wall-clock timeout forcibly interrupts hung
// snippets. The server supports both stdio and HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
