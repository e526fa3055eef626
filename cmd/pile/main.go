// pile is a CLI for creating, inspecting, and driving a content-addressed
// append-only pile file.
//
// Usage:
//
//	pile put <file> [-f <pile-file>]       Append a blob, print its hash
//	pile get <hash> [-f <pile-file>]        Print a blob's payload to stdout
//	pile head <branch> [-f <pile-file>]     Print a branch's current head
//	pile update <branch> <expect> <new>     Compare-and-set a branch head
//	pile branches [-f <pile-file>]          List known branch IDs
//	pile restore [-f <pile-file>]           Repair a torn tail
//	pile repl [-f <pile-file>]              Interactive session
//
// Options:
//
//	-f, --file             Pile file path [default: the config's "path", else ./data.pile]
//
// Locking and log level have no command-line flags; they come from the
// config file's "disable_locking" and "log_level" keys (see config.go).
// log_level is one of debug|info|warn|error [default: info].
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("missing command")
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("pile: getwd: %w", err)
	}

	cfg, err := LoadConfig(workDir, "", os.Environ())
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "put":
		return cmdPut(logger, cfg, rest)
	case "get":
		return cmdGet(logger, cfg, rest)
	case "head":
		return cmdHead(logger, cfg, rest)
	case "update":
		return cmdUpdate(logger, cfg, rest)
	case "branches":
		return cmdBranches(logger, cfg, rest)
	case "restore":
		return cmdRestore(logger, cfg, rest)
	case "repl":
		return cmdRepl(logger, cfg, rest)
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  pile put <file> [-f <pile-file>]")
	fmt.Fprintln(os.Stderr, "  pile get <hash> [-f <pile-file>]")
	fmt.Fprintln(os.Stderr, "  pile head <branch> [-f <pile-file>]")
	fmt.Fprintln(os.Stderr, "  pile update <branch> <expect> <new> [-f <pile-file>]")
	fmt.Fprintln(os.Stderr, "  pile branches [-f <pile-file>]")
	fmt.Fprintln(os.Stderr, "  pile restore [-f <pile-file>]")
	fmt.Fprintln(os.Stderr, "  pile repl [-f <pile-file>]")
}
