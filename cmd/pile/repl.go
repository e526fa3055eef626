package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/triblespace/tribles-go/pkg/pile"
)

func cmdRepl(logger *slog.Logger, cfg Config, args []string) error {
	fs := newFileFlagSet("repl")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := openPile(cfg, fs)
	if err != nil {
		return err
	}
	defer p.Close()

	repl := &REPL{pile: p, logger: logger}
	return repl.Run()
}

// REPL is the interactive command loop for driving an already-open pile.
type REPL struct {
	pile   *pile.Pile
	logger *slog.Logger
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pile_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("pile - content-addressed store CLI")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("pile> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		cmdArgs := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "put":
			r.cmdPut(cmdArgs)
		case "get":
			r.cmdGet(cmdArgs)
		case "head":
			r.cmdHead(cmdArgs)
		case "update":
			r.cmdUpdate(cmdArgs)
		case "branches":
			r.cmdBranches()
		case "restore":
			r.cmdRestore()
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()
	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{"put", "get", "head", "update", "branches", "restore", "help", "exit", "quit", "q"}

	var completions []string
	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}
	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <file>                         Append a blob, print its hash")
	fmt.Println("  get <hash>                         Print a blob's payload")
	fmt.Println("  head <branch>                      Print a branch's current head")
	fmt.Println("  update <branch> <expect> <new>      Compare-and-set a branch head")
	fmt.Println("  branches                           List known branch IDs")
	fmt.Println("  restore                             Repair a torn tail")
	fmt.Println("  help                                Show this help")
	fmt.Println("  exit / quit / q                     Exit")
	fmt.Println()
	fmt.Println("Hashes and branch IDs are hex-encoded.")
}

func (r *REPL) cmdPut(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: put <file>")
		return
	}

	payload, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		return
	}

	h, err := r.pile.Put(payload)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("OK: %s (%d bytes)\n", hex.EncodeToString(h[:]), len(payload))
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: get <hash>")
		return
	}

	h, err := parseHash(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	reader, err := r.pile.Reader()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer reader.Release()

	payload, ok := reader.Get(h)
	if !ok {
		fmt.Println("(not found)")
		return
	}

	md, _ := reader.Metadata(h)
	fmt.Printf("Length:    %d\n", md.Length)
	fmt.Printf("Timestamp: %d\n", md.Timestamp)
	fmt.Printf("Payload:   %q\n", payload)
}

func (r *REPL) cmdHead(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: head <branch>")
		return
	}

	id, err := parseBranchID(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	head, ok, err := r.pile.Head(id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if !ok {
		fmt.Println("(no head)")
		return
	}

	fmt.Println(hex.EncodeToString(head[:]))
}

func (r *REPL) cmdUpdate(args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: update <branch> <expect> <new>")
		return
	}

	id, err := parseBranchID(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	expected, err := parseHash(args[1])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	newHead, err := parseHash(args[2])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	outcome, observed, err := r.pile.Update(id, expected, newHead)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if outcome == pile.Conflict {
		fmt.Printf("Conflict: current head is %s\n", hex.EncodeToString(observed[:]))
		return
	}

	fmt.Println("OK: committed")
}

func (r *REPL) cmdBranches() {
	ids, err := r.pile.Branches()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if len(ids) == 0 {
		fmt.Println("(none)")
		return
	}

	for i, id := range ids {
		fmt.Printf("%3d. %s\n", i+1, hex.EncodeToString(id[:]))
	}
}

func (r *REPL) cmdRestore() {
	if err := r.pile.Restore(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("OK: restored")
}
