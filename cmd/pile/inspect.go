package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/triblespace/tribles-go/pkg/pile"
)

var (
	errMissingArg    = errors.New("missing required argument")
	errInvalidHash   = errors.New("invalid hash: expected 64 hex characters")
	errInvalidBranch = errors.New("invalid branch id: expected 32 hex characters")
)

// openPile opens (creating if needed) the pile file named by fileSet's
// -f/--file flag and restores it, following the same startup discipline the
// library documents: Restore once at process start, before any other call.
func openPile(cfg Config, fileSet *flag.FlagSet) (*pile.Pile, error) {
	path := fileSet.Lookup("file").Value.String()
	if path == "" {
		path = cfg.Path
	}
	if path == "" {
		path = "./data.pile"
	}

	p, err := pile.Open(pile.Options{Path: path, DisableLocking: cfg.DisableLocking})
	if err != nil {
		return nil, fmt.Errorf("pile: opening %q: %w", path, err)
	}

	if err := p.Restore(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("pile: restoring %q: %w", path, err)
	}

	return p, nil
}

func newFileFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringP("file", "f", "", "pile file path")
	return fs
}

func parseHash(s string) (pile.Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != pile.HashSize {
		return pile.Hash{}, errInvalidHash
	}
	return pile.Hash(raw), nil
}

func parseBranchID(s string) (pile.BranchID, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return pile.BranchID{}, errInvalidBranch
	}
	var id pile.BranchID
	copy(id[:], raw)
	return id, nil
}

func cmdPut(logger *slog.Logger, cfg Config, args []string) error {
	fs := newFileFlagSet("put")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: source file", errMissingArg)
	}

	payload, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("pile: reading %q: %w", fs.Arg(0), err)
	}

	p, err := openPile(cfg, fs)
	if err != nil {
		return err
	}
	defer p.Close()

	h, err := p.Put(payload)
	if err != nil {
		return fmt.Errorf("pile: put: %w", err)
	}

	logger.Debug("put", "bytes", len(payload), "hash", hex.EncodeToString(h[:]))
	fmt.Println(hex.EncodeToString(h[:]))
	return nil
}

func cmdGet(logger *slog.Logger, cfg Config, args []string) error {
	fs := newFileFlagSet("get")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: hash", errMissingArg)
	}

	h, err := parseHash(fs.Arg(0))
	if err != nil {
		return err
	}

	p, err := openPile(cfg, fs)
	if err != nil {
		return err
	}
	defer p.Close()

	r, err := p.Reader()
	if err != nil {
		return fmt.Errorf("pile: reader: %w", err)
	}
	defer r.Release()

	payload, ok := r.Get(h)
	if !ok {
		logger.Debug("get miss", "hash", fs.Arg(0))
		return fmt.Errorf("pile: blob not found or failed content validation: %s", fs.Arg(0))
	}

	_, err = os.Stdout.Write(payload)
	return err
}

func cmdHead(logger *slog.Logger, cfg Config, args []string) error {
	fs := newFileFlagSet("head")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("%w: branch id", errMissingArg)
	}

	id, err := parseBranchID(fs.Arg(0))
	if err != nil {
		return err
	}

	p, err := openPile(cfg, fs)
	if err != nil {
		return err
	}
	defer p.Close()

	head, ok, err := p.Head(id)
	if err != nil {
		return fmt.Errorf("pile: head: %w", err)
	}
	if !ok {
		logger.Debug("head unset", "branch", fs.Arg(0))
		return fmt.Errorf("pile: branch has no recorded head: %s", fs.Arg(0))
	}

	fmt.Println(hex.EncodeToString(head[:]))
	return nil
}

func cmdUpdate(logger *slog.Logger, cfg Config, args []string) error {
	fs := newFileFlagSet("update")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 3 {
		return fmt.Errorf("%w: branch id, expected head, new head", errMissingArg)
	}

	id, err := parseBranchID(fs.Arg(0))
	if err != nil {
		return err
	}
	expected, err := parseHash(fs.Arg(1))
	if err != nil {
		return err
	}
	newHead, err := parseHash(fs.Arg(2))
	if err != nil {
		return err
	}

	p, err := openPile(cfg, fs)
	if err != nil {
		return err
	}
	defer p.Close()

	outcome, observed, err := p.Update(id, expected, newHead)
	if err != nil {
		return fmt.Errorf("pile: update: %w", err)
	}

	logger.Debug("update", "branch", fs.Arg(0), "outcome", outcome)
	if outcome == pile.Conflict {
		fmt.Printf("conflict: %s\n", hex.EncodeToString(observed[:]))
		return fmt.Errorf("pile: conflict: current head is %s", hex.EncodeToString(observed[:]))
	}

	fmt.Println("committed")
	return nil
}

func cmdBranches(_ *slog.Logger, cfg Config, args []string) error {
	fs := newFileFlagSet("branches")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := openPile(cfg, fs)
	if err != nil {
		return err
	}
	defer p.Close()

	ids, err := p.Branches()
	if err != nil {
		return fmt.Errorf("pile: branches: %w", err)
	}

	for _, id := range ids {
		fmt.Println(hex.EncodeToString(id[:]))
	}
	return nil
}

func cmdRestore(logger *slog.Logger, cfg Config, args []string) error {
	fs := newFileFlagSet("restore")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := fs.Lookup("file").Value.String()
	if path == "" {
		path = cfg.Path
	}
	if path == "" {
		path = "./data.pile"
	}

	p, err := pile.Open(pile.Options{Path: path, DisableLocking: cfg.DisableLocking})
	if err != nil {
		return fmt.Errorf("pile: opening %q: %w", path, err)
	}
	defer p.Close()

	if err := p.Restore(); err != nil {
		return fmt.Errorf("pile: restoring %q: %w", path, err)
	}

	logger.Info("restored", "path", path)
	fmt.Println("ok")
	return nil
}
