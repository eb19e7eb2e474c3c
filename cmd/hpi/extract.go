package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/hpikit/hpi"
)

func runExtract(args []string) error {
	fl := flag.NewFlagSet("extract", flag.ExitOnError)
	dest := fl.String("C", ".", "destination directory")
	workers := fl.Int("j", 4, "parallel extraction workers")
	verbose := fl.Bool("v", false, "debug logging")
	_ = fl.Parse(args)
	if fl.NArg() < 1 {
		return errors.New("usage: hpi extract [-C dir] [-j n] <archive> [paths...]")
	}

	a, err := openArchive(fl.Arg(0), *verbose)
	if err != nil {
		return err
	}
	defer a.Close()

	targets, err := collectTargets(a, fl.Args()[1:])
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(max(*workers, 1))
	for _, e := range targets {
		g.Go(func() error {
			return extractEntry(a, e, *dest)
		})
	}
	return g.Wait()
}

// collectTargets resolves the requested paths to entries. A directory
// expands to every file beneath it; no paths at all means the whole
// archive. Directories without any children are kept so extraction can
// recreate them.
func collectTargets(a *hpi.Archive, paths []string) ([]hpi.Entry, error) {
	if len(paths) == 0 {
		var out []hpi.Entry
		for e := range a.Entries() {
			if keepTarget(e) {
				out = append(out, e)
			}
		}
		return out, nil
	}

	var out []hpi.Entry
	for _, p := range paths {
		e, ok := a.Lookup(p)
		if !ok {
			return nil, fmt.Errorf("no entry %q in archive", p)
		}
		out = appendSubtree(out, e)
	}
	return out, nil
}

func appendSubtree(out []hpi.Entry, e hpi.Entry) []hpi.Entry {
	if keepTarget(e) {
		out = append(out, e)
	}
	for _, c := range e.Children() {
		out = appendSubtree(out, c)
	}
	return out
}

func keepTarget(e hpi.Entry) bool {
	if !e.IsDir() {
		return true
	}
	return e.Path() != "" && len(e.Children()) == 0
}

// extractEntry writes one entry beneath dest. Files land via a
// temporary file and rename so an interrupted run never leaves a
// half-written target in place.
func extractEntry(a *hpi.Archive, e hpi.Entry, dest string) error {
	p := e.Path()
	if !fs.ValidPath(p) {
		return fmt.Errorf("refusing unsafe path %q", p)
	}
	target := filepath.Join(dest, filepath.FromSlash(p))

	if e.IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	content, err := a.ReadAll(e)
	if err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".hpi-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w", p, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
