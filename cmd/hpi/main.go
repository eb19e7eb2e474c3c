// Command hpi inspects and extracts HAPI archives.
//
// Usage:
//
//	hpi info <archive>
//	hpi ls [-l] [-digest] <archive> [dir]
//	hpi cat <archive> <path>
//	hpi extract [-C dir] [-j n] [-v] <archive> [paths...]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path"

	"github.com/opencontainers/go-digest"

	"github.com/hpikit/hpi"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "info":
		err = runInfo(os.Args[2:])
	case "ls":
		err = runList(os.Args[2:])
	case "cat":
		err = runCat(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "hpi: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("hpi: %v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: hpi <command> [flags] <archive> ...

commands:
  info     print an archive summary
  ls       list entries
  cat      write one file to stdout
  extract  extract files to a directory

run "hpi <command> -h" for command flags`)
}

// openArchive opens path, wiring debug logging to stderr when asked.
func openArchive(path string, verbose bool) (*hpi.Archive, error) {
	var opts []hpi.Option
	if verbose {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		opts = append(opts, hpi.WithLogger(slog.New(handler)))
	}
	return hpi.Open(path, opts...)
}

func runInfo(args []string) error {
	fl := flag.NewFlagSet("info", flag.ExitOnError)
	verbose := fl.Bool("v", false, "debug logging")
	_ = fl.Parse(args)
	if fl.NArg() != 1 {
		return errors.New("usage: hpi info <archive>")
	}

	a, err := openArchive(fl.Arg(0), *verbose)
	if err != nil {
		return err
	}
	defer a.Close()

	var files, dirs int
	var content uint64
	for e := range a.Entries() {
		if e.Path() == "" {
			continue
		}
		if e.IsDir() {
			dirs++
		} else {
			files++
			content += uint64(e.Size())
		}
	}

	scrambled := "no"
	if a.Scrambled() {
		scrambled = "yes"
	}
	fmt.Printf("archive:    %s\n", fl.Arg(0))
	fmt.Printf("size:       %d bytes\n", a.Size())
	fmt.Printf("scrambled:  %s\n", scrambled)
	fmt.Printf("files:      %d\n", files)
	fmt.Printf("dirs:       %d\n", dirs)
	fmt.Printf("content:    %d bytes uncompressed\n", content)
	return nil
}

func runList(args []string) error {
	fl := flag.NewFlagSet("ls", flag.ExitOnError)
	long := fl.Bool("l", false, "print sizes")
	withDigest := fl.Bool("digest", false, "print content digests (reads every file)")
	_ = fl.Parse(args)
	if fl.NArg() < 1 || fl.NArg() > 2 {
		return errors.New("usage: hpi ls [-l] [-digest] <archive> [dir]")
	}

	a, err := openArchive(fl.Arg(0), false)
	if err != nil {
		return err
	}
	defer a.Close()

	start := "."
	if fl.NArg() == 2 {
		start = path.Clean(fl.Arg(1))
	}

	return fs.WalkDir(a, start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if d.IsDir() {
			if !*withDigest {
				fmt.Println(p + "/")
			}
			return nil
		}

		line := p
		if *long {
			info, err := d.Info()
			if err != nil {
				return err
			}
			line = fmt.Sprintf("%10d  %s", info.Size(), p)
		}
		if *withDigest {
			content, err := a.ReadFile(p)
			if err != nil {
				return err
			}
			line = digest.FromBytes(content).String() + "  " + line
		}
		fmt.Println(line)
		return nil
	})
}

func runCat(args []string) error {
	fl := flag.NewFlagSet("cat", flag.ExitOnError)
	_ = fl.Parse(args)
	if fl.NArg() != 2 {
		return errors.New("usage: hpi cat <archive> <path>")
	}

	a, err := openArchive(fl.Arg(0), false)
	if err != nil {
		return err
	}
	defer a.Close()

	content, err := a.ReadFile(fl.Arg(1))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(content)
	return err
}
