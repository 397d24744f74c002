package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/chazu/beamrt/loader"
	"github.com/chazu/beamrt/vm"
	"github.com/chazu/beamrt/vm/crashdump"
)

func asmCommand(args []string) error {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: input with .bim extension)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: beamrt asm [-o out.bim] module.yaml\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	in := fs.Arg(0)

	img, err := loader.ReadFile(in)
	if err != nil {
		return err
	}
	// Link once so errors show up now instead of at load time.
	if _, err := img.Link(vm.NewAtomTable()); err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	data, err := loader.EncodeImage(img)
	if err != nil {
		return err
	}
	if *out == "" {
		*out = strings.TrimSuffix(in, loader.AssemblyExt) + loader.ImageExt
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s: %d instructions, %d bytes\n", *out, len(img.Code), len(data))
	return nil
}

func disCommand(args []string) error {
	fs := flag.NewFlagSet("dis", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: beamrt dis module.bim|module.yaml\n\n")
		fmt.Fprintf(os.Stderr, "Labels are replaced by the code offsets they resolve to.\n")
	}
	fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	img, err := loader.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	atoms := vm.NewAtomTable()
	m, err := img.Link(atoms)
	if err != nil {
		return err
	}
	linked, err := loader.Disassemble(atoms, m)
	if err != nil {
		return err
	}
	return loader.WriteAssembly(os.Stdout, linked)
}

func crashCommand(args []string) error {
	fs := flag.NewFlagSet("crash", flag.ExitOnError)
	stack := fs.Bool("stack", false, "Print stack words")
	db := fs.String("db", "", "Read dumps from an index database instead of files")
	entry := fs.String("entry", "", "With -db, only dumps of this module:function/arity")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: beamrt crash [-stack] dump%s...\n", crashdump.Ext)
		fmt.Fprintf(os.Stderr, "       beamrt crash -db index.db [-entry m:f/a] [id...]\n\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	var dumps []*crashdump.Dump
	switch {
	case *db != "":
		ix, err := crashdump.OpenIndex(*db)
		if err != nil {
			return err
		}
		defer ix.Close()
		if fs.NArg() == 0 {
			if dumps, err = ix.List(*entry); err != nil {
				return err
			}
		}
		for _, id := range fs.Args() {
			d, err := ix.Get(id)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			dumps = append(dumps, d)
		}
	case fs.NArg() > 0:
		for _, path := range fs.Args() {
			d, err := crashdump.ReadFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			dumps = append(dumps, d)
		}
	default:
		fs.Usage()
		os.Exit(2)
	}

	for _, d := range dumps {
		fmt.Printf("%s  %s\n", d.ID, d.Time.Format("2006-01-02 15:04:05"))
		fmt.Printf("  process  %s running %s\n", d.Pid, d.Entry)
		if d.Kind != "" {
			fmt.Printf("  raised   %s in %s\n", d.Kind, d.Site)
		}
		fmt.Printf("  reason   %s\n", d.Reason)
		fmt.Printf("  at       ip=%s cp=%s\n", d.IP, d.CP)
		fmt.Printf("  memory   heap=%d stack=%d capacity=%d\n", d.HeapUsed, d.StackUsed, d.Capacity)
		fmt.Printf("  mailbox  %d messages, %d slices run\n", d.Messages, d.Slices)
		if len(d.Objects) > 0 {
			kinds := make([]string, 0, len(d.Objects))
			for k := range d.Objects {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for i, k := range kinds {
				kinds[i] = fmt.Sprintf("%s=%d", k, d.Objects[k])
			}
			fmt.Printf("  objects  %s\n", strings.Join(kinds, " "))
		}
		for i, x := range d.X {
			fmt.Printf("  x%-7d %s\n", i, x)
		}
		if *stack {
			for i, w := range d.Stack {
				fmt.Printf("  stack %-3d %s\n", i, w)
			}
		}
	}
	return nil
}
