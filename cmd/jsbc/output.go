package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chazu/jsbc/manifest"
	"github.com/chazu/jsbc/store"
	"github.com/chazu/jsbc/vm"
	"github.com/chazu/jsbc/vm/dist"
)

// compileAll compiles files and reports, dumps and writes the results in
// input order. It returns the process exit status.
func compileAll(m *manifest.Manifest, o *options, files []string, stdout, stderr io.Writer) int {
	ctx := context.Background()

	var units []*unit
	if o.remote != "" {
		var err error
		if units, err = compileRemote(ctx, m, o.remote, files); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		var cache *store.Store
		if m.Cache.Enabled {
			var err error
			if cache, err = store.Open(m.CachePath()); err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
			defer cache.Close()
		}
		units = compileLocal(ctx, m, cache, files, o.jobs)
	}

	status, compiled, cached := 0, 0, 0
	for _, u := range units {
		for _, d := range u.diags {
			kind := "error"
			if d.Warning {
				kind = "warning"
			}
			fmt.Fprintf(stderr, "%s:%d:%d: %s: %s\n", u.path, d.Line, d.Column, kind, d.Message)
		}
		if u.err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", u.path, u.err)
			status = 1
			continue
		}
		compiled++
		if u.cached {
			cached++
		}
		dump(stdout, u, o)
		if m.Output.Dir != "" {
			if err := writeScript(m, u); err != nil {
				fmt.Fprintf(stderr, "%s: %v\n", u.path, err)
				status = 1
			}
		}
	}
	log.Infof("compiled %d of %d files (%d from cache)", compiled, len(units), cached)
	return status
}

// dump prints the requested listings for u and each nested function.
func dump(w io.Writer, u *unit, o *options) {
	if !o.disasm && !o.notes && !o.tryNotes {
		return
	}
	var walk func(name string, s *vm.Script)
	walk = func(name string, s *vm.Script) {
		fmt.Fprintf(w, "== %s (%x) ==\n", name, s.Hash[:6])
		if o.disasm {
			io.WriteString(w, vm.Disassemble(s))
		}
		if o.notes {
			fmt.Fprintf(w, "-- source notes --\n")
			io.WriteString(w, vm.DumpNotes(s))
		}
		if o.tryNotes && len(s.TryNotes) > 0 {
			fmt.Fprintf(w, "-- try notes --\n")
			io.WriteString(w, vm.DumpTryNotes(s))
		}
		for _, obj := range s.Objects {
			if obj.Kind == vm.ObjectFunction && obj.Script != nil {
				fn := obj.Name
				if fn == "" {
					fn = "<anonymous>"
				}
				walk(name+"/"+fn, obj.Script)
			}
		}
	}
	walk(u.path, u.script)
}

// writeScript writes u's script in the manifest's output format.
func writeScript(m *manifest.Manifest, u *unit) error {
	path := m.OutputPath(u.path)
	var data []byte
	switch m.Output.Format {
	case "disasm":
		data = []byte(vm.Disassemble(u.script))
	default:
		var err error
		if data, err = dist.MarshalScript(u.script); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Debugf("wrote %s (%d bytes)", path, len(data))
	return nil
}
