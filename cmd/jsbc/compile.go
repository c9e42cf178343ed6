package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/jsbc/compiler"
	"github.com/chazu/jsbc/compiler/estree"
	"github.com/chazu/jsbc/manifest"
	"github.com/chazu/jsbc/server"
	"github.com/chazu/jsbc/store"
	"github.com/chazu/jsbc/vm"
	"github.com/chazu/jsbc/vm/dist"
)

// unit is the outcome of compiling one file.
type unit struct {
	path   string
	script *vm.Script
	diags  []dist.Diagnostic
	cached bool
	err    error
}

func wireOptions(m *manifest.Manifest) dist.CompileOptions {
	return dist.CompileOptions{
		FirstLine:    m.Compile.FirstLine,
		CompileAndGo: m.Compile.CompileAndGo,
		NoScriptRval: m.Compile.NoScriptRval,
		Strict:       m.Compile.Strict,
		MaxDepth:     m.Compile.MaxDepth,
	}
}

// compileLocal compiles files concurrently, each with its own compiler.
// Per-file failures are recorded in the unit, not returned.
func compileLocal(ctx context.Context, m *manifest.Manifest, cache *store.Store, files []string, jobs int) []*unit {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	units := make([]*unit, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range files {
		units[i] = &unit{path: path}
		g.Go(func() error {
			compileFile(gctx, m, cache, units[i])
			return nil
		})
	}
	g.Wait()
	return units
}

func compileFile(ctx context.Context, m *manifest.Manifest, cache *store.Store, u *unit) {
	data, err := os.ReadFile(u.path)
	if err != nil {
		u.err = err
		return
	}

	var key store.Key
	if cache != nil {
		if key, err = store.MakeKey(u.path, data, wireOptions(m)); err != nil {
			u.err = err
			return
		}
		if e, err := cache.Get(ctx, key); err == nil {
			log.Debugf("%s: cache hit (unit %s)", u.path, e.UnitID)
			u.script, u.diags, u.cached = e.Script, e.Diagnostics, true
			return
		}
	}

	prog, err := estree.Decode(data)
	if err != nil {
		u.err = err
		return
	}
	c := compiler.NewCompiler(nil, nil, nil)
	script, err := c.CompileProgram(prog, m.Options(u.path))
	for _, d := range c.Diagnostics() {
		u.diags = append(u.diags, dist.Diagnostic{Line: d.Pos.Line, Column: d.Pos.Column, Message: d.Msg, Warning: d.Warning})
	}
	if err != nil {
		u.err = err
		return
	}
	u.script = script

	if cache != nil {
		if err := cache.Put(ctx, key, uuid.New(), script, u.diags); err != nil {
			log.Warningf("%s: cache store: %s", u.path, err)
		}
	}
}

// compileRemote sends every file to a compile service in one batch.
func compileRemote(ctx context.Context, m *manifest.Manifest, url string, files []string) ([]*unit, error) {
	req := &dist.BatchRequest{}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		req.Units = append(req.Units, dist.CompileRequest{
			Version:  dist.WireVersion,
			Filename: path,
			AST:      data,
			Options:  wireOptions(m),
		})
	}

	client := server.NewCompileServiceClient(http.DefaultClient, url)
	resp, err := client.CompileBatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("remote compile: %w", err)
	}
	if len(resp.Results) != len(files) {
		return nil, fmt.Errorf("remote compile: got %d results for %d files", len(resp.Results), len(files))
	}

	units := make([]*unit, len(files))
	for i, r := range resp.Results {
		u := &unit{path: files[i], diags: r.Diagnostics, cached: r.Cached}
		switch {
		case r.Failed():
			// The last diagnostic carries the failure.
			if n := len(u.diags); n > 0 {
				u.err = fmt.Errorf("%s", u.diags[n-1].Message)
				u.diags = u.diags[:n-1]
			} else {
				u.err = fmt.Errorf("compile failed")
			}
		default:
			if err := dist.VerifyResponse(&r); err != nil {
				u.err = err
			} else {
				u.script = r.Script
			}
		}
		units[i] = u
	}
	return units, nil
}

// serve runs the compile service until it fails.
func serve(m *manifest.Manifest, addr string) error {
	var opts []server.ServerOption
	if m.Cache.Enabled {
		cache, err := store.Open(m.CachePath())
		if err != nil {
			return err
		}
		defer cache.Close()
		opts = append(opts, server.WithCache(cache))
	}
	srv := server.New(opts...)
	defer srv.Stop()
	return srv.ListenAndServe(addr)
}
