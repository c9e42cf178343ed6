package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/jsbc/compiler"
	"github.com/chazu/jsbc/compiler/estree"
	"github.com/chazu/jsbc/store"
	"github.com/chazu/jsbc/vm"
	"github.com/chazu/jsbc/vm/dist"
)

// MaxBatchUnits bounds the number of units in one CompileBatch call.
const MaxBatchUnits = 1024

// CompileService implements the CompileService connect handler.
type CompileService struct {
	pool       *WorkerPool
	cache      *store.Store // nil disables caching
	index      *vm.ContentStore
	arenaLimit int
}

// NewCompileService creates a CompileService. cache may be nil.
func NewCompileService(pool *WorkerPool, cache *store.Store, index *vm.ContentStore, arenaLimit int) *CompileService {
	return &CompileService{
		pool:       pool,
		cache:      cache,
		index:      index,
		arenaLimit: arenaLimit,
	}
}

// unitError is a compilation failure of one unit, reported as data in a
// batch and as an error code for a single Compile.
type unitError struct {
	code        connect.Code
	err         error
	diagnostics []dist.Diagnostic
}

func (e *unitError) Error() string { return e.err.Error() }
func (e *unitError) Unwrap() error { return e.err }

// Compile compiles one ESTree program.
func (s *CompileService) Compile(
	ctx context.Context,
	req *connect.Request[dist.CompileRequest],
) (*connect.Response[dist.CompileResponse], error) {
	resp, err := s.compileUnit(ctx, req.Msg)
	if err != nil {
		var ue *unitError
		if errors.As(err, &ue) {
			return nil, connect.NewError(ue.code, ue.err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(resp), nil
}

// CompileBatch compiles independent units concurrently. A unit that fails
// to compile yields a failed result; only cancellation or an internal
// error fails the whole call.
func (s *CompileService) CompileBatch(
	ctx context.Context,
	req *connect.Request[dist.BatchRequest],
) (*connect.Response[dist.BatchResponse], error) {
	units := req.Msg.Units
	if len(units) == 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("at least one unit is required"))
	}
	if len(units) > MaxBatchUnits {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("batch has %d units, limit is %d", len(units), MaxBatchUnits))
	}

	results := make([]dist.CompileResponse, len(units))
	g, gctx := errgroup.WithContext(ctx)
	for i := range units {
		g.Go(func() error {
			resp, err := s.compileUnit(gctx, &units[i])
			if err != nil {
				var ue *unitError
				if !errors.As(err, &ue) {
					return err
				}
				results[i] = dist.CompileResponse{
					UnitID:      uuid.NewString(),
					Diagnostics: append(ue.diagnostics, dist.Diagnostic{Message: ue.err.Error()}),
				}
				return nil
			}
			results[i] = *resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, connect.NewError(connect.CodeCanceled, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&dist.BatchResponse{Results: results}), nil
}

type unitResult struct {
	script      *vm.Script
	diagnostics []compiler.Diagnostic
}

// compileUnit serves one unit from the cache or compiles it on the pool.
func (s *CompileService) compileUnit(ctx context.Context, r *dist.CompileRequest) (*dist.CompileResponse, error) {
	if r.Version != dist.WireVersion {
		return nil, &unitError{code: connect.CodeInvalidArgument,
			err: fmt.Errorf("wire version %d, want %d", r.Version, dist.WireVersion)}
	}
	if len(r.AST) == 0 {
		return nil, &unitError{code: connect.CodeInvalidArgument, err: fmt.Errorf("ast is required")}
	}

	var key store.Key
	if s.cache != nil {
		var err error
		if key, err = store.MakeKey(r.Filename, r.AST, r.Options); err != nil {
			return nil, err
		}
		entry, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			log.Debugf("%s: cache hit, unit %s", r.Filename, entry.UnitID)
			s.index.IndexScript(entry.Script)
			return newResponse(entry.UnitID, entry.Script, entry.Diagnostics, true), nil
		case !errors.Is(err, store.ErrNotFound):
			log.Warningf("%s: cache lookup: %s", r.Filename, err)
		}
	}

	prog, err := estree.Decode(r.AST)
	if err != nil {
		return nil, &unitError{code: connect.CodeInvalidArgument, err: err}
	}

	opts := compileOptions(r)
	value, err := s.pool.Do(ctx, func() (any, error) {
		c := compiler.NewCompiler(nil, nil, compiler.NewArena(compiler.DefaultArenaChunk, s.arenaLimit))
		script, err := c.CompileProgram(prog, opts)
		return &unitResult{script: script, diagnostics: c.Diagnostics()}, err
	})
	if err != nil {
		var ce *compiler.Error
		if errors.As(err, &ce) {
			var diags []dist.Diagnostic
			if res, ok := value.(*unitResult); ok {
				diags = wireDiagnostics(res.diagnostics)
			}
			return nil, &unitError{code: errorCode(ce.Kind), err: err, diagnostics: diags}
		}
		return nil, err
	}
	res := value.(*unitResult)
	diags := wireDiagnostics(res.diagnostics)

	id := uuid.New()
	if s.cache != nil {
		if err := s.cache.Put(ctx, key, id, res.script, diags); err != nil {
			log.Warningf("%s: cache store: %s", r.Filename, err)
		}
	}
	s.index.IndexScript(res.script)
	log.Debugf("%s: compiled unit %s, hash %x", r.Filename, id, res.script.Hash[:8])
	return newResponse(id, res.script, diags, false), nil
}

func compileOptions(r *dist.CompileRequest) compiler.Options {
	return compiler.Options{
		Filename:     r.Filename,
		FirstLine:    r.Options.FirstLine,
		CompileAndGo: r.Options.CompileAndGo,
		NoScriptRval: r.Options.NoScriptRval,
		Strict:       r.Options.Strict,
		MaxDepth:     r.Options.MaxDepth,
	}
}

func errorCode(k compiler.ErrorKind) connect.Code {
	switch k {
	case compiler.ErrOutOfMemory, compiler.ErrRecursion:
		return connect.CodeResourceExhausted
	case compiler.ErrInternal:
		return connect.CodeInternal
	}
	return connect.CodeInvalidArgument
}

func newResponse(id uuid.UUID, script *vm.Script, diags []dist.Diagnostic, cached bool) *dist.CompileResponse {
	return &dist.CompileResponse{
		UnitID:      id.String(),
		Script:      script,
		Hash:        script.Hash,
		Functions:   dist.FunctionHashes(script),
		Diagnostics: diags,
		Cached:      cached,
	}
}

func wireDiagnostics(diags []compiler.Diagnostic) []dist.Diagnostic {
	if len(diags) == 0 {
		return nil
	}
	out := make([]dist.Diagnostic, len(diags))
	for i, d := range diags {
		out[i] = dist.Diagnostic{
			Line:    d.Pos.Line,
			Column:  d.Pos.Column,
			Message: d.Msg,
			Warning: d.Warning,
		}
	}
	return out
}
