package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/jsbc/store"
	"github.com/chazu/jsbc/vm"
	"github.com/chazu/jsbc/vm/dist"
)

// ---------------------------------------------------------------------------
// Fixtures: ESTree programs
// ---------------------------------------------------------------------------

// addOne is "1 + x;".
const addOne = `{"type":"Program","body":[{"type":"ExpressionStatement",
  "loc":{"start":{"line":1,"column":0},"end":{"line":1,"column":6}},
  "expression":{"type":"BinaryExpression","operator":"+",
    "left":{"type":"Literal","value":1},"right":{"type":"Identifier","name":"x"}}}]}`

// withFunction is "function f(a) { return a } f(2);".
const withFunction = `{"type":"Program","body":[
  {"type":"FunctionDeclaration","id":{"type":"Identifier","name":"f"},
   "params":[{"type":"Identifier","name":"a"}],
   "body":{"type":"BlockStatement","body":[{"type":"ReturnStatement","argument":{"type":"Identifier","name":"a"}}]}},
  {"type":"ExpressionStatement","expression":{"type":"CallExpression",
   "callee":{"type":"Identifier","name":"f"},"arguments":[{"type":"Literal","value":2}]}}]}`

// topReturn is "return;" at top level, which the compiler rejects.
const topReturn = `{"type":"Program","body":[{"type":"ReturnStatement","argument":null}]}`

// deepNegation nests n unary minus operators around 1.
func deepNegation(n int) string {
	return `{"type":"Program","body":[{"type":"ExpressionStatement","expression":` +
		strings.Repeat(`{"type":"UnaryExpression","operator":"-","prefix":true,"argument":`, n) +
		`{"type":"Literal","value":1}` + strings.Repeat("}", n) + `}]}`
}

func request(filename, ast string) *dist.CompileRequest {
	return &dist.CompileRequest{Version: dist.WireVersion, Filename: filename, AST: []byte(ast)}
}

// newTestServer starts a JSBCServer behind httptest and returns a client.
func newTestServer(t *testing.T, opts ...ServerOption) (*JSBCServer, *CompileServiceClient) {
	t.Helper()
	s := New(append([]ServerOption{WithWorkers(2)}, opts...)...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return s, NewCompileServiceClient(ts.Client(), ts.URL)
}

// ---------------------------------------------------------------------------
// Compile
// ---------------------------------------------------------------------------

func TestCompile(t *testing.T) {
	s, client := newTestServer(t)

	resp, err := client.Compile(context.Background(), request("add.js", addOne))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if resp.Failed() {
		t.Fatalf("Compile failed: %+v", resp.Diagnostics)
	}
	if resp.UnitID == "" {
		t.Error("missing unit id")
	}
	if resp.Cached {
		t.Error("first compile reported as cached")
	}
	if err := dist.VerifyResponse(resp); err != nil {
		t.Errorf("VerifyResponse: %v", err)
	}
	if resp.Script.Filename != "add.js" {
		t.Errorf("filename = %q, want add.js", resp.Script.Filename)
	}

	var ops []string
	for _, in := range vm.DecodeAll(resp.Script.Main()) {
		ops = append(ops, in.Op.Name())
	}
	if got, want := strings.Join(ops, " "), "ONE NAME ADD POPV STOP"; got != want {
		t.Errorf("main = %q, want %q", got, want)
	}
	if !s.Index().HasHash(resp.Hash) {
		t.Error("compiled script not indexed")
	}
}

func TestCompile_NestedFunctions(t *testing.T) {
	s, client := newTestServer(t)

	resp, err := client.Compile(context.Background(), request("f.js", withFunction))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(resp.Functions) != 1 {
		t.Fatalf("functions = %d, want 1", len(resp.Functions))
	}
	if err := dist.VerifyClosure(resp.Functions, s.Index()); err != nil {
		t.Errorf("VerifyClosure: %v", err)
	}
}

func TestCompile_Errors(t *testing.T) {
	_, client := newTestServer(t)

	tests := []struct {
		name string
		req  *dist.CompileRequest
		code connect.Code
	}{
		{"empty ast", &dist.CompileRequest{Version: dist.WireVersion}, connect.CodeInvalidArgument},
		{"version", &dist.CompileRequest{Version: 99, AST: []byte(addOne)}, connect.CodeInvalidArgument},
		{"bad json", request("x.js", `{"type":`), connect.CodeInvalidArgument},
		{"unsupported", request("x.js", `{"type":"Program","body":[{"type":"ClassDeclaration"}]}`), connect.CodeInvalidArgument},
		{"syntax", request("x.js", topReturn), connect.CodeInvalidArgument},
		{"recursion", &dist.CompileRequest{
			Version: dist.WireVersion,
			AST:     []byte(deepNegation(40)),
			Options: dist.CompileOptions{MaxDepth: 10},
		}, connect.CodeResourceExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Compile(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := connect.CodeOf(err); got != tt.code {
				t.Errorf("code = %v, want %v (%v)", got, tt.code, err)
			}
		})
	}
}

func TestCompile_StrictWarning(t *testing.T) {
	_, client := newTestServer(t)

	// "x;" is useless when the completion value is not wanted.
	useless := `{"type":"Program","body":[{"type":"ExpressionStatement","expression":{"type":"Literal","value":1}}]}`

	req := request("w.js", useless)
	req.Options.NoScriptRval = true
	resp, err := client.Compile(context.Background(), req)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(resp.Diagnostics) != 1 || !resp.Diagnostics[0].Warning {
		t.Fatalf("diagnostics = %+v, want one warning", resp.Diagnostics)
	}
	if !strings.Contains(resp.Diagnostics[0].Message, "useless") {
		t.Errorf("warning = %q", resp.Diagnostics[0].Message)
	}

	req.Options.Strict = true
	if _, err := client.Compile(context.Background(), req); connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("strict: err = %v, want invalid argument", err)
	}
}

// ---------------------------------------------------------------------------
// Cache
// ---------------------------------------------------------------------------

func TestCompile_Cache(t *testing.T) {
	cache, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	_, client := newTestServer(t, WithCache(cache))

	first, err := client.Compile(context.Background(), request("f.js", withFunction))
	if err != nil {
		t.Fatalf("first Compile: %v", err)
	}
	second, err := client.Compile(context.Background(), request("f.js", withFunction))
	if err != nil {
		t.Fatalf("second Compile: %v", err)
	}
	if !second.Cached {
		t.Error("second compile not served from cache")
	}
	if second.UnitID != first.UnitID {
		t.Errorf("unit id = %s, want %s", second.UnitID, first.UnitID)
	}
	if second.Hash != first.Hash {
		t.Error("cached script hash differs")
	}
	if err := dist.VerifyResponse(second); err != nil {
		t.Errorf("VerifyResponse: %v", err)
	}

	// Different options are a different compilation.
	req := request("f.js", withFunction)
	req.Options.CompileAndGo = true
	third, err := client.Compile(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if third.Cached {
		t.Error("compile-and-go unit served from the plain entry")
	}
	if n, _ := cache.Count(context.Background()); n != 2 {
		t.Errorf("cache entries = %d, want 2", n)
	}
}

func TestCompile_CacheKeepsWarnings(t *testing.T) {
	cache, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	_, client := newTestServer(t, WithCache(cache))

	useless := `{"type":"Program","body":[{"type":"ExpressionStatement",
	  "loc":{"start":{"line":2,"column":0},"end":{"line":2,"column":2}},
	  "expression":{"type":"Literal","value":1,
	    "loc":{"start":{"line":2,"column":0},"end":{"line":2,"column":1}}}}]}`
	req := request("w.js", useless)
	req.Options.NoScriptRval = true

	first, err := client.Compile(context.Background(), req)
	if err != nil {
		t.Fatalf("first Compile: %v", err)
	}
	second, err := client.Compile(context.Background(), req)
	if err != nil {
		t.Fatalf("second Compile: %v", err)
	}
	if !second.Cached {
		t.Fatal("second compile not served from cache")
	}
	if len(first.Diagnostics) != 1 {
		t.Fatalf("first diagnostics = %+v, want one warning", first.Diagnostics)
	}
	if len(second.Diagnostics) != 1 || second.Diagnostics[0] != first.Diagnostics[0] {
		t.Errorf("cached diagnostics = %+v, want %+v", second.Diagnostics, first.Diagnostics)
	}
	if d := second.Diagnostics[0]; d.Line != 2 || d.Column != 1 || !d.Warning {
		t.Errorf("cached warning = %+v, want a warning at 2:1", d)
	}
}

// ---------------------------------------------------------------------------
// CompileBatch
// ---------------------------------------------------------------------------

func TestCompileBatch(t *testing.T) {
	_, client := newTestServer(t)

	resp, err := client.CompileBatch(context.Background(), &dist.BatchRequest{Units: []dist.CompileRequest{
		*request("a.js", addOne),
		*request("f.js", withFunction),
		*request("bad.js", topReturn),
	}})
	if err != nil {
		t.Fatalf("CompileBatch: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	for i, name := range []string{"a.js", "f.js"} {
		r := resp.Results[i]
		if r.Failed() {
			t.Errorf("%s failed: %+v", name, r.Diagnostics)
			continue
		}
		if r.Script.Filename != name {
			t.Errorf("result %d filename = %q, want %s (order not kept)", i, r.Script.Filename, name)
		}
	}
	bad := resp.Results[2]
	if !bad.Failed() {
		t.Fatal("bad.js compiled")
	}
	if len(bad.Diagnostics) == 0 || bad.Diagnostics[len(bad.Diagnostics)-1].Warning {
		t.Errorf("bad.js diagnostics = %+v, want a trailing error", bad.Diagnostics)
	}
	if bad.UnitID == "" {
		t.Error("failed unit has no id")
	}
}

func TestCompileBatch_Empty(t *testing.T) {
	_, client := newTestServer(t)
	_, err := client.CompileBatch(context.Background(), &dist.BatchRequest{})
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("err = %v, want invalid argument", err)
	}
}

// ---------------------------------------------------------------------------
// Wire level
// ---------------------------------------------------------------------------

func TestCompile_RawCBOR(t *testing.T) {
	s := New(WithWorkers(1))
	defer s.Stop()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body, err := dist.MarshalCompileRequest(request("raw.js", addOne))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(ts.URL+CompileServiceCompileProcedure, "application/cbor", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, msg)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/cbor" {
		t.Errorf("content type = %q, want application/cbor", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	got, err := dist.UnmarshalCompileResponse(data)
	if err != nil {
		t.Fatalf("UnmarshalCompileResponse: %v", err)
	}
	if err := dist.VerifyResponse(got); err != nil {
		t.Errorf("VerifyResponse: %v", err)
	}
}

func TestUnknownProcedure(t *testing.T) {
	s := New(WithWorkers(1))
	defer s.Stop()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/jsbc.v1.CompileService/Link", "application/cbor", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
