package dist

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/jsbc/vm"
)

// sampleScript builds a small script with one nested function by hand:
// ONE POPV STOP at top level, and a function body GETARG 0 RETURN STOP.
func sampleScript() *vm.Script {
	fun := &vm.Script{
		Code:          []byte{byte(vm.OpGetArg), 0, 0, byte(vm.OpReturn), byte(vm.OpStop)},
		Notes:         []byte{byte(vm.SrcNull)},
		Atoms:         []vm.Atom{vm.StringAtom("x")},
		MaxStackDepth: 1,
		NArgs:         1,
		Flags:         vm.ScriptFunction,
	}
	fun.Hash = fun.ComputeHash()

	s := &vm.Script{
		Code:  []byte{byte(vm.OpDefFun), 0, 0, byte(vm.OpOne), byte(vm.OpPopv), byte(vm.OpStop)},
		Notes: []byte{byte(vm.SrcNull)},
		TryNotes: []vm.TryNote{
			{Kind: vm.TryCatch, StackDepth: 0, Start: 1, Length: 1},
		},
		Atoms: []vm.Atom{vm.StringAtom("f"), vm.NumberAtom(2.5)},
		Objects: []*vm.Object{
			{Kind: vm.ObjectFunction, Name: "f", Params: []string{"x"}, Script: fun},
		},
		Upvars:        []uint32{vm.UpvarCookie(1, 2)},
		Filename:      "sample.js",
		LineBase:      3,
		MainOffset:    3,
		MaxStackDepth: 1,
	}
	s.Hash = s.ComputeHash()
	return s
}

func TestScript_CBORRoundTrip(t *testing.T) {
	s := sampleScript()

	data, err := MarshalScript(s)
	if err != nil {
		t.Fatalf("MarshalScript: %v", err)
	}
	got, err := UnmarshalScript(data)
	if err != nil {
		t.Fatalf("UnmarshalScript: %v", err)
	}

	if !bytes.Equal(got.Code, s.Code) {
		t.Errorf("Code: got %v, want %v", got.Code, s.Code)
	}
	if got.MainOffset != s.MainOffset {
		t.Errorf("MainOffset: got %d, want %d", got.MainOffset, s.MainOffset)
	}
	if got.Filename != "sample.js" || got.LineBase != 3 {
		t.Errorf("Filename/LineBase: got %q/%d", got.Filename, got.LineBase)
	}
	if len(got.TryNotes) != 1 || got.TryNotes[0] != s.TryNotes[0] {
		t.Errorf("TryNotes: got %+v, want %+v", got.TryNotes, s.TryNotes)
	}
	if len(got.Atoms) != 2 || got.Atoms[1].Num != 2.5 {
		t.Errorf("Atoms: got %+v", got.Atoms)
	}
	if len(got.Objects) != 1 || got.Objects[0].Script == nil {
		t.Fatalf("Objects: got %+v", got.Objects)
	}
	if got.Objects[0].Script.NArgs != 1 {
		t.Errorf("nested NArgs: got %d, want 1", got.Objects[0].Script.NArgs)
	}
	if got.Hash != s.Hash {
		t.Error("Hash mismatch")
	}
	if err := VerifyScript(got); err != nil {
		t.Errorf("VerifyScript: %v", err)
	}
}

func TestScript_CanonicalEncoding(t *testing.T) {
	a, err := MarshalScript(sampleScript())
	if err != nil {
		t.Fatal(err)
	}
	b, err := MarshalScript(sampleScript())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("equal scripts encoded differently")
	}
}

func TestNegativeZeroAtomSurvives(t *testing.T) {
	s := &vm.Script{
		Code:  []byte{byte(vm.OpStop)},
		Notes: []byte{byte(vm.SrcNull)},
		Atoms: []vm.Atom{vm.NumberAtom(0), vm.NumberAtom(negZero())},
	}
	s.Hash = s.ComputeHash()

	data, err := MarshalScript(s)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalScript(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyScript(got); err != nil {
		t.Errorf("VerifyScript after -0 round trip: %v", err)
	}
}

func negZero() float64 {
	z := 0.0
	return -z
}

func TestVerifyScript_Tampered(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(s *vm.Script)
	}{
		{"code", func(s *vm.Script) { s.Code[3] = byte(vm.OpZero) }},
		{"atom", func(s *vm.Script) { s.Atoms[0] = vm.StringAtom("g") }},
		{"depth", func(s *vm.Script) { s.MaxStackDepth = 9 }},
		{"nested", func(s *vm.Script) { s.Objects[0].Script.NArgs = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleScript()
			tt.tamper(s)
			err := VerifyScript(s)
			if !errors.Is(err, ErrHashMismatch) {
				t.Errorf("got %v, want ErrHashMismatch", err)
			}
		})
	}
}

func TestVerifyScript_IgnoresFilename(t *testing.T) {
	s := sampleScript()
	s.Filename = "elsewhere.js"
	s.LineBase = 100
	if err := VerifyScript(s); err != nil {
		t.Errorf("VerifyScript: %v", err)
	}
}

func TestCompileRequest_CBORRoundTrip(t *testing.T) {
	r := &CompileRequest{
		Version:  WireVersion,
		Filename: "a.js",
		AST:      []byte(`{"type":"Program","body":[]}`),
		Options:  CompileOptions{FirstLine: 4, CompileAndGo: true, Strict: true, MaxDepth: 50},
	}
	data, err := MarshalCompileRequest(r)
	if err != nil {
		t.Fatalf("MarshalCompileRequest: %v", err)
	}
	got, err := UnmarshalCompileRequest(data)
	if err != nil {
		t.Fatalf("UnmarshalCompileRequest: %v", err)
	}
	if got.Filename != r.Filename || !bytes.Equal(got.AST, r.AST) {
		t.Errorf("got %+v, want %+v", got, r)
	}
	if got.Options != r.Options {
		t.Errorf("Options: got %+v, want %+v", got.Options, r.Options)
	}
}

func TestCompileResponse_CBORRoundTrip(t *testing.T) {
	s := sampleScript()
	r := &CompileResponse{
		UnitID:    "unit-1",
		Script:    s,
		Hash:      s.Hash,
		Functions: FunctionHashes(s),
		Diagnostics: []Diagnostic{
			{Line: 2, Column: 1, Message: "useless expression", Warning: true},
		},
	}
	data, err := MarshalCompileResponse(r)
	if err != nil {
		t.Fatalf("MarshalCompileResponse: %v", err)
	}
	got, err := UnmarshalCompileResponse(data)
	if err != nil {
		t.Fatalf("UnmarshalCompileResponse: %v", err)
	}
	if got.UnitID != "unit-1" || got.Failed() {
		t.Errorf("got %+v", got)
	}
	if len(got.Diagnostics) != 1 || got.Diagnostics[0] != r.Diagnostics[0] {
		t.Errorf("Diagnostics: got %+v, want %+v", got.Diagnostics, r.Diagnostics)
	}
	if err := VerifyResponse(got); err != nil {
		t.Errorf("VerifyResponse: %v", err)
	}
}

func TestVerifyResponse_HashDisagrees(t *testing.T) {
	s := sampleScript()
	r := &CompileResponse{Script: s}
	if err := VerifyResponse(r); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("got %v, want ErrHashMismatch", err)
	}
}

func TestVerifyResponse_Failed(t *testing.T) {
	r := &CompileResponse{Diagnostics: []Diagnostic{{Line: 1, Message: "boom"}}}
	if !r.Failed() {
		t.Fatal("response without script should be failed")
	}
	if err := VerifyResponse(r); err != nil {
		t.Errorf("VerifyResponse: %v", err)
	}
}

func TestBatch_CBORRoundTrip(t *testing.T) {
	b := &BatchRequest{Units: []CompileRequest{
		{Version: WireVersion, Filename: "a.js", AST: []byte("{}")},
		{Version: WireVersion, Filename: "b.js", AST: []byte("{}")},
	}}
	data, err := Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	var got BatchRequest
	if err := Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Units) != 2 || got.Units[1].Filename != "b.js" {
		t.Errorf("got %+v", got)
	}
}

func TestUnmarshal_Garbage(t *testing.T) {
	if _, err := UnmarshalScript([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for garbage input")
	}
	if _, err := UnmarshalCompileRequest(nil); err == nil {
		t.Error("expected error for empty input")
	}
}
