// jsbc compiles ESTree JSON programs to bytecode scripts.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/jsbc/manifest"
)

var log = commonlog.GetLogger("jsbc")

// countFlag counts repetitions of a boolean flag, as in -v -v.
type countFlag int

func (c *countFlag) String() string   { return strconv.Itoa(int(*c)) }
func (c *countFlag) IsBoolFlag() bool { return true }

func (c *countFlag) Set(s string) error {
	if s == "true" {
		*c++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*c = countFlag(n)
	return nil
}

// options holds the parsed command line.
type options struct {
	outDir       string
	disasm       bool
	notes        bool
	tryNotes     bool
	serve        string
	remote       string
	cachePath    string
	jobs         int
	verbosity    countFlag
	compileAndGo bool
	noRval       bool
	strict       bool
	maxDepth     int
	firstLine    int
	files        []string
	set          map[string]bool // flags given explicitly
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("jsbc", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.outDir, "o", "", "Write CBOR scripts to `dir`")
	fs.BoolVar(&o.disasm, "d", false, "Print a disassembly of each script")
	fs.BoolVar(&o.notes, "notes", false, "Print the source note table")
	fs.BoolVar(&o.tryNotes, "trynotes", false, "Print the try note table")
	fs.StringVar(&o.serve, "serve", "", "Start the compile service on `addr`")
	fs.StringVar(&o.remote, "remote", "", "Compile on the service at `url` instead of locally")
	fs.StringVar(&o.cachePath, "cache", "", "Use the script cache at `path`")
	fs.IntVar(&o.jobs, "j", 0, "Compile up to `n` files at once (default GOMAXPROCS)")
	fs.Var(&o.verbosity, "v", "Increase log verbosity (repeatable)")
	fs.BoolVar(&o.compileAndGo, "compile-and-go", false, "Bind top-level names at compile time")
	fs.BoolVar(&o.noRval, "no-rval", false, "Discard the script completion value")
	fs.BoolVar(&o.strict, "strict", false, "Treat warnings as errors")
	fs.IntVar(&o.maxDepth, "max-depth", 0, "Limit syntax tree nesting")
	fs.IntVar(&o.firstLine, "first-line", 0, "Line number of the first source line")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: jsbc [options] [file.json...]\n\n")
		fmt.Fprintf(stderr, "Compiles ESTree JSON programs (e.g. from Reflect.parse or acorn) to bytecode.\n")
		fmt.Fprintf(stderr, "Without files, compiles every .json file under the jsbc.toml source dirs.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  jsbc -d prog.json              # Disassemble\n")
		fmt.Fprintf(stderr, "  jsbc -o build a.json b.json    # Write build/a.jsbc, build/b.jsbc\n")
		fmt.Fprintf(stderr, "  jsbc -serve :8457 -cache c.db  # Run the compile service\n")
		fmt.Fprintf(stderr, "  jsbc -remote http://host:8457 -d prog.json\n")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	o.files = fs.Args()
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	commonlog.Configure(int(o.verbosity), nil)

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if m == nil {
		m = manifest.Default(wd)
	} else {
		log.Infof("using %s/%s", m.Dir, manifest.FileName)
	}
	applyOverrides(m, &o)

	if o.serve != "" {
		if err := serve(m, o.serve); err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return 1
		}
		return 0
	}

	files := o.files
	if len(files) == 0 {
		if files, err = m.SourceFiles(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if len(files) == 0 {
			fs.Usage()
			return 2
		}
	}
	return compileAll(m, &o, files, stdout, stderr)
}

// absPath resolves a command-line path against the working directory,
// since manifest paths are relative to the manifest.
func absPath(p string) string {
	if p == "" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// applyOverrides lets explicit flags win over jsbc.toml.
func applyOverrides(m *manifest.Manifest, o *options) {
	if o.set["compile-and-go"] {
		m.Compile.CompileAndGo = o.compileAndGo
	}
	if o.set["no-rval"] {
		m.Compile.NoScriptRval = o.noRval
	}
	if o.set["strict"] {
		m.Compile.Strict = o.strict
	}
	if o.set["max-depth"] {
		m.Compile.MaxDepth = o.maxDepth
	}
	if o.set["first-line"] {
		m.Compile.FirstLine = o.firstLine
	}
	if o.set["o"] {
		m.Output.Dir = absPath(o.outDir)
	}
	if o.set["cache"] {
		m.Cache.Path = absPath(o.cachePath)
		m.Cache.Enabled = o.cachePath != ""
	}
}
