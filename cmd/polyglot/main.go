package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/polyglot"
	"github.com/wippyai/polyglot/backend/host"
	"github.com/wippyai/polyglot/backend/wasm"
	"github.com/wippyai/polyglot/impl"
)

type config struct {
	file     string
	language string
	funcName string
	args     string
	options  string
	limit    int64
	system   bool
	list     bool
	verbose  bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.file, "file", "", "Source file to evaluate (.wasm, .json)")
	flag.StringVar(&cfg.language, "lang", "", "Language of the source (detected when empty)")
	flag.StringVar(&cfg.funcName, "func", "", "Member to invoke on the result (optional)")
	flag.StringVar(&cfg.args, "args", "", "Arguments for -func (comma-separated, TYPE:VALUE for WIT types)")
	flag.StringVar(&cfg.options, "opt", "", "Engine options (KEY=VAL,KEY2=VAL2)")
	flag.Int64Var(&cfg.limit, "limit", 0, "Statement limit per context (0 disables)")
	flag.BoolVar(&cfg.system, "system", false, "Merge "+polyglot.OptionsEnv+" into the options")
	flag.BoolVar(&cfg.list, "list", false, "List members of the result and exit")
	flag.BoolVar(&cfg.verbose, "v", false, "Debug logging")
	interactive := flag.Bool("i", false, "Interactive mode with TUI")
	flag.Parse()

	if cfg.file == "" {
		fmt.Fprintln(os.Stderr, "Usage: polyglot -file <source> [-func name] [-args a,b] [-opt K=V,...]")
		fmt.Fprintln(os.Stderr, "       polyglot -file <source> -list")
		fmt.Fprintln(os.Stderr, "       polyglot -file <source> -i  (interactive mode)")
		os.Exit(1)
	}

	log := zap.NewNop()
	if cfg.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log = l
		polyglot.SetLogger(l.Named("polyglot"))
		impl.SetLogger(l.Named("impl"))
		wasm.SetLogger(l.Named("wasm"))
		host.SetLogger(l.Named("host"))
	}
	defer func() { _ = log.Sync() }()

	if err := polyglot.Install(wasm.New(), host.New()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session is an engine and context with the evaluated source.
type session struct {
	engine *polyglot.Engine
	ctx    *polyglot.Context
	source *polyglot.Source
	result *polyglot.Value
}

func open(cfg config, log *zap.Logger) (*session, error) {
	opts, err := parseOptions(cfg.options)
	if err != nil {
		return nil, err
	}
	eng, err := polyglot.NewEngine(polyglot.EngineConfig{
		Out:                 os.Stdout,
		Err:                 os.Stderr,
		In:                  os.Stdin,
		Options:             opts,
		UseSystemProperties: cfg.system,
		LogSink:             log,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	var limits *polyglot.ResourceLimits
	if cfg.limit > 0 {
		limits = &polyglot.ResourceLimits{StatementLimit: cfg.limit}
	}
	ctx, err := eng.NewContext(polyglot.ContextConfig{
		Out:            os.Stdout,
		Err:            os.Stderr,
		In:             os.Stdin,
		ResourceLimits: limits,
	})
	if err != nil {
		_ = eng.Close(true)
		return nil, fmt.Errorf("create context: %w", err)
	}

	src, err := eng.BuildSource(polyglot.SourceConfig{Path: cfg.file, Language: cfg.language})
	if err != nil {
		_ = eng.Close(true)
		return nil, fmt.Errorf("read source: %w", err)
	}
	result, err := ctx.Eval(src)
	if err != nil {
		_ = eng.Close(true)
		return nil, fmt.Errorf("eval %s: %w", src.Name(), err)
	}
	return &session{engine: eng, ctx: ctx, source: src, result: result}, nil
}

func (s *session) close() {
	_ = s.engine.Close(true)
}

// members lists the executable members of the result, sorted.
func (s *session) members() ([]member, error) {
	if !s.result.HasMembers() {
		return nil, nil
	}
	keys, err := s.result.MemberKeys()
	if err != nil {
		return nil, err
	}
	var out []member
	for _, k := range keys {
		v, err := s.result.Member(k)
		if err != nil {
			return nil, err
		}
		out = append(out, member{name: k, signature: v.String(), executable: v.CanExecute()})
	}
	return out, nil
}

type member struct {
	name       string
	signature  string
	executable bool
}

func run(cfg config, log *zap.Logger) error {
	s, err := open(cfg, log)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Printf("Engine: %s %s\n", s.engine.ImplementationName(), s.engine.Version())
	fmt.Printf("Source: %s (%s)\n", s.source.Name(), s.source.Language())

	members, err := s.members()
	if err != nil {
		return err
	}
	if len(members) > 0 {
		fmt.Printf("\nMembers:\n")
		for _, m := range members {
			fmt.Printf("  %s\n", m.signature)
		}
	} else {
		fmt.Printf("\nResult: %s\n", s.result)
	}

	if cfg.list || cfg.funcName == "" {
		return nil
	}

	args, err := parseArgs(cfg.args)
	if err != nil {
		return err
	}
	fmt.Printf("\nCalling %s%v...\n", cfg.funcName, args)
	result, err := s.result.Invoke(cfg.funcName, args...)
	if err != nil {
		var ex *polyglot.Exception
		if errors.As(err, &ex) {
			for _, f := range ex.StackTrace() {
				fmt.Fprintf(os.Stderr, "  at %s\n", f)
			}
		}
		return fmt.Errorf("call %s: %w", cfg.funcName, err)
	}
	fmt.Printf("Result: %s\n", result)
	return nil
}

func parseOptions(s string) (map[string]string, error) {
	out := make(map[string]string)
	if s == "" {
		return out, nil
	}
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("option %q is not KEY=VAL", kv)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
