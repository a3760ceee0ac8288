package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/term"

	"github.com/wippyai/lua-runtime/runtime"
	"github.com/wippyai/lua-runtime/transcoder"
)

// fileConfig is the luarun.toml schema.
type fileConfig struct {
	MemoryBudget    int64    `toml:"memory_budget"`
	EngineVariant   string   `toml:"engine_variant"`
	EvalHelper      bool     `toml:"eval_helper"`
	Reflection      bool     `toml:"reflection_helpers"`
	UnpackMulti     bool     `toml:"unpack_multi_results"`
	OverflowToFloat bool     `toml:"overflow_to_float"`
	Args            []string `toml:"args"`
}

func main() {
	var (
		expr        = flag.String("e", "", "Expression to evaluate and print")
		configFile  = flag.String("config", "", "Path to a luarun.toml config file")
		memBudget   = flag.Int64("mem", 0, "Memory budget in bytes (0 = unlimited)")
		interactive = flag.Bool("i", false, "Interactive REPL")
	)
	flag.Parse()

	var cfg fileConfig
	if *configFile != "" {
		if _, err := toml.DecodeFile(*configFile, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: config: %v\n", err)
			os.Exit(1)
		}
	}
	if *memBudget != 0 {
		cfg.MemoryBudget = *memBudget
	}

	opts := &runtime.Options{
		EngineVariant:             cfg.EngineVariant,
		MemoryBudgetBytes:         cfg.MemoryBudget,
		RegisterEvalHelper:        cfg.EvalHelper,
		RegisterReflectionHelpers: cfg.Reflection,
		UnpackMultiResults:        cfg.UnpackMulti,
	}
	if cfg.OverflowToFloat {
		opts.OverflowHandler = transcoder.ToFloat
	}

	script := flag.Arg(0)
	if *interactive || (*expr == "" && script == "" && term.IsTerminal(int(os.Stdin.Fd()))) {
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *expr == "" && script == "" {
		fmt.Fprintln(os.Stderr, "Usage: luarun [-config luarun.toml] [-mem bytes] -e <expr>")
		fmt.Fprintln(os.Stderr, "       luarun [flags] <script.lua> [args...]")
		fmt.Fprintln(os.Stderr, "       luarun -i  (interactive REPL)")
		os.Exit(1)
	}

	if err := run(opts, cfg, *expr, script, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *runtime.Options, cfg fileConfig, expr, script string, argv []string) error {
	rt, err := runtime.New(opts)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer rt.Close()

	// Script arguments: config-file args first, then the command line
	// past the script path, exposed the Lua way as the global arg table.
	var scriptArgs []any
	for _, a := range cfg.Args {
		scriptArgs = append(scriptArgs, a)
	}
	if len(argv) > 1 {
		for _, a := range argv[1:] {
			scriptArgs = append(scriptArgs, a)
		}
	}
	argTable, err := rt.TableFrom(false, scriptArgs)
	if err != nil {
		return err
	}
	g, err := rt.Globals()
	if err != nil {
		return err
	}
	if err := g.Set("arg", argTable); err != nil {
		return err
	}

	if expr != "" {
		v, err := rt.Eval(expr, scriptArgs...)
		if err != nil {
			return err
		}
		if v != nil {
			fmt.Println(render(v))
		}
		return nil
	}

	data, err := os.ReadFile(script)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	v, err := rt.Execute(string(data), scriptArgs...)
	if err != nil {
		return err
	}
	if v != nil {
		fmt.Println(render(v))
	}
	return nil
}

// render formats a session result for the terminal, flattening unpacked
// multi-results onto one line.
func render(v any) string {
	if vals, ok := v.([]any); ok {
		out := ""
		for i, x := range vals {
			if i > 0 {
				out += "\t"
			}
			out += fmt.Sprintf("%v", x)
		}
		return out
	}
	return fmt.Sprintf("%v", v)
}
