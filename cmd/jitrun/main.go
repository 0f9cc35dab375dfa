package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/wippyai/wasm-jit/config"
	"github.com/wippyai/wasm-jit/engine"
	"github.com/wippyai/wasm-jit/jit"
	"github.com/wippyai/wasm-jit/vm"
)

var (
	nativeColor = color.New(color.FgGreen, color.Bold)
	interpColor = color.New(color.FgYellow)
	labelColor  = color.New(color.FgCyan)
	errColor    = color.New(color.FgRed, color.Bold)
)

type options struct {
	wasmFile    string
	configFile  string
	funcName    string
	args        string
	mode        string
	calls       int
	list        bool
	interactive bool
}

func main() {
	var o options
	flag.StringVar(&o.wasmFile, "wasm", "", "Path to core wasm module")
	flag.StringVar(&o.configFile, "config", "", "TOML configuration file")
	flag.StringVar(&o.funcName, "func", "", "Function to call (default: the only export)")
	flag.StringVar(&o.args, "args", "", "Comma-separated arguments")
	flag.StringVar(&o.mode, "mode", "", "Execution mode: interpret, adaptive or compiled (default from config)")
	flag.IntVar(&o.calls, "calls", 1, "Number of calls")
	flag.BoolVar(&o.list, "list", false, "List exported functions and exit")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if o.wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: jitrun -wasm <file.wasm> [-func name] [-args 1,2] [-mode adaptive] [-calls N]")
		fmt.Fprintln(os.Stderr, "       jitrun -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       jitrun -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	if err := run(o); err != nil {
		errColor.Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(o options) (*config.Config, error) {
	cfg := config.Default()
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return nil, err
		}
	}
	if o.mode != "" {
		cfg.JIT.Mode = o.mode
	}
	if o.interactive {
		// The dashboard owns the terminal.
		cfg.Log.Level = "error"
	}
	return cfg, cfg.Validate()
}

func run(o options) error {
	ctx := context.Background()

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	log, err := cfg.Log.Build()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	engine.SetLogger(log.Named("engine"))
	jit.SetLogger(log.Named("jit"))

	s, err := openSession(ctx, cfg, o.wasmFile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(ctx); cerr != nil {
			errColor.Fprintf(os.Stderr, "close: %v\n", cerr)
		}
	}()

	if o.interactive {
		return runInteractive(s, cfg.Mode())
	}

	fmt.Printf("%s %s\n", labelColor.Sprint("Module:"), s.mod.Name())
	fmt.Printf("%s %d bytes, sha256 %x\n", labelColor.Sprint("Bytecode:"), len(s.mod.Bytecode().Code()), s.mod.Bytecode().Hash())
	fmt.Printf("\n%s\n", labelColor.Sprint("Exported functions:"))
	for _, fi := range s.mod.Bytecode().GetFunctionsInfo() {
		fmt.Printf("  %s\n", fi)
	}
	if o.list {
		return nil
	}

	fi, err := s.function(o.funcName)
	if err != nil {
		return err
	}
	params, err := encodeArgs(fi, splitArgs(o.args))
	if err != nil {
		return err
	}

	mode := cfg.Mode()
	fmt.Printf("\nCalling %s %d times (%s)\n", fi.Name, o.calls, mode)

	start := time.Now()
	last := vm.Tier(255)
	for i := 0; i < o.calls; i++ {
		result, tier, err := s.call(ctx, mode, fi, params)
		if err != nil {
			return fmt.Errorf("call %s: %w", fi.Name, err)
		}
		if tier != last || i == o.calls-1 {
			fmt.Printf("  #%-6d %s  %s\n", i+1, tierLabel(tier), result)
			last = tier
		}
	}
	elapsed := time.Since(start)

	res, err := s.handOver()
	if err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	s.mgr.Wait()

	total, native := s.mod.Calls()
	st := s.mgr.Stats()
	fmt.Printf("\n%s %s\n", labelColor.Sprint("Owned as:"), res)
	fmt.Printf("%s %s\n", labelColor.Sprint("State:"), s.mod.State())
	if ferr := s.mod.Failure(); ferr != nil {
		fmt.Printf("%s %v\n", errColor.Sprint("Failure:"), ferr)
	}
	fmt.Printf("%s %d total, %d native, %s\n", labelColor.Sprint("Calls:"), total, native, elapsed)
	fmt.Printf("%s submitted=%d compiled=%d skipped=%d failed=%d warm=%d transfers=%d\n",
		labelColor.Sprint("Manager:"), st.Submitted, st.Compiled, st.Skipped, st.Failed, st.Warm, st.Transfers)
	return nil
}

func tierLabel(t vm.Tier) string {
	if t == vm.TierNative {
		return nativeColor.Sprintf("%-11s", t)
	}
	return interpColor.Sprintf("%-11s", t)
}
