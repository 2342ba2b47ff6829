// Covenant CLI - run and inspect bytecode scripts.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/covenant/manifest"
	"github.com/chazu/covenant/store"
	"github.com/chazu/covenant/vm"
	"github.com/chazu/covenant/wire"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("covenant")

func main() {
	disasm := flag.Bool("disasm", false, "Print disassembly instead of executing")
	budget := flag.Int("budget", 0, "Instruction budget, 0 for unlimited")
	hexInput := flag.Bool("hex", false, "Treat the script argument as a hex string, not a file path")
	lax := flag.Bool("lax", false, "Skip strict script validation before execution")
	resultPath := flag.String("result", "", "Write the execution result as canonical CBOR to this file")
	configDir := flag.String("config", ".", "Directory to search for covenant.toml")
	storePut := flag.Bool("store-put", false, "Store the script and print its content address")
	bindToken := flag.String("bind-token", "", "Bind a call token to a stored script (token=hexhash)")
	verbosity := flag.Int("v", 0, "Log verbosity")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: covenant [options] <script>\n\n")
		fmt.Fprintf(os.Stderr, "Executes a bytecode script and prints the final state and result stack.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  covenant program.bin               # Run a script file\n")
		fmt.Fprintf(os.Stderr, "  covenant -hex 12139e40             # Run 2 3 ADD RET from hex\n")
		fmt.Fprintf(os.Stderr, "  covenant -disasm program.bin       # Disassemble\n")
		fmt.Fprintf(os.Stderr, "  covenant -budget 1000 program.bin  # Bound the instruction count\n")
		fmt.Fprintf(os.Stderr, "  covenant -store-put program.bin    # Store, print content address\n")
		fmt.Fprintf(os.Stderr, "  covenant -bind-token 7=<hash>      # Make CALLT 7 run a stored script\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	m, err := manifest.FindAndLoad(*configDir)
	if err != nil {
		fail("loading configuration: %v", err)
	}
	limits := vm.DefaultLimits()
	storePath := ""
	if m != nil {
		limits = m.Limits()
		storePath = m.Store.Path
		if *budget == 0 {
			*budget = m.Engine.StepBudget
		}
	}

	scripts := openStore(storePath)
	defer scripts.Close()

	if *bindToken != "" {
		doBindToken(scripts, *bindToken)
		return
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	code := readScript(flag.Arg(0), *hexInput)

	if *storePut {
		hash, err := scripts.Put(code)
		if err != nil {
			fail("storing script: %v", err)
		}
		fmt.Println(hash)
		return
	}

	if *disasm {
		fmt.Print(vm.NewScript(code).Disassemble())
		return
	}

	script := vm.NewScript(code)
	if !*lax {
		script, err = vm.NewScriptStrict(code)
		if err != nil {
			fail("invalid script: %v", err)
		}
	}

	engine := vm.NewEngineWithLimits(limits)
	engine.SetTokenResolver(scripts)
	engine.LoadScript(script)

	if *budget > 0 {
		err = engine.ExecuteWithBudget(*budget)
		if engine.State() == vm.StateBreak {
			fail("budget of %d instructions exhausted", *budget)
		}
	} else {
		err = engine.Execute()
	}
	log.Infof("execution finished in state %s", engine.State())

	result, werr := wire.NewResult(engine)
	if werr != nil {
		fail("encoding result: %v", werr)
	}
	printResult(result)
	if *resultPath != "" {
		data, err := wire.MarshalResult(result)
		if err != nil {
			fail("encoding result: %v", err)
		}
		if err := os.WriteFile(*resultPath, data, 0o644); err != nil {
			fail("writing result: %v", err)
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

// openStore opens the configured script store, in-memory when no path is
// set.
func openStore(path string) store.ScriptStore {
	if path == "" {
		return store.NewMemoryStore()
	}
	s, err := store.OpenSQLite(path)
	if err != nil {
		fail("opening script store: %v", err)
	}
	return s
}

// readScript loads bytecode from a file or decodes it from hex.
func readScript(arg string, isHex bool) []byte {
	if isHex {
		code, err := hex.DecodeString(strings.TrimSpace(arg))
		if err != nil {
			fail("decoding hex script: %v", err)
		}
		return code
	}
	code, err := os.ReadFile(arg)
	if err != nil {
		fail("reading script: %v", err)
	}
	return code
}

// doBindToken parses token=hexhash and binds it in the store.
func doBindToken(s store.ScriptStore, spec string) {
	parts := strings.SplitN(spec, "=", 2)
	if len(parts) != 2 {
		fail("bind-token needs token=hexhash, got %q", spec)
	}
	token, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		fail("invalid token %q: %v", parts[0], err)
	}
	raw, err := hex.DecodeString(parts[1])
	if err != nil || len(raw) != 32 {
		fail("invalid script hash %q", parts[1])
	}
	var hash store.Hash
	copy(hash[:], raw)
	if err := s.BindToken(uint16(token), hash); err != nil {
		fail("binding token: %v", err)
	}
	fmt.Printf("token %d -> %s\n", token, hash)
}

// printResult renders the final state and result stack, top last.
func printResult(r *wire.Result) {
	fmt.Printf("state: %s\n", r.State)
	if r.Fault != "" {
		fmt.Printf("fault: %s\n", r.Fault)
	}
	for i, item := range r.Stack {
		fmt.Printf("  [%d] %s\n", i, formatItem(item))
	}
}

// formatItem renders a wire item for terminal output.
func formatItem(i *wire.Item) string {
	switch i.Type {
	case wire.TagNull:
		return "null"
	case wire.TagBoolean:
		return fmt.Sprintf("%t", i.Bool)
	case wire.TagInteger:
		return vm.BytesToBigInt(i.Int).String()
	case wire.TagByteString, wire.TagBuffer:
		return fmt.Sprintf("%s(0x%x)", i.Type, i.Bytes)
	case wire.TagArray, wire.TagStruct:
		parts := make([]string, len(i.Items))
		for n, sub := range i.Items {
			parts[n] = formatItem(sub)
		}
		return fmt.Sprintf("%s[%s]", i.Type, strings.Join(parts, ", "))
	case wire.TagMap:
		parts := make([]string, len(i.Pairs))
		for n, p := range i.Pairs {
			parts[n] = fmt.Sprintf("%s: %s", formatItem(p.Key), formatItem(p.Value))
		}
		return fmt.Sprintf("map{%s}", strings.Join(parts, ", "))
	default:
		return i.Type
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "covenant: "+format+"\n", args...)
	os.Exit(1)
}
