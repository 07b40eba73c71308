package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/patcher"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-amm-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	DefaultClientStateBufferSize = 100
)

// header prints a styled section header
func header(out io.Writer, title string) {
	fmt.Fprintln(out, "\n"+Bold+Cyan+":: "+title+" ::"+Reset)
}

// SafeState is a thread-safe container for the latest pool state.
type SafeState struct {
	mu    sync.RWMutex
	state *engine.State
}

func (s *SafeState) Update(newState *engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
}

func (s *SafeState) Get() *engine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func main() {
	streamURL := flag.String("stream", "", "Follow a running ammd node (ws:// URL) instead of replaying the seed scenario.")
	logPath := flag.String("log", "console.log", "Path of the log file.")
	flag.Parse()

	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check " + *logPath + " for details." + Reset)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *streamURL == "" {
		if err := replaySeed(ctx, rootLogger, os.Stdout); err != nil {
			rootLogger.Error("Seed replay failed", "error", err)
			fmt.Println(Red + err.Error() + Reset)
			closeApp()
		}
		return
	}

	// --- 2. INITIALIZE CLIENT ---
	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{})
	if err != nil {
		rootLogger.Error("Failed to initialize state patcher", "error", err)
		closeApp()
	}

	streamClient, err := client.NewClient(
		ctx,
		client.Config{
			URL:          *streamURL,
			Logger:       rootLogger.With("component", "jsonrpc-client"),
			BufferSize:   DefaultClientStateBufferSize,
			StatePatcher: statePatcher.Patch,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", *streamURL, "error", err)
		closeApp()
	}

	symbols := fetchSymbols(ctx, *streamURL, rootLogger)

	// --- 3. START CONSOLE & STATE LOOP ---
	safeState := &SafeState{}

	fmt.Println(Green + "Connecting to " + *streamURL + "..." + Reset)
	fmt.Println("Logs are being written to '" + *logPath + "'")
	go runConsole(ctx, safeState, symbols)

	for {
		select {
		case n := <-streamClient.State():
			safeState.Update(n)

		case err, ok := <-streamClient.Err():
			if ok {
				rootLogger.Error("Fatal client error", "error", err)
				closeApp()
			}
			return

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

// fetchSymbols asks the node for its token list so tables can show symbols.
// Addresses are shown instead when the call fails.
func fetchSymbols(ctx context.Context, url string, logger *slog.Logger) symbolTable {
	symbols := symbolTable{}
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rpcClient, err := rpc.DialContext(callCtx, url)
	if err != nil {
		logger.Warn("Failed to dial node for token list", "error", err)
		return symbols
	}
	defer rpcClient.Close()

	var list []token.Metadata
	if err := rpcClient.CallContext(callCtx, &list, "token_list"); err != nil {
		logger.Warn("Failed to fetch token list", "error", err)
		return symbols
	}
	for _, m := range list {
		symbols[m.Address] = m.Symbol
	}
	return symbols
}

// runConsole handles user input and display.
func runConsole(ctx context.Context, safeState *SafeState, symbols symbolTable) {
	reader := bufio.NewReader(os.Stdin)
	time.Sleep(500 * time.Millisecond)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			return
		}
		input = strings.TrimSpace(input)

		handleCommand(input, safeState, symbols, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "AMM POOL CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Pool Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Share Holders\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Quote Swap  %s(local simulation)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Watch Pool  %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func handleCommand(input string, safeState *SafeState, symbols symbolTable, reader *bufio.Reader) {
	state := safeState.Get()

	// Allow help and quit even if state isn't ready
	if state == nil && input != "q" && input != "h" {
		fmt.Println("\n" + Yellow + "[INFO] Waiting for first state update... (Check connection/logs)" + Reset)
		return
	}

	switch input {
	case "1":
		printPool(os.Stdout, state, symbols)
	case "2":
		printShares(os.Stdout, state)
	case "3":
		quoteSwap(state, symbols, reader)
	case "4":
		watchPool(safeState, symbols, reader)
	case "h":
		printHelp()
	case "q":
		exitConsole()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header(os.Stdout, "AMM STATE STREAM")
	fmt.Println("The node sends one " + Cyan + "full" + Reset + " state when you subscribe, then a " + Cyan + "diff" + Reset)
	fmt.Println("for every committed pool mutation. The console patches each diff onto the")
	fmt.Println("previous state and keeps the latest one in memory.")
	fmt.Println("")
	fmt.Println(Bold + "STATE" + Reset)
	fmt.Println("   - " + Yellow + "Sequence" + Reset + ": number of mutations committed so far.")
	fmt.Println("   - " + Yellow + "Pool" + Reset + ": both reserves, total shares and the swap fee.")
	fmt.Println("   - " + Yellow + "Shares" + Reset + ": every liquidity provider's share balance.")
	fmt.Println("")
	fmt.Println(Bold + "PRICING" + Reset)
	fmt.Println("   Swaps follow x*y=k with the fee taken from the input amount.")
	fmt.Println("   Quotes in this console run against the local copy of the state; the")
	fmt.Println("   node prices again when the swap actually executes.")
}

func quoteSwap(state *engine.State, symbols symbolTable, reader *bufio.Reader) {
	header(os.Stdout, "QUOTE SWAP")

	fmt.Printf(Bold+"Token in (%s or %s): "+Reset, symbols.name(state.Pool.Token1), symbols.name(state.Pool.Token2))
	input, _ := reader.ReadString('\n')
	tokenIn, ok := symbols.resolve(strings.TrimSpace(input), state.Pool)
	if !ok {
		fmt.Println(Red + "[ERROR] Token is not part of the pool." + Reset)
		return
	}

	fmt.Print(Bold + "Amount in (e.g. 1.5): " + Reset)
	input, _ = reader.ReadString('\n')
	if err := printQuote(os.Stdout, state, symbols, tokenIn, strings.TrimSpace(input)); err != nil {
		fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
	}
}

func watchPool(safeState *SafeState, symbols symbolTable, reader *bufio.Reader) {
	fmt.Println(Green + "Starting Live Watch... (Press 'Enter' to stop)" + Reset)
	time.Sleep(1 * time.Second)

	stopCh := make(chan struct{})
	go func() {
		reader.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastSequence uint64
	first := true

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			state := safeState.Get()
			if state == nil {
				continue
			}

			if first || state.Sequence > lastSequence {
				first = false
				lastSequence = state.Sequence

				fmt.Print("\033[H\033[2J")
				fmt.Printf(Bold+"\n--- LIVE MONITOR (Sequence: %d) ---\n"+Reset, state.Sequence)
				fmt.Println(Gray + "Press ENTER to return to menu." + Reset)

				printPool(os.Stdout, state, symbols)
			}
		}
	}
}

func exitConsole() {
	fmt.Println(Yellow + "Bye." + Reset)
	os.Exit(0)
}

// symbolTable maps token addresses to display symbols.
type symbolTable map[common.Address]string

func (s symbolTable) name(addr common.Address) string {
	if sym, ok := s[addr]; ok {
		return sym
	}
	hex := addr.Hex()
	return hex[:6] + ".." + hex[len(hex)-4:]
}

// resolve accepts a symbol (case-insensitive) or an address of one of the
// pool's tokens.
func (s symbolTable) resolve(input string, pool amm.Pool) (common.Address, bool) {
	if common.IsHexAddress(input) {
		addr := common.HexToAddress(input)
		return addr, pool.Contains(addr)
	}
	for addr, sym := range s {
		if strings.EqualFold(sym, input) && pool.Contains(addr) {
			return addr, true
		}
	}
	return common.Address{}, false
}
