// cryptoken-cli is a command-line client for a cryptokend wallet service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/cryptoken/internal/engine"
	"github.com/Klingon-tech/cryptoken/internal/ledger"
	"github.com/Klingon-tech/cryptoken/internal/rpc"
	"github.com/Klingon-tech/cryptoken/internal/rpcclient"
	"github.com/Klingon-tech/cryptoken/pkg/tx"
	"github.com/Klingon-tech/cryptoken/pkg/types"
	"golang.org/x/term"
)

// secretEnv, when set, supplies the private key instead of a prompt.
const secretEnv = "CRYPTOKEN_PRIVATE_KEY"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := "http://127.0.0.1:8580"
	timeout := 2 * time.Minute

	// Scan for --rpc and --timeout before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--timeout" && len(args) > 1:
			timeout = mustDuration(args[1])
			args = args[2:]
		case strings.HasPrefix(args[0], "--timeout="):
			timeout = mustDuration(args[0][len("--timeout="):])
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.NewWithTimeout(rpcURL, timeout)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "register":
		cmdRegister(client, cmdArgs)
	case "wallet":
		cmdWallet(client, cmdArgs)
	case "validate":
		cmdValidate(client, cmdArgs)
	case "deposit":
		cmdAmountOp(client, "deposit", "wallet_deposit", cmdArgs)
	case "withdraw":
		cmdAmountOp(client, "withdraw", "wallet_withdraw", cmdArgs)
	case "transfer":
		cmdTransfer(client, cmdArgs)
	case "buy":
		cmdBuy(client, cmdArgs)
	case "sell":
		cmdSell(client, cmdArgs)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "outputs":
		cmdOutputs(client, cmdArgs)
	case "issuer-outputs":
		cmdIssuerOutputs(client)
	case "launch":
		cmdLaunch(client, cmdArgs)
	case "tx":
		cmdTx(client, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: cryptoken-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         Wallet service endpoint (default: http://127.0.0.1:8580)
  --timeout <dur>     Request timeout (default: 2m)

Commands:
  register <user_id>              Create a wallet keypair (prints the private key once)
  wallet <user_id>                Show wallet details
  validate --user <id>            Check a private key against the wallet

  deposit --user <id> --amount <n>
                                  Credit MYR from the fiat issuer
  withdraw --user <id> --amount <n>
                                  Return MYR to the fiat issuer
  transfer --user <id> --to <public_key> --amount <n>
                                  Send CTOKEN to another key
  buy --user <id> --amount <n> --myr <n>
                                  Buy CTOKEN for MYR
  sell --user <id> --amount <n> [--myr <n>]
                                  Return CTOKEN to the issuer, optionally for MYR

  balance [--user <id> | <public_key>]
                                  Show CTOKEN and MYR balances
  outputs [--user <id> | <public_key>]
                                  List every ledger output of a key
  issuer-outputs                  List the MYR issuer's unspent outputs
  launch token|myr                Issue an asset if its issuer holds none
  tx <id>                         Show a ledger transaction (ledger endpoint)

The private key is read from $%s or prompted for.
`, secretEnv)
}

// ── wallet ──────────────────────────────────────────────────────────────

func cmdRegister(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: cryptoken-cli register <user_id>")
	}

	var reg engine.Registration
	call(client, "wallet_register", rpc.UserParam{UserID: args[0]}, &reg)

	fmt.Printf("Wallet registered!\n")
	fmt.Printf("  User:        %s\n", reg.UserID)
	fmt.Printf("  Public key:  %s\n", reg.PublicKey)
	fmt.Printf("  Private key: %s\n", reg.PrivateKey)
	fmt.Println("\nStore the private key now. It is not kept by the service and cannot be recovered.")
}

func cmdWallet(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: cryptoken-cli wallet <user_id>")
	}

	var w rpc.WalletResult
	call(client, "wallet_fetch", rpc.UserParam{UserID: args[0]}, &w)

	fmt.Printf("User:        %s\n", w.UserID)
	fmt.Printf("Registered:  %t\n", w.Registered)
	if w.PublicKey != "" {
		fmt.Printf("Public key:  %s\n", w.PublicKey)
	}
	if !w.CreatedAt.IsZero() {
		fmt.Printf("Created:     %s\n", w.CreatedAt.Format(time.RFC3339))
	}
}

func cmdValidate(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	user := fs.String("user", "", "User ID")
	fs.Parse(args)

	if *user == "" {
		fatal("Usage: cryptoken-cli validate --user <id>")
	}

	var res rpc.ValidateKeyResult
	call(client, "wallet_validatePrivateKey", rpc.ValidateKeyParam{
		UserID:     *user,
		PrivateKey: readSecret(),
	}, &res)

	if res.Valid {
		fmt.Println("Private key matches the wallet.")
		return
	}
	fmt.Println("Private key does NOT match the wallet.")
	os.Exit(2)
}

// ── transfers ───────────────────────────────────────────────────────────

func cmdAmountOp(client *rpcclient.Client, name, method string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	user := fs.String("user", "", "User ID")
	amountStr := fs.String("amount", "", "Amount of MYR")
	fs.Parse(args)

	if *user == "" || *amountStr == "" {
		fatal("Usage: cryptoken-cli %s --user <id> --amount <n>", name)
	}
	amount := mustAmount(*amountStr)

	var res ledger.CommitResult
	call(client, method, rpc.WalletAmountParam{
		UserID:     *user,
		PrivateKey: readSecret(),
		Amount:     amount,
	}, &res)
	printCommit(res)
}

func cmdTransfer(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	user := fs.String("user", "", "User ID")
	to := fs.String("to", "", "Recipient public key")
	amountStr := fs.String("amount", "", "Amount of CTOKEN")
	fs.Parse(args)

	if *user == "" || *to == "" || *amountStr == "" {
		fatal("Usage: cryptoken-cli transfer --user <id> --to <public_key> --amount <n>")
	}
	amount := mustAmount(*amountStr)

	var res ledger.CommitResult
	call(client, "wallet_transferToken", rpc.TransferTokenParam{
		UserID:     *user,
		PrivateKey: readSecret(),
		ToKey:      *to,
		Amount:     amount,
	}, &res)
	printCommit(res)
}

func cmdBuy(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("buy", flag.ExitOnError)
	user := fs.String("user", "", "User ID")
	amountStr := fs.String("amount", "", "Amount of CTOKEN")
	myrStr := fs.String("myr", "", "MYR to pay")
	fs.Parse(args)

	if *user == "" || *amountStr == "" || *myrStr == "" {
		fatal("Usage: cryptoken-cli buy --user <id> --amount <n> --myr <n>")
	}

	var trade engine.Trade
	call(client, "wallet_buyToken", rpc.BuyTokenParam{
		UserID:     *user,
		PrivateKey: readSecret(),
		Amount:     mustAmount(*amountStr),
		MYR:        mustAmount(*myrStr),
	}, &trade)
	printTrade(trade)
}

func cmdSell(client *rpcclient.Client, args []string) {
	fs := flag.NewFlagSet("sell", flag.ExitOnError)
	user := fs.String("user", "", "User ID")
	amountStr := fs.String("amount", "", "Amount of CTOKEN")
	myrStr := fs.String("myr", "", "MYR to receive (optional)")
	fs.Parse(args)

	if *user == "" || *amountStr == "" {
		fatal("Usage: cryptoken-cli sell --user <id> --amount <n> [--myr <n>]")
	}

	params := rpc.WalletAmountParam{
		UserID:     *user,
		PrivateKey: readSecret(),
		Amount:     mustAmount(*amountStr),
	}
	if *myrStr == "" {
		var res ledger.CommitResult
		call(client, "wallet_sellToken", params, &res)
		printCommit(res)
		return
	}

	myr := mustAmount(*myrStr)
	params.MYR = &myr
	var trade engine.Trade
	call(client, "wallet_sellToken", params, &trade)
	printTrade(trade)
}

// ── queries ─────────────────────────────────────────────────────────────

func cmdBalance(client *rpcclient.Client, args []string) {
	owner := ownerArg("balance", args)

	for _, asset := range types.Assets {
		method := "balance_token"
		if asset == types.AssetFiat {
			method = "balance_myr"
		}
		var res rpc.BalanceResult
		call(client, method, owner, &res)
		if asset == types.AssetToken {
			fmt.Printf("Public key: %s\n", res.PublicKey)
		}
		fmt.Printf("%-7s %d\n", asset.String()+":", res.Balance)
	}
}

func cmdOutputs(client *rpcclient.Client, args []string) {
	var outs []rpc.OutputResult
	call(client, "ledger_getOutputs", ownerArg("outputs", args), &outs)
	printOutputs(outs)
}

func cmdIssuerOutputs(client *rpcclient.Client) {
	var outs []rpc.OutputResult
	call(client, "issuer_myrOutputs", nil, &outs)
	printOutputs(outs)
}

func cmdLaunch(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: cryptoken-cli launch token|myr")
	}

	var method string
	switch strings.ToLower(args[0]) {
	case "token", "ctoken":
		method = "token_launch"
	case "myr":
		method = "myr_launch"
	default:
		fatal("unknown asset %q (want token or myr)", args[0])
	}

	var res rpc.LaunchResult
	call(client, method, nil, &res)

	if !res.Issued {
		fmt.Printf("%s issuer %s already holds supply; nothing issued.\n", res.Asset.DisplayName(), res.Issuer)
		return
	}
	fmt.Printf("%s issued!\n", res.Asset.DisplayName())
	fmt.Printf("  Tx ID:  %s\n", res.ID)
	fmt.Printf("  Issuer: %s\n", res.Issuer)
}

func cmdTx(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: cryptoken-cli tx <id>")
	}
	id, err := types.HexToHash(args[0])
	if err != nil {
		fatal("invalid transaction id: %v", err)
	}

	var t tx.Transaction
	call(client, ledger.MethodGetTransaction, ledger.GetTransactionParams{ID: id}, &t)

	data, _ := json.MarshalIndent(&t, "", "  ")
	fmt.Println(string(data))
}

// ── helpers ─────────────────────────────────────────────────────────────

// ownerArg reads --user or a positional public key.
func ownerArg(cmd string, args []string) rpc.OwnerParam {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	user := fs.String("user", "", "User ID")
	fs.Parse(args)

	owner := rpc.OwnerParam{UserID: *user}
	if fs.NArg() > 0 {
		owner.PublicKey = fs.Arg(0)
	}
	if owner.UserID == "" && owner.PublicKey == "" {
		fatal("Usage: cryptoken-cli %s [--user <id> | <public_key>]", cmd)
	}
	return owner
}

func call(client *rpcclient.Client, method string, params, result interface{}) {
	if err := client.Call(context.Background(), method, params, result); err != nil {
		var rpcErr *rpcclient.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == rpc.CodeLegFailed {
			var data rpc.LegErrorData
			if json.Unmarshal(rpcErr.Data, &data) == nil {
				fmt.Fprintf(os.Stderr, "First leg committed: %s\n", data.Committed)
				if data.Compensation != "" {
					fmt.Fprintf(os.Stderr, "Compensated by:      %s\n", data.Compensation)
				}
				if data.CompensationError != "" {
					fmt.Fprintf(os.Stderr, "Compensation failed: %s\n", data.CompensationError)
				}
			}
		}
		fatal("%s: %v", method, err)
	}
}

func printCommit(res ledger.CommitResult) {
	fmt.Printf("Transaction committed!\n")
	fmt.Printf("  Tx ID: %s\n", res.ID)
	fmt.Printf("  Asset: %s\n", res.Asset.DisplayName())
}

func printTrade(trade engine.Trade) {
	fmt.Printf("Trade committed!\n")
	if trade.TokenLeg != nil {
		fmt.Printf("  CTOKEN leg: %s\n", trade.TokenLeg.ID)
	}
	if trade.FiatLeg != nil {
		fmt.Printf("  MYR leg:    %s\n", trade.FiatLeg.ID)
	}
}

func printOutputs(outs []rpc.OutputResult) {
	if len(outs) == 0 {
		fmt.Println("No outputs.")
		return
	}
	fmt.Printf("%-66s %-5s %-8s %-6s %-20s %s\n", "TX ID", "INDEX", "OP", "ASSET", "AMOUNT", "SPENT")
	for _, o := range outs {
		fmt.Printf("%-66s %-5d %-8s %-6s %-20d %t\n", o.TxID, o.Index, o.Operation, o.Asset, o.Amount, o.Spent)
	}
}

// parseAmount converts a positive decimal integer to units.
func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative amount")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	return n, nil
}

func mustAmount(s string) uint64 {
	n, err := parseAmount(s)
	if err != nil {
		fatal("%v", err)
	}
	return n
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		fatal("invalid timeout: %v", err)
	}
	return d
}

// ── Secret helper ───────────────────────────────────────────────────────

func readSecret() string {
	if v := os.Getenv(secretEnv); v != "" {
		return v
	}
	secret, err := readPassword("Enter private key: ")
	if err != nil {
		fatal("read private key: %v", err)
	}
	return strings.TrimSpace(string(secret))
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
