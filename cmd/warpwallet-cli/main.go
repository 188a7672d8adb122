// warpwallet-cli is a command-line client for a warpwalletd daemon.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Klingon-tech/warpwallet/config"
	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/internal/rpc"
	"github.com/Klingon-tech/warpwallet/internal/rpcclient"
	"github.com/Klingon-tech/warpwallet/pkg/block"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := ""
	network := string(config.Mainnet)
	coinArg := "1"

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--coin" && len(args) > 1:
			coinArg = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--coin="):
			coinArg = args[0][len("--coin="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	net := config.NetworkType(network)
	switch net {
	case config.Mainnet, config.Testnet, config.Regtest:
	default:
		fatal("unknown network %q", network)
	}
	types.SetAddressHRPs(config.HRPs(net))

	if rpcURL == "" {
		rpcURL = fmt.Sprintf("http://127.0.0.1:%d", config.Default(net).RPC.Port)
	}
	id, err := strconv.ParseUint(coinArg, 10, 8)
	if err != nil {
		fatal("invalid coin id %q", coinArg)
	}
	coin := uint8(id)

	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client, coin)
	case "block":
		cmdBlock(client, cmdArgs, coin)
	case "mempool":
		cmdMempool(client, coin)
	case "coins":
		cmdCoins(client)
	case "phrase":
		cmdPhrase(client)
	case "account":
		cmdAccount(client, cmdArgs, coin)
	case "address":
		cmdAddress(client, cmdArgs, coin)
	case "balance":
		cmdBalance(client, cmdArgs, coin)
	case "notes":
		cmdNotes(client, cmdArgs, coin)
	case "exclude":
		cmdExclude(client, cmdArgs, coin)
	case "scan":
		cmdScan(client, cmdArgs, coin)
	case "rewind":
		cmdRewind(client, cmdArgs, coin)
	case "reset":
		cmdReset(client, coin)
	case "checkpoints":
		cmdCheckpoints(client, cmdArgs, coin)
	case "send":
		cmdSend(client, cmdArgs, coin)
	case "sendmany":
		cmdSendMany(client, cmdArgs, coin)
	case "sweep":
		cmdSweep(client, cmdArgs, coin)
	case "history":
		cmdHistory(client, cmdArgs, coin)
	case "tx":
		cmdTx(client, cmdArgs, coin)
	case "messages":
		cmdMessages(client, cmdArgs, coin)
	case "contact":
		cmdContact(client, cmdArgs, coin)
	case "backup":
		cmdBackup(client, cmdArgs, coin)
	case "regtest":
		cmdRegtest(client, cmdArgs, coin)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: warpwallet-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: the network's local port)
  --network <net>     mainnet (default), testnet or regtest
  --coin <id>         Coin id (default: 1)

Chain:
  status                          Show chain and scan status
  block <height>                  Show a compact block
  mempool                         Show pending transactions

Accounts:
  coins                           List open coins
  phrase                          Generate a new seed phrase
  account create --name <n> [--restore] [--index <i>] [--birth <h>]
                                  Create an account (prompts for the phrase with --restore)
  account import --name <n> --key <k> [--birth <h>]
                                  Import a viewing or spending key
  account list [--all]            List accounts
  account info <id>               Show account details
  account rename <id> <name>      Rename an account
  account move <id> <position>    Move an account in the list
  account hide <id>               Hide an account
  account show <id>               Unhide an account
  account birth <id> <height>     Set the birth height
  account delete <id>             Delete an account and its data
  account downgrade <id> --pool <p> --to <view|none>
                                  Drop a pool's spending or viewing key

Receiving:
  address <account> [--pools <p>] [--transparent]
                                  Derive a new address
  balance <account> [--height <h>]
                                  Show the balance by pool
  notes <account>                 List received notes
  exclude <account> --pool <p> (--position <n> | --txid <id> --index <i>) [--include]
                                  Exclude a note from spending

Sync:
  scan [--to <h>]                 Scan to the tip or a height
  rewind <height>                 Roll back to the checkpoint at or below height
  reset                           Forget all scanned data
  checkpoints [--purge <h>]       List checkpoints or purge those below h

Spending:
  send <account> --to <addr> --amount <amt> [--memo <m>] [--pools <p>] [--fee-from-amount] [-y]
                                  Send a payment
  sendmany <account> --file <path> [--pools <p>] [-y]
                                  Pay every "address amount [memo]" line of a file
  sweep <account> --to <addr> [--pools <p>] [-y]
                                  Move everything to one address

History:
  history <account>               List transactions
  tx <account> <id>               Show a transaction breakdown
  messages <account> [--read <id>]
                                  List memos, or mark one read
  contact list <account>          List contacts
  contact add <account> --name <n> --address <a>
  contact delete <id>
  contact save <account>          Publish pending contact changes

Backup:
  backup export <account> [--out <file>]
                                  Export an account (prompts for a password)
  backup restore --file <file>    Restore an exported account

Regtest:
  regtest fund --address <a> --amount <amt> [--pool <p>] [--memo <m>]
  regtest mine [n]
`)
}

// ── chain ───────────────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client, coin uint8) {
	var info rpc.ChainInfoResult
	if err := client.Call("chain_getInfo", rpc.CoinParam{Coin: coin}, &info); err != nil {
		fatal("chain_getInfo: %v", err)
	}
	var coins []rpc.CoinResult
	if err := client.Call("wallet_listCoins", nil, &coins); err != nil {
		fatal("wallet_listCoins: %v", err)
	}

	fmt.Printf("Coin:     %d\n", info.Coin)
	fmt.Printf("Height:   %d\n", info.Height)
	fmt.Printf("Tip:      %s\n", info.TipHash)
	for _, c := range coins {
		if c.ID != info.Coin {
			continue
		}
		fmt.Printf("Name:     %s\n", c.Name)
		fmt.Printf("Scanned:  %d\n", c.Height)
		fmt.Printf("Scanning: %v\n", c.Scanning)
	}
}

func cmdBlock(client *rpcclient.Client, args []string, coin uint8) {
	if len(args) < 1 {
		fatal("Usage: warpwallet-cli block <height>")
	}
	height, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fatal("invalid height %q", args[0])
	}

	var blk block.Block
	if err := client.Call("chain_getBlock", rpc.HeightParam{Coin: coin, Height: uint32(height)}, &blk); err != nil {
		fatal("chain_getBlock: %v", err)
	}
	if blk.Header == nil {
		fatal("block %d has no header", height)
	}

	fmt.Printf("Hash:      %s\n", blk.Hash())
	fmt.Printf("Height:    %d\n", blk.Header.Height)
	fmt.Printf("Prev:      %s\n", blk.Header.PrevHash)
	fmt.Printf("Time:      %s\n", time.Unix(int64(blk.Header.Timestamp), 0).UTC().Format(time.RFC3339))
	fmt.Printf("Txs:       %d\n", len(blk.Transactions))
	for _, t := range blk.Transactions {
		fmt.Printf("  %s  spends=%d outputs=%d tin=%d tout=%d\n", t.TxID,
			len(t.Spends), len(t.Outputs), len(t.TransparentInputs), len(t.TransparentOutputs))
	}
}

func cmdMempool(client *rpcclient.Client, coin uint8) {
	var content rpc.MempoolContentResult
	if err := client.Call("mempool_getContent", rpc.CoinParam{Coin: coin}, &content); err != nil {
		fatal("mempool_getContent: %v", err)
	}
	fmt.Printf("Pending: %d\n", len(content.Transactions))
	for _, raw := range content.Transactions {
		fmt.Printf("  %d bytes\n", len(raw)/2)
	}
}

// ── accounts ────────────────────────────────────────────────────────────

func cmdCoins(client *rpcclient.Client) {
	var coins []rpc.CoinResult
	if err := client.Call("wallet_listCoins", nil, &coins); err != nil {
		fatal("wallet_listCoins: %v", err)
	}
	if len(coins) == 0 {
		fmt.Println("No coins open.")
		return
	}
	fmt.Printf("%-4s %-10s %-10s %s\n", "ID", "NAME", "COIN TYPE", "HEIGHT")
	for _, c := range coins {
		fmt.Printf("%-4d %-10s %-10d %d\n", c.ID, c.Name, c.CoinType, c.Height)
	}
}

func cmdPhrase(client *rpcclient.Client) {
	var res rpc.PhraseResult
	if err := client.Call("wallet_generatePhrase", nil, &res); err != nil {
		fatal("wallet_generatePhrase: %v", err)
	}
	fmt.Println(res.Phrase)
}

func cmdAccount(client *rpcclient.Client, args []string, coin uint8) {
	if len(args) < 1 {
		fatal("Usage: warpwallet-cli account <create|import|list|info|rename|move|hide|show|birth|delete|downgrade>")
	}
	switch args[0] {
	case "create":
		cmdAccountCreate(client, args[1:], coin)
	case "import":
		cmdAccountImport(client, args[1:], coin)
	case "list":
		cmdAccountList(client, args[1:], coin)
	case "info":
		a := getAccount(client, coin, accountArg(args[1:], "account info <id>"))
		printAccount(a)
	case "rename":
		if len(args) < 3 {
			fatal("Usage: warpwallet-cli account rename <id> <name>")
		}
		id := accountArg(args[1:], "account rename <id> <name>")
		updateAccount(client, "wallet_renameAccount", rpc.UpdateAccountParam{Coin: coin, Account: id, Name: args[2]})
		fmt.Printf("Account %d renamed to %q\n", id, args[2])
	case "move":
		if len(args) < 3 {
			fatal("Usage: warpwallet-cli account move <id> <position>")
		}
		id := accountArg(args[1:], "account move <id> <position>")
		pos := parseUint32(args[2], "position")
		updateAccount(client, "wallet_reorderAccount", rpc.UpdateAccountParam{Coin: coin, Account: id, Position: pos})
		fmt.Printf("Account %d moved to position %d\n", id, pos)
	case "hide", "show":
		id := accountArg(args[1:], "account "+args[0]+" <id>")
		hidden := args[0] == "hide"
		updateAccount(client, "wallet_hideAccount", rpc.UpdateAccountParam{Coin: coin, Account: id, Hidden: hidden})
		fmt.Printf("Account %d hidden=%v\n", id, hidden)
	case "birth":
		if len(args) < 3 {
			fatal("Usage: warpwallet-cli account birth <id> <height>")
		}
		id := accountArg(args[1:], "account birth <id> <height>")
		h := parseUint32(args[2], "height")
		updateAccount(client, "wallet_setBirth", rpc.UpdateAccountParam{Coin: coin, Account: id, Birth: h})
		fmt.Printf("Account %d birth set to %d\n", id, h)
	case "delete":
		id := accountArg(args[1:], "account delete <id>")
		updateAccount(client, "wallet_deleteAccount", rpc.UpdateAccountParam{Coin: coin, Account: id})
		fmt.Printf("Account %d deleted\n", id)
	case "downgrade":
		cmdAccountDowngrade(client, args[1:], coin)
	default:
		fatal("Unknown account subcommand: %s", args[0])
	}
}

func cmdAccountCreate(client *rpcclient.Client, args []string, coin uint8) {
	fs := flag.NewFlagSet("account create", flag.ExitOnError)
	name := fs.String("name", "", "Account name (required)")
	restore := fs.Bool("restore", false, "Restore from an existing seed phrase")
	index := fs.Uint("index", 0, "Account index under the seed")
	birth := fs.Uint("birth", 0, "Birth height")
	fs.Parse(args)

	if *name == "" {
		fatal("--name is required")
	}

	params := rpc.CreateAccountParam{
		Coin:  coin,
		Name:  *name,
		Index: uint32(*index),
		Birth: uint32(*birth),
	}
	if *restore {
		phrase, err := readPassword("Seed phrase: ")
		if err != nil {
			fatal("reading phrase: %v", err)
		}
		params.Phrase = strings.Join(strings.Fields(string(phrase)), " ")
		passphrase, err := readPassword("Seed passphrase (empty for none): ")
		if err != nil {
			fatal("reading passphrase: %v", err)
		}
		params.Passphrase = string(passphrase)
	}

	var a rpc.AccountResult
	if err := client.Call("wallet_createAccount", params, &a); err != nil {
		fatal("wallet_createAccount: %v", err)
	}

	fmt.Printf("Account %d %q created.\n", a.ID, a.Name)
	if a.Phrase != "" {
		fmt.Println()
		fmt.Println("IMPORTANT: Write down your seed phrase and store it safely!")
		fmt.Println()
		fmt.Printf("  %s\n", a.Phrase)
		fmt.Println()
	}
	printAccount(&a)
}

func cmdAccountImport(client *rpcclient.Client, args []string, coin uint8) {
	fs := flag.NewFlagSet("account import", flag.ExitOnError)
	name := fs.String("name", "", "Account name (required)")
	key := fs.String("key", "", "Encoded viewing or spending key (required)")
	birth := fs.Uint("birth", 0, "Birth height")
	fs.Parse(args)

	if *name == "" || *key == "" {
		fatal("--name and --key are required")
	}

	var a rpc.AccountResult
	params := rpc.ImportKeyParam{Coin: coin, Name: *name, Key: *key, Birth: uint32(*birth)}
	if err := client.Call("wallet_importKey", params, &a); err != nil {
		fatal("wallet_importKey: %v", err)
	}
	fmt.Printf("Account %d %q imported.\n", a.ID, a.Name)
	printAccount(&a)
}

func cmdAccountList(client *rpcclient.Client, args []string, coin uint8) {
	fs := flag.NewFlagSet("account list", flag.ExitOnError)
	all := fs.Bool("all", false, "Include hidden accounts")
	fs.Parse(args)

	var accounts []rpc.AccountResult
	if err := client.Call("wallet_listAccounts", rpc.CoinParam{Coin: coin}, &accounts); err != nil {
		fatal("wallet_listAccounts: %v", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts found.")
		return
	}
	fmt.Printf("%-4s %-20s %-28s %s\n", "ID", "NAME", "POOLS", "SPEND")
	for _, a := range accounts {
		if a.Hidden && !*all {
			continue
		}
		fmt.Printf("%-4d %-20s %-28s %s\n", a.ID, a.Name, a.Pools, a.SpendPools)
	}
}

func cmdAccountDowngrade(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "account downgrade <id> --pool <p> --to <view|none>")
	fs := flag.NewFlagSet("account downgrade", flag.ExitOnError)
	pool := fs.String("pool", "", "Pool to downgrade (required)")
	to := fs.String("to", "", "view or none (required)")
	fs.Parse(args[1:])

	if *pool == "" || *to == "" {
		fatal("--pool and --to are required")
	}
	params := rpc.DowngradeParam{Coin: coin, Account: id, Pool: *pool, Capability: *to}
	if err := client.Call("wallet_downgrade", params, nil); err != nil {
		fatal("wallet_downgrade: %v", err)
	}
	printAccount(getAccount(client, coin, id))
}

func getAccount(client *rpcclient.Client, coin uint8, id uint32) *rpc.AccountResult {
	var a rpc.AccountResult
	if err := client.Call("wallet_getAccount", rpc.AccountParam{Coin: coin, Account: id}, &a); err != nil {
		fatal("wallet_getAccount: %v", err)
	}
	return &a
}

func updateAccount(client *rpcclient.Client, method string, params rpc.UpdateAccountParam) {
	if err := client.Call(method, params, nil); err != nil {
		fatal("%s: %v", method, err)
	}
}

func printAccount(a *rpc.AccountResult) {
	fmt.Printf("ID:          %d\n", a.ID)
	fmt.Printf("Name:        %s\n", a.Name)
	fmt.Printf("Position:    %d\n", a.Position)
	fmt.Printf("Birth:       %d\n", a.Birth)
	fmt.Printf("Pools:       %s\n", a.Pools)
	fmt.Printf("Spendable:   %s\n", a.SpendPools)
	fmt.Printf("Fingerprint: %s\n", a.Fingerprint)
	if a.Hidden {
		fmt.Println("Hidden:      yes")
	}
}

// ── receiving ───────────────────────────────────────────────────────────

func cmdAddress(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "address <account> [--pools <p>] [--transparent]")
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	pools := fs.String("pools", "", "Receivers to include, e.g. sapling+orchard")
	transparent := fs.Bool("transparent", false, "Derive the next transparent address")
	fs.Parse(args[1:])

	var res rpc.AddressResult
	if *transparent {
		if err := client.Call("wallet_newTransparentAddress", rpc.AccountParam{Coin: coin, Account: id}, &res); err != nil {
			fatal("wallet_newTransparentAddress: %v", err)
		}
	} else {
		params := rpc.NewAddressParam{Coin: coin, Account: id, Pools: *pools}
		if err := client.Call("wallet_newAddress", params, &res); err != nil {
			fatal("wallet_newAddress: %v", err)
		}
	}
	fmt.Println(res.Address)
}

func cmdBalance(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "balance <account> [--height <h>]")
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	height := fs.Uint("height", 0, "Balance as of this height (default: tip)")
	fs.Parse(args[1:])

	params := rpc.BalanceParam{Coin: coin, Account: id}
	if *height > 0 {
		h := uint32(*height)
		params.Height = &h
	}
	var b rpc.BalanceResult
	if err := client.Call("wallet_getBalance", params, &b); err != nil {
		fatal("wallet_getBalance: %v", err)
	}

	fmt.Printf("Account:     %d\n", b.Account)
	fmt.Printf("Height:      %d\n", b.Height)
	fmt.Printf("Transparent: %s\n", pay.FormatAmount(b.Transparent))
	fmt.Printf("Sapling:     %s\n", pay.FormatAmount(b.Sapling))
	fmt.Printf("Orchard:     %s\n", pay.FormatAmount(b.Orchard))
	fmt.Printf("Total:       %s\n", b.Amount)
	if b.Unconfirmed != 0 {
		sign := "+"
		v := b.Unconfirmed
		if v < 0 {
			sign, v = "-", -v
		}
		fmt.Printf("Unconfirmed: %s%s\n", sign, pay.FormatAmount(uint64(v)))
	}
}

func cmdNotes(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "notes <account>")

	var notes []rpc.NoteResult
	if err := client.Call("wallet_listNotes", rpc.AccountParam{Coin: coin, Account: id}, &notes); err != nil {
		fatal("wallet_listNotes: %v", err)
	}
	if len(notes) == 0 {
		fmt.Println("No notes.")
		return
	}
	fmt.Printf("%-12s %-8s %-16s %-8s %s\n", "POOL", "HEIGHT", "AMOUNT", "STATE", "OUTPOINT")
	for _, n := range notes {
		state := "unspent"
		switch {
		case n.Pending:
			state = "pending"
		case n.SpentHeight > 0:
			state = "spent"
		case n.Excluded:
			state = "excluded"
		}
		outpoint := fmt.Sprintf("%s:%d", n.TxID, n.Index)
		if n.Pool != types.Transparent.String() {
			outpoint += fmt.Sprintf(" pos=%d", n.Position)
		}
		fmt.Printf("%-12s %-8d %-16s %-8s %s\n", n.Pool, n.Height, n.Amount, state, outpoint)
		if n.Memo != "" {
			fmt.Printf("             memo: %s\n", n.Memo)
		}
	}
}

func cmdExclude(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "exclude <account> --pool <p> (--position <n> | --txid <id> --index <i>) [--include]")
	fs := flag.NewFlagSet("exclude", flag.ExitOnError)
	pool := fs.String("pool", "", "Note pool (required)")
	position := fs.Uint64("position", 0, "Shielded note position")
	txid := fs.String("txid", "", "Transparent output txid")
	index := fs.Uint("index", 0, "Transparent output index")
	include := fs.Bool("include", false, "Make the note spendable again")
	fs.Parse(args[1:])

	if *pool == "" {
		fatal("--pool is required")
	}
	params := rpc.ExcludeNoteParam{
		Coin:     coin,
		Account:  id,
		Pool:     *pool,
		Position: *position,
		TxID:     *txid,
		Index:    uint32(*index),
		Excluded: !*include,
	}
	if err := client.Call("wallet_excludeNote", params, nil); err != nil {
		fatal("wallet_excludeNote: %v", err)
	}
	fmt.Printf("Note excluded=%v\n", params.Excluded)
}

// ── sync ────────────────────────────────────────────────────────────────

func cmdScan(client *rpcclient.Client, args []string, coin uint8) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	to := fs.Uint("to", 0, "Stop at this height (default: tip)")
	fs.Parse(args)

	var res rpc.HeightResult
	if err := client.Call("wallet_scan", rpc.ScanParam{Coin: coin, To: uint32(*to)}, &res); err != nil {
		fatal("wallet_scan: %v", err)
	}
	fmt.Printf("Scanned to height %d\n", res.Height)
}

func cmdRewind(client *rpcclient.Client, args []string, coin uint8) {
	if len(args) < 1 {
		fatal("Usage: warpwallet-cli rewind <height>")
	}
	h := parseUint32(args[0], "height")

	var res rpc.HeightResult
	if err := client.Call("wallet_rewind", rpc.HeightParam{Coin: coin, Height: h}, &res); err != nil {
		fatal("wallet_rewind: %v", err)
	}
	fmt.Printf("Rewound to height %d\n", res.Height)
}

func cmdReset(client *rpcclient.Client, coin uint8) {
	if err := client.Call("wallet_reset", rpc.CoinParam{Coin: coin}, nil); err != nil {
		fatal("wallet_reset: %v", err)
	}
	fmt.Println("Scan data cleared. The next scan starts from account birth heights.")
}

func cmdCheckpoints(client *rpcclient.Client, args []string, coin uint8) {
	fs := flag.NewFlagSet("checkpoints", flag.ExitOnError)
	purge := fs.Uint("purge", 0, "Delete checkpoints below this height")
	fs.Parse(args)

	if *purge > 0 {
		params := rpc.PurgeParam{Coin: coin, MinHeight: uint32(*purge)}
		if err := client.Call("wallet_purgeCheckpoints", params, nil); err != nil {
			fatal("wallet_purgeCheckpoints: %v", err)
		}
		fmt.Printf("Checkpoints below %d purged\n", *purge)
		return
	}

	var cps []rpc.CheckpointResult
	if err := client.Call("wallet_listCheckpoints", rpc.CoinParam{Coin: coin}, &cps); err != nil {
		fatal("wallet_listCheckpoints: %v", err)
	}
	if len(cps) == 0 {
		fmt.Println("No checkpoints.")
		return
	}
	fmt.Printf("%-8s %-66s %-10s %s\n", "HEIGHT", "HASH", "SAPLING", "ORCHARD")
	for _, c := range cps {
		fmt.Printf("%-8d %-66s %-10d %d\n", c.Height, c.Hash, c.SaplingSize, c.OrchardSize)
	}
}

// ── spending ────────────────────────────────────────────────────────────

func cmdSend(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "send <account> --to <addr> --amount <amt>")
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.String("to", "", "Recipient address (required)")
	amount := fs.String("amount", "", "Amount in coins (required)")
	memo := fs.String("memo", "", "Memo for shielded recipients")
	pools := fs.String("pools", "", "Pools to spend from (default: all)")
	feeFromAmount := fs.Bool("fee-from-amount", false, "Deduct the fee from the amount")
	yes := fs.Bool("y", false, "Skip confirmation")
	fs.Parse(args[1:])

	if *to == "" || *amount == "" {
		fatal("--to and --amount are required")
	}
	params := rpc.PaymentParam{
		Coin:             coin,
		Account:          id,
		Pools:            *pools,
		Recipients:       []rpc.RecipientParam{{Address: *to, Amount: *amount, Memo: *memo}},
		RecipientPaysFee: *feeFromAmount,
	}
	buildAndSend(client, params, *yes)
}

func cmdSendMany(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "sendmany <account> --file <path>")
	fs := flag.NewFlagSet("sendmany", flag.ExitOnError)
	file := fs.String("file", "", "Recipients file, one \"address amount [memo]\" per line (required)")
	pools := fs.String("pools", "", "Pools to spend from (default: all)")
	yes := fs.Bool("y", false, "Skip confirmation")
	fs.Parse(args[1:])

	if *file == "" {
		fatal("--file is required")
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		fatal("reading recipients file: %v", err)
	}
	recipients, err := pay.LineParser{}.ParseRecipients(string(data))
	if err != nil {
		fatal("parsing recipients: %v", err)
	}

	params := rpc.PaymentParam{Coin: coin, Account: id, Pools: *pools}
	for _, r := range recipients {
		params.Recipients = append(params.Recipients, rpc.RecipientParam{
			Address: r.Address,
			Amount:  pay.FormatAmount(r.Amount),
			Memo:    r.Memo,
		})
	}
	buildAndSend(client, params, *yes)
}

func cmdSweep(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "sweep <account> --to <addr>")
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	to := fs.String("to", "", "Destination address (required)")
	pools := fs.String("pools", "", "Pools to sweep (default: all)")
	yes := fs.Bool("y", false, "Skip confirmation")
	fs.Parse(args[1:])

	if *to == "" {
		fatal("--to is required")
	}
	buildAndSend(client, rpc.PaymentParam{Coin: coin, Account: id, Pools: *pools, Destination: *to}, *yes)
}

// buildAndSend plans a payment, shows it, and publishes it once confirmed.
// A declined plan is dropped on the daemon.
func buildAndSend(client *rpcclient.Client, params rpc.PaymentParam, yes bool) {
	var sum rpc.SummaryResult
	if err := client.Call("wallet_buildPayment", params, &sum); err != nil {
		fatal("wallet_buildPayment: %v", err)
	}

	fmt.Printf("Spending from account %d at height %d:\n", sum.Account, sum.Height)
	for _, in := range sum.Inputs {
		fmt.Printf("  in   %-12s %s\n", in.Pool, in.Amount)
	}
	for _, out := range sum.Outputs {
		dest := out.Address
		if out.Change {
			dest = "(change)"
		}
		fmt.Printf("  out  %-12s %-16s %s\n", out.Pool, out.Amount, dest)
	}
	fmt.Printf("Fee:    %s\n", pay.FormatAmount(sum.Fee))
	fmt.Printf("Expiry: %d\n", sum.Expiry)

	handle := rpc.HandleParam{Coin: params.Coin, Handle: sum.Handle}
	if !yes && !confirm("Send this payment?") {
		if err := client.Call("wallet_dropPayment", handle, nil); err != nil {
			fatal("wallet_dropPayment: %v", err)
		}
		fmt.Println("Payment discarded.")
		return
	}

	var res rpc.TxIDResult
	if err := client.Call("wallet_send", handle, &res); err != nil {
		fatal("wallet_send: %v", err)
	}
	fmt.Printf("Transaction sent: %s\n", res.TxID)
}

// ── history ─────────────────────────────────────────────────────────────

func cmdHistory(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "history <account>")

	var txs []rpc.TxResult
	if err := client.Call("wallet_listTxs", rpc.AccountParam{Coin: coin, Account: id}, &txs); err != nil {
		fatal("wallet_listTxs: %v", err)
	}
	if len(txs) == 0 {
		fmt.Println("No transactions.")
		return
	}
	fmt.Printf("%-6s %-8s %-18s %-66s %s\n", "ID", "HEIGHT", "VALUE", "TXID", "COUNTERPARTY")
	for _, t := range txs {
		party := t.Contact
		if party == "" {
			party = t.Address
		}
		height := strconv.FormatUint(uint64(t.Height), 10)
		if t.Height == 0 {
			height = "pending"
		}
		fmt.Printf("%-6d %-8s %-18s %-66s %s\n", t.ID, height, signedAmount(t.Value), t.TxID, party)
	}
}

func cmdTx(client *rpcclient.Client, args []string, coin uint8) {
	if len(args) < 2 {
		fatal("Usage: warpwallet-cli tx <account> <id>")
	}
	account := accountArg(args, "tx <account> <id>")
	txID := parseUint32(args[1], "tx id")

	var t rpc.TxResult
	if err := client.Call("wallet_getTx", rpc.TxParam{Coin: coin, Account: account, Tx: txID}, &t); err != nil {
		fatal("wallet_getTx: %v", err)
	}

	fmt.Printf("TxID:    %s\n", t.TxID)
	fmt.Printf("Height:  %d\n", t.Height)
	if t.Timestamp > 0 {
		fmt.Printf("Time:    %s\n", time.Unix(int64(t.Timestamp), 0).UTC().Format(time.RFC3339))
	}
	fmt.Printf("Value:   %s\n", signedAmount(t.Value))
	if t.Fee > 0 {
		fmt.Printf("Fee:     %s\n", pay.FormatAmount(t.Fee))
	}
	if t.Memo != "" {
		fmt.Printf("Memo:    %s\n", t.Memo)
	}
	for _, in := range t.Inputs {
		fmt.Printf("  in   %-12s %s\n", in.Pool, in.Amount)
	}
	for _, out := range t.Outputs {
		fmt.Printf("  out  %-12s %-16s %s\n", out.Pool, out.Amount, out.Address)
	}
}

func cmdMessages(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "messages <account> [--read <id>]")
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	read := fs.Int64("read", -1, "Mark this message read")
	fs.Parse(args[1:])

	if *read >= 0 {
		params := rpc.MarkReadParam{Coin: coin, Message: uint32(*read), Read: true}
		if err := client.Call("wallet_markRead", params, nil); err != nil {
			fatal("wallet_markRead: %v", err)
		}
		fmt.Printf("Message %d marked read\n", *read)
		return
	}

	var msgs []rpc.MessageResult
	if err := client.Call("wallet_listMessages", rpc.AccountParam{Coin: coin, Account: id}, &msgs); err != nil {
		fatal("wallet_listMessages: %v", err)
	}
	var unread rpc.CountResult
	if err := client.Call("wallet_unreadCount", rpc.AccountParam{Coin: coin, Account: id}, &unread); err != nil {
		fatal("wallet_unreadCount: %v", err)
	}
	fmt.Printf("%d messages, %d unread\n", len(msgs), unread.Count)
	for _, m := range msgs {
		mark := " "
		if !m.Read {
			mark = "*"
		}
		dir, party := "from", m.Sender
		if !m.Incoming {
			dir, party = "to", m.Recipient
		}
		fmt.Printf("%s %-4d %-4s %s\n", mark, m.ID, dir, party)
		if m.Subject != "" {
			fmt.Printf("       %s\n", m.Subject)
		}
		fmt.Printf("       %s\n", m.Body)
	}
}

func cmdContact(client *rpcclient.Client, args []string, coin uint8) {
	if len(args) < 1 {
		fatal("Usage: warpwallet-cli contact <list|add|delete|save>")
	}
	switch args[0] {
	case "list":
		id := accountArg(args[1:], "contact list <account>")
		var contacts []rpc.ContactResult
		if err := client.Call("wallet_listContacts", rpc.AccountParam{Coin: coin, Account: id}, &contacts); err != nil {
			fatal("wallet_listContacts: %v", err)
		}
		if len(contacts) == 0 {
			fmt.Println("No contacts.")
			return
		}
		for _, c := range contacts {
			mark := ""
			if c.Dirty {
				mark = " (unsaved)"
			}
			fmt.Printf("%-4d %-20s %s%s\n", c.ID, c.Name, c.Address, mark)
		}
	case "add":
		id := accountArg(args[1:], "contact add <account> --name <n> --address <a>")
		fs := flag.NewFlagSet("contact add", flag.ExitOnError)
		name := fs.String("name", "", "Contact name (required)")
		address := fs.String("address", "", "Contact address (required)")
		fs.Parse(args[2:])
		if *name == "" || *address == "" {
			fatal("--name and --address are required")
		}
		var c rpc.ContactResult
		params := rpc.ContactParam{Coin: coin, Account: id, Name: *name, Address: *address}
		if err := client.Call("wallet_putContact", params, &c); err != nil {
			fatal("wallet_putContact: %v", err)
		}
		fmt.Printf("Contact %d %q added\n", c.ID, c.Name)
	case "delete":
		id := accountArg(args[1:], "contact delete <id>")
		if err := client.Call("wallet_deleteContact", rpc.ContactIDParam{Coin: coin, Contact: id}, nil); err != nil {
			fatal("wallet_deleteContact: %v", err)
		}
		fmt.Printf("Contact %d deleted\n", id)
	case "save":
		id := accountArg(args[1:], "contact save <account>")
		var res rpc.TxIDResult
		if err := client.Call("wallet_saveContacts", rpc.AccountParam{Coin: coin, Account: id}, &res); err != nil {
			fatal("wallet_saveContacts: %v", err)
		}
		fmt.Printf("Contacts published: %s\n", res.TxID)
	default:
		fatal("Unknown contact subcommand: %s", args[0])
	}
}

// ── backup ──────────────────────────────────────────────────────────────

func cmdBackup(client *rpcclient.Client, args []string, coin uint8) {
	if len(args) < 1 {
		fatal("Usage: warpwallet-cli backup <export|restore>")
	}
	switch args[0] {
	case "export":
		cmdBackupExport(client, args[1:], coin)
	case "restore":
		cmdBackupRestore(client, args[1:], coin)
	default:
		fatal("Unknown backup subcommand: %s", args[0])
	}
}

func cmdBackupExport(client *rpcclient.Client, args []string, coin uint8) {
	id := accountArg(args, "backup export <account> [--out <file>]")
	fs := flag.NewFlagSet("backup export", flag.ExitOnError)
	out := fs.String("out", "", "Write the backup to this file (default: stdout)")
	fs.Parse(args[1:])

	password, err := readPassword("Backup password (empty for none): ")
	if err != nil {
		fatal("reading password: %v", err)
	}
	if len(password) > 0 {
		confirmPw, err := readPassword("Confirm password: ")
		if err != nil {
			fatal("reading password: %v", err)
		}
		if string(password) != string(confirmPw) {
			fatal("passwords do not match")
		}
	}

	var res rpc.BackupResult
	params := rpc.ExportBackupParam{Coin: coin, Account: id, Password: string(password)}
	if err := client.Call("wallet_exportBackup", params, &res); err != nil {
		fatal("wallet_exportBackup: %v", err)
	}

	if *out == "" {
		fmt.Println(res.Record)
		return
	}
	if err := os.WriteFile(*out, []byte(res.Record+"\n"), 0600); err != nil {
		fatal("writing backup: %v", err)
	}
	fmt.Printf("Backup of %q written to %s (sealed=%v)\n", res.Name, *out, res.Sealed)
	if res.Phrase != "" {
		fmt.Println("The backup contains the account's seed phrase. Keep it safe.")
	}
}

func cmdBackupRestore(client *rpcclient.Client, args []string, coin uint8) {
	fs := flag.NewFlagSet("backup restore", flag.ExitOnError)
	file := fs.String("file", "", "Backup file (required)")
	fs.Parse(args)

	if *file == "" {
		fatal("--file is required")
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		fatal("reading backup: %v", err)
	}
	record := strings.TrimSpace(string(data))
	if _, err := hex.DecodeString(record); err != nil {
		fatal("backup file is not a hex record: %v", err)
	}

	password, err := readPassword("Backup password (empty for none): ")
	if err != nil {
		fatal("reading password: %v", err)
	}

	var a rpc.AccountResult
	params := rpc.RestoreBackupParam{Coin: coin, Backup: record, Password: string(password)}
	if err := client.Call("wallet_restoreBackup", params, &a); err != nil {
		fatal("wallet_restoreBackup: %v", err)
	}
	fmt.Printf("Account %d %q restored.\n", a.ID, a.Name)
	printAccount(&a)
}

// ── regtest ─────────────────────────────────────────────────────────────

func cmdRegtest(client *rpcclient.Client, args []string, coin uint8) {
	if len(args) < 1 {
		fatal("Usage: warpwallet-cli regtest <fund|mine>")
	}
	switch args[0] {
	case "fund":
		fs := flag.NewFlagSet("regtest fund", flag.ExitOnError)
		address := fs.String("address", "", "Recipient address (required)")
		amount := fs.String("amount", "", "Amount in coins (required)")
		pool := fs.String("pool", "", "Receiving pool (default: most private)")
		memo := fs.String("memo", "", "Memo")
		fs.Parse(args[1:])
		if *address == "" || *amount == "" {
			fatal("--address and --amount are required")
		}
		params := rpc.FundParam{Coin: coin, Address: *address, Pool: *pool, Amount: *amount, Memo: *memo}
		var res rpc.TxIDResult
		if err := client.Call("regtest_fund", params, &res); err != nil {
			fatal("regtest_fund: %v", err)
		}
		fmt.Printf("Funded: %s\n", res.TxID)
	case "mine":
		blocks := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				fatal("invalid block count %q", args[1])
			}
			blocks = n
		}
		var res rpc.HeightResult
		if err := client.Call("regtest_mine", rpc.MineParam{Coin: coin, Blocks: blocks}, &res); err != nil {
			fatal("regtest_mine: %v", err)
		}
		fmt.Printf("Height: %d\n", res.Height)
	default:
		fatal("Unknown regtest subcommand: %s", args[0])
	}
}

// ── helpers ─────────────────────────────────────────────────────────────

// accountArg reads the leading positional id of a subcommand.
func accountArg(args []string, usage string) uint32 {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fatal("Usage: warpwallet-cli %s", usage)
	}
	return parseUint32(args[0], "id")
}

func parseUint32(s, what string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		fatal("invalid %s %q", what, s)
	}
	return uint32(v)
}

func signedAmount(v int64) string {
	if v < 0 {
		return "-" + pay.FormatAmount(uint64(-v))
	}
	return "+" + pay.FormatAmount(uint64(v))
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	var answer string
	fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	return password, err
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
