package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"perennial-dash/internal/config"
	"perennial-dash/internal/data"
	"perennial-dash/internal/logging"
	"perennial-dash/internal/perennial"
	"perennial-dash/internal/state/sqlite"
	"perennial-dash/internal/wallet"
)

const usage = `usage: trade [-config path] [-env path] <command> [flags]

commands:
  markets                         list markets with their latest price
  orders   [-account 0x..]        list open orders (defaults to the wallet)
  open     -market -side -amount [-limit] [-dry-run] [-account 0x..]
  close    -market -side [-amount] [-limit] [-dry-run] [-account 0x..]
  history  [-limit n]             list recorded submissions
`

type toolkit struct {
	cfg     *config.Config
	log     *zap.Logger
	client  *ethclient.Client
	store   *sqlite.Store
	sdk     *perennial.SDK
	svc     *data.Service
	session *wallet.Session
}

func main() {
	configPath := flag.String("config", "", "optional config path")
	envPath := flag.String("env", ".env", "path to .env file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadEnv(*envPath); err != nil {
		fatal(err)
	}
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	tk, err := newToolkit(cfg, log)
	if err != nil {
		fatal(err)
	}
	defer tk.close()

	ctx := context.Background()
	args := flag.Args()
	switch args[0] {
	case "markets":
		err = tk.markets(ctx)
	case "orders":
		err = tk.orders(ctx, args[1:])
	case "open":
		err = tk.open(ctx, args[1:])
	case "close":
		err = tk.closePosition(ctx, args[1:])
	case "history":
		err = tk.history(ctx, args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func newToolkit(cfg *config.Config, log *zap.Logger) (*toolkit, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		client.Close()
		return nil, err
	}
	sdk := perennial.New(perennial.Options{
		Versions: perennial.NewChainReader(client),
		Orders:   perennial.NewGraphClient(cfg.Indexer.URL, cfg.Indexer.Timeout, log),
		Log:      log,
	})
	svc := data.New(data.Options{
		SDK:           sdk,
		Allowed:       cfg.Markets.Allowed,
		Decimals:      cfg.Orders.Decimals,
		MaxOpenOrders: cfg.Orders.MaxOpenOrders,
		Journal:       store,
		Log:           log,
	})
	return &toolkit{
		cfg:     cfg,
		log:     log,
		client:  client,
		store:   store,
		sdk:     sdk,
		svc:     svc,
		session: wallet.NewSession(cfg.Chain, cfg.Wallet, client, store, log),
	}, nil
}

func (t *toolkit) close() {
	t.svc.Wait()
	_ = t.store.Close()
	t.client.Close()
}

func (t *toolkit) markets(ctx context.Context) error {
	markets, err := t.svc.FetchMarkets(ctx)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		fmt.Println("no markets available")
		return nil
	}
	for _, m := range markets {
		fmt.Printf("%-4s %-10s $%-14s %s\n", strings.ToUpper(m.Token), m.Name, m.CurrentPrice, m.Address)
	}
	return nil
}

func (t *toolkit) orders(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("orders", flag.ExitOnError)
	account := fs.String("account", "", "account address (defaults to the wallet)")
	_ = fs.Parse(args)

	addr, err := t.account(ctx, *account)
	if err != nil {
		return err
	}
	orders, err := t.svc.FetchOpenOrders(ctx, addr.Hex())
	if err != nil {
		return err
	}
	return printJSON(orders)
}

func (t *toolkit) open(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	market := fs.String("market", "", "market address or name (eth, btc)")
	side := fs.String("side", "long", "long or short")
	amount := fs.String("amount", "", "position size")
	limit := fs.String("limit", "", "optional limit price")
	dryRun := fs.Bool("dry-run", false, "print the approve and order calldata and exit")
	account := fs.String("account", "", "account for -dry-run without a wallet")
	_ = fs.Parse(args)

	params := data.TradeParams{MarketAddress: *market, Side: *side, Amount: *amount, LimitPrice: *limit}
	if *dryRun {
		addr, err := t.account(ctx, *account)
		if err != nil {
			return err
		}
		order, err := t.svc.PlanOpen(addr, params)
		if err != nil {
			return err
		}
		to, calldata, err := t.sdk.ApproveCalldata(order.Delta)
		if err != nil {
			return err
		}
		printCall("approve", to, calldata)
		return t.printOrder(order)
	}
	tx, err := t.login(ctx)
	if err != nil {
		return err
	}
	hash, err := t.svc.OpenPosition(ctx, tx, params)
	if err != nil {
		return err
	}
	fmt.Printf("Position opened! Transaction: %s\n", hash)
	return nil
}

func (t *toolkit) closePosition(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	market := fs.String("market", "", "market address or name (eth, btc)")
	side := fs.String("side", "long", "long or short")
	amount := fs.String("amount", "", "size to close (default "+data.DefaultCloseAmount+")")
	limit := fs.String("limit", "", "optional limit price")
	dryRun := fs.Bool("dry-run", false, "print the order calldata and exit")
	account := fs.String("account", "", "account for -dry-run without a wallet")
	_ = fs.Parse(args)

	params := data.ClosePositionParams{MarketAddress: *market, Side: *side, Amount: *amount, LimitPrice: *limit}
	if *dryRun {
		addr, err := t.account(ctx, *account)
		if err != nil {
			return err
		}
		order, err := t.svc.PlanClose(addr, params)
		if err != nil {
			return err
		}
		return t.printOrder(order)
	}
	tx, err := t.login(ctx)
	if err != nil {
		return err
	}
	hash, err := t.svc.ClosePosition(ctx, tx, params)
	if err != nil {
		return err
	}
	fmt.Printf("Position closed! Transaction: %s\n", hash)
	return nil
}

func (t *toolkit) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of submissions")
	_ = fs.Parse(args)
	subs, err := t.svc.Submissions(ctx, *limit)
	if err != nil {
		return err
	}
	return printJSON(subs)
}

// account resolves the explicit address, else the wallet address. It never
// creates an embedded wallet.
func (t *toolkit) account(ctx context.Context, explicit string) (common.Address, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if !common.IsHexAddress(explicit) {
			return common.Address{}, fmt.Errorf("invalid account %q", explicit)
		}
		return common.HexToAddress(explicit), nil
	}
	if key := strings.TrimSpace(os.Getenv(t.cfg.Wallet.PrivateKeyEnv)); key != "" {
		signer, err := wallet.NewSigner(key)
		if err != nil {
			return common.Address{}, err
		}
		return signer.Address(), nil
	}
	if signer, ok, err := wallet.LoadEmbedded(ctx, t.store); err != nil {
		return common.Address{}, err
	} else if ok {
		return signer.Address(), nil
	}
	return common.Address{}, errors.New("no wallet configured: set " + t.cfg.Wallet.PrivateKeyEnv + " or pass -account")
}

func (t *toolkit) login(ctx context.Context) (perennial.Transactor, error) {
	if err := t.session.Login(ctx); err != nil {
		return nil, err
	}
	tx, ok := t.session.Transactor()
	if !ok {
		return nil, errors.New("wallet not connected")
	}
	return tx, nil
}

func (t *toolkit) printOrder(order perennial.LimitOrder) error {
	to, calldata, err := t.sdk.LimitOrderCalldata(order)
	if err != nil {
		return err
	}
	fmt.Printf("order: market=%s side=%s comparison=%s price=%s delta=%s account=%s\n",
		order.Market.Hex(), order.Side, order.Comparison, order.LimitPrice, order.Delta, order.Account.Hex())
	printCall("invoke", to, calldata)
	return nil
}

func printCall(name string, to common.Address, calldata []byte) {
	fmt.Printf("%s: to=%s data=%s\n", name, to.Hex(), hexutil.Encode(calldata))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
