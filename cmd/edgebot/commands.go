package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alanyoungcy/edgebot/internal/app"
	"github.com/alanyoungcy/edgebot/internal/config"
	"github.com/alanyoungcy/edgebot/internal/crypto"
	"github.com/alanyoungcy/edgebot/internal/domain"
	"github.com/alanyoungcy/edgebot/internal/service"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("edgebot "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// wireForCLI loads configuration and wires dependencies for a one-shot
// command. Logging goes to stderr at warn level so table output stays clean.
// A non-empty mode overrides the configured one, which lets trade commands
// force exchange credential loading.
func wireForCLI(ctx context.Context, configPath, mode string) (*config.Config, *app.Dependencies, func(), error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	deps, cleanup, err := app.Wire(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, deps, cleanup, nil
}

func cliContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "edgebot: %v\n", err)
	return 1
}

// candidatesMain lists fresh value-bet candidates ranked by edge.
func candidatesMain(args []string) int {
	fs := newFlagSet("candidates")
	configPath := fs.String("config", "config.toml", "path to configuration file")
	freshness := fs.Duration("freshness", 15*time.Minute, "maximum candidate age")
	limit := fs.Int("limit", 20, "maximum rows to print")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := cliContext()
	defer stop()

	_, deps, cleanup, err := wireForCLI(ctx, *configPath, "")
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	svc := service.NewCandidateService(deps.CandidateStore, deps.EventStore, slog.Default())
	ranked, err := svc.Ranked(ctx, *freshness, *limit)
	if err != nil {
		return fail(err)
	}
	if len(ranked) == 0 {
		fmt.Println("no fresh candidates")
		return 0
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tEDGE_PP\tPRICE\tFAIR\tBOOK\tSELECTION\tMARKET\tFIXTURE\tKICKOFF")
	for _, rc := range ranked {
		c := rc.Candidate
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%s\t%s\t%s\t%s\t%s\n",
			c.Tier, c.EdgePP, c.OfferedPrice, c.FairPrice,
			c.Bookmaker, c.Selection, c.Market,
			rc.Event.Name(), rc.Event.StartTime.Format(time.RFC3339),
		)
	}
	w.Flush()
	return 0
}

// tradesMain lists, inspects, or cancels strategy trades.
func tradesMain(args []string) int {
	action := "list"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		action = args[0]
		args = args[1:]
	}

	fs := newFlagSet("trades " + action)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	id := fs.String("id", "", "trade ID (show, cancel)")
	status := fs.String("status", "", "filter by status (list)")
	eventID := fs.String("event", "", "filter by event ID (list)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := cliContext()
	defer stop()

	// Cancellation talks to the exchange; force credential loading.
	mode := ""
	if action == "cancel" {
		mode = "trade"
	}
	cfg, deps, cleanup, err := wireForCLI(ctx, *configPath, mode)
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	var svc *service.TradeService
	if action == "cancel" {
		engine := app.NewEngine(cfg, deps, slog.Default())
		svc = service.NewTradeService(deps.TradeStore, engine, slog.Default())
	} else {
		svc = service.NewTradeService(deps.TradeStore, nil, slog.Default())
	}

	switch action {
	case "list":
		trades, err := svc.List(ctx, domain.TradeFilter{
			Status:  domain.TradeStatus(*status),
			EventID: *eventID,
		})
		if err != nil {
			return fail(err)
		}
		printTrades(trades)
		return 0
	case "open":
		trades, err := svc.Open(ctx)
		if err != nil {
			return fail(err)
		}
		printTrades(trades)
		return 0
	case "show":
		if *id == "" {
			return fail(fmt.Errorf("trades show: -id is required"))
		}
		t, err := svc.Get(ctx, *id)
		if err != nil {
			return fail(err)
		}
		printTrades([]domain.StrategyTrade{t})
		return 0
	case "cancel":
		if *id == "" {
			return fail(fmt.Errorf("trades cancel: -id is required"))
		}
		if err := svc.Cancel(ctx, *id); err != nil {
			return fail(err)
		}
		fmt.Printf("trade %s cancelled\n", *id)
		return 0
	default:
		return fail(fmt.Errorf("trades: unknown action %q (list, open, show, cancel)", action))
	}
}

func printTrades(trades []domain.StrategyTrade) {
	if len(trades) == 0 {
		fmt.Println("no trades")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tEVENT\tSELECTION\tKICKOFF\tBACK\tLAY\tMARGIN\tPNL")
	for _, t := range trades {
		pnl := "-"
		if t.RealizedPnL != nil {
			pnl = fmt.Sprintf("%.2f", *t.RealizedPnL)
		}
		lay := "-"
		if t.LayPrice > 0 {
			lay = fmt.Sprintf("%.2f@%.2f", t.LayStake, t.LayPrice)
		}
		back := "-"
		if t.BackPrice > 0 {
			back = fmt.Sprintf("%.2f@%.2f", t.BackStake, t.BackPrice)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			t.ID, t.Status, t.EventID, t.SelectionID,
			t.Kickoff.Format(time.RFC3339), back, lay, t.Margin, pnl,
		)
	}
	w.Flush()
}

// betsMain records, lists, or settles manual bets.
func betsMain(args []string) int {
	action := "list"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		action = args[0]
		args = args[1:]
	}

	fs := newFlagSet("bets " + action)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	id := fs.String("id", "", "bet ID (settle)")
	result := fs.String("result", "", "settlement result: won, lost, or void (settle)")
	eventID := fs.String("event", "", "event ID (place)")
	market := fs.String("market", "match_odds", "market key (place)")
	selection := fs.String("selection", "", "selection (place)")
	source := fs.String("source", "", "bookmaker the bet was placed with (place)")
	odds := fs.Float64("odds", 0, "decimal odds taken (place)")
	stake := fs.Float64("stake", 0, "stake (place)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := cliContext()
	defer stop()

	_, deps, cleanup, err := wireForCLI(ctx, *configPath, "")
	if err != nil {
		return fail(err)
	}
	defer cleanup()

	svc := service.NewBetService(deps.BetStore, deps.QuoteStore, deps.Model, slog.Default())

	switch action {
	case "list":
		bets, err := svc.Pending(ctx, domain.ListOpts{})
		if err != nil {
			return fail(err)
		}
		printBets(bets)
		return 0
	case "place":
		bet, err := svc.Place(ctx, service.PlaceBetParams{
			EventID:   *eventID,
			Market:    *market,
			Selection: *selection,
			Source:    *source,
			Odds:      *odds,
			Stake:     *stake,
		})
		if err != nil {
			return fail(err)
		}
		fmt.Printf("bet %s recorded (fair %.2f, taken %.2f)\n", bet.ID, bet.FairPrice, bet.Odds)
		return 0
	case "settle":
		if *id == "" || *result == "" {
			return fail(fmt.Errorf("bets settle: -id and -result are required"))
		}
		pnl, err := svc.Settle(ctx, *id, domain.BetStatus(*result))
		if err != nil {
			return fail(err)
		}
		fmt.Printf("bet %s settled %s, pnl %.2f\n", *id, *result, pnl)
		return 0
	default:
		return fail(fmt.Errorf("bets: unknown action %q (list, place, settle)", action))
	}
}

func printBets(bets []domain.Bet) {
	if len(bets) == 0 {
		fmt.Println("no pending bets")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEVENT\tSELECTION\tSOURCE\tODDS\tSTAKE\tFAIR\tPLACED")
	for _, b := range bets {
		fair := "-"
		if b.FairPrice > 0 {
			fair = fmt.Sprintf("%.2f", b.FairPrice)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
			b.ID, b.EventID, b.Selection, b.Source,
			b.Odds, b.Stake, fair, b.CreatedAt.Format(time.RFC3339),
		)
	}
	w.Flush()
}

// credsMain encrypts an exchange API key pair to a file that the exchange
// section of the configuration can point at.
func credsMain(args []string) int {
	action := "encrypt"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		action = args[0]
		args = args[1:]
	}
	if action != "encrypt" {
		return fail(fmt.Errorf("creds: unknown action %q (encrypt)", action))
	}

	fs := newFlagSet("creds encrypt")
	key := fs.String("key", "", "exchange API key")
	secret := fs.String("secret", "", "exchange API secret")
	out := fs.String("out", "credentials.enc.json", "output path")
	password := fs.String("password", os.Getenv("EDGEBOT_EXCHANGE_CREDS_PASSWORD"), "encryption password (or EDGEBOT_EXCHANGE_CREDS_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *key == "" || *secret == "" {
		return fail(fmt.Errorf("creds encrypt: -key and -secret are required"))
	}
	if *password == "" {
		return fail(fmt.Errorf("creds encrypt: a password is required"))
	}

	blob, err := crypto.Encrypt(crypto.Credentials{APIKey: *key, APISecret: *secret}, *password)
	if err != nil {
		return fail(err)
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return fail(fmt.Errorf("write %s: %w", *out, err))
	}
	fmt.Printf("encrypted credentials written to %s\n", *out)
	return 0
}
