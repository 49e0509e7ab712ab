package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin"

	"billetera/internal/auth"
	"billetera/internal/backend"
	"billetera/internal/catalog"
	"billetera/internal/cli"
	"billetera/internal/config"
	"billetera/internal/core"
	"billetera/internal/export"
	"billetera/internal/log"
)

func main() {
	now := time.Now()

	cmdSeed := kingpin.Command("seed", "Insert missing default categories")
	seedFile := cmdSeed.Flag("file", "YAML seed file (defaults to CATEGORY_SEED_FILE or the built-in set)").ExistingFile()

	cmdReconcile := kingpin.Command("reconcile", "Compare stored balances with transaction history")
	reconcileUser := cmdReconcile.Flag("user", "Only check this user").String()

	cmdBalance := kingpin.Command("balance", "Show a user's current balance")
	balanceUser := cmdBalance.Flag("user", "User id").Required().String()

	cmdExport := kingpin.Command("export", "Write a month summary workbook")
	exportUser := cmdExport.Flag("user", "User id").Required().String()
	exportYear := cmdExport.Flag("year", "Year").Default(fmt.Sprint(now.Year())).Int()
	exportMonth := cmdExport.Flag("month", "Month (1-12)").Default(fmt.Sprint(int(now.Month()))).Int()
	exportOut := cmdExport.Flag("out", "Output file").Short('o').String()

	cmdToken := kingpin.Command("token", "Issue a bearer token for the API")
	tokenUser := cmdToken.Flag("user", "User id").Required().String()
	tokenFirst := cmdToken.Flag("first-name", "First name").String()
	tokenLast := cmdToken.Flag("last-name", "Last name").String()
	tokenEmail := cmdToken.Flag("email", "Email").String()
	tokenTTL := cmdToken.Flag("ttl", "Token lifetime").Default("720h").Duration()

	timeout := kingpin.Flag("timeout", "Overall command timeout").Default("2m").Duration()
	cmd := kingpin.Parse()

	cli.LoadEnvFile()
	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel(os.Getenv("LOG_LEVEL"))
	logCfg.Output = os.Stderr
	logger := log.New(logCfg)
	log.SetDefault(logger)

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch cmd {
	case cmdSeed.FullCommand():
		err = seed(ctx, cfg, logger, *seedFile)
	case cmdReconcile.FullCommand():
		err = reconcile(ctx, cfg, logger, *reconcileUser)
	case cmdBalance.FullCommand():
		err = balance(ctx, cfg, logger, *balanceUser)
	case cmdExport.FullCommand():
		out := *exportOut
		if out == "" {
			out = fmt.Sprintf("billetera-%04d-%02d.xlsx", *exportYear, *exportMonth)
		}
		err = writeWorkbook(ctx, cfg, logger, *exportUser, *exportYear, *exportMonth, out)
	case cmdToken.FullCommand():
		err = token(cfg, core.User{
			ID:        *tokenUser,
			FirstName: *tokenFirst,
			LastName:  *tokenLast,
			Email:     *tokenEmail,
		}, *tokenTTL)
	}
	if err != nil {
		cancel()
		cli.Fatal(logger, "Command failed", err)
	}
}

func seed(ctx context.Context, cfg *config.Config, logger *log.Logger, file string) error {
	svc, err := backend.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if file == "" {
		fmt.Println("Categories seeded from configured defaults")
		return nil
	}
	seeds, err := catalog.LoadSeeds(file)
	if err != nil {
		return err
	}
	n, err := svc.Catalog.EnsureSeeded(ctx, seeds)
	if err != nil {
		return err
	}
	fmt.Printf("Inserted %d categories from %s\n", n, file)
	return nil
}

// reconcile prints one line per user and fails when any balance drifted.
func reconcile(ctx context.Context, cfg *config.Config, logger *log.Logger, userID string) error {
	svc, err := backend.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	var recs []core.Reconciliation
	if userID != "" {
		rec, rerr := svc.Ledger.Reconcile(ctx, userID)
		recs, err = []core.Reconciliation{rec}, rerr
	} else {
		recs, err = svc.Ledger.ReconcileAll(ctx)
	}

	for _, rec := range recs {
		if rec.UserID == "" {
			continue
		}
		state := "ok"
		if !rec.Consistent() {
			state = "DRIFT"
		}
		fmt.Printf("%-24s %-5s stored=%s computed=%s transactions=%d\n",
			rec.UserID, state, rec.Stored.StringFixed(2), rec.Computed.StringFixed(2), rec.Transactions)
	}
	if errors.Is(err, core.ErrBalanceDrift) {
		return fmt.Errorf("reconciliation found drift: %w", err)
	}
	return err
}

func balance(ctx context.Context, cfg *config.Config, logger *log.Logger, userID string) error {
	svc, err := backend.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	amount, err := svc.Ledger.CurrentBalance(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Println(amount.StringFixed(2))
	return nil
}

func writeWorkbook(ctx context.Context, cfg *config.Config, logger *log.Logger, userID string, year, month int, out string) error {
	svc, err := backend.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	txs, err := svc.Ledger.ListTransactions(ctx, userID)
	if err != nil {
		return err
	}
	data, err := export.MonthXLSX(txs, year, month)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("Workbook written",
		log.FieldOperation, log.OpExport,
		log.FieldUserID, userID,
		"file", out)
	return nil
}

func token(cfg *config.Config, u core.User, ttl time.Duration) error {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("JWT_SECRET is not set")
	}
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	signed, err := tokens.Issue(u, ttl)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	return nil
}
