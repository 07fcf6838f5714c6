/*
main.go - Administrative command line

PURPOSE:
  Runs maintenance jobs and seeds data against the same SQLite database
  the server uses. Settings come from .env and the environment like the
  server's.

USAGE:
  shopctl [-db path] <command> [flags]

COMMANDS:
  decline-refunds               Decline every pending refund
  approve-refunds               Approve every pending refund
  runs [-job name]              List maintenance runs
  create-user -email [-username] [-wallet] [-admin]
  create-good -title -price [-stock] [-description]
  token -user id                Print a bearer token (needs TOKEN_SECRET)

SEE ALSO:
  - shop/maintenance.go: Bulk jobs
  - cmd/server/main.go: Server
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/shop-engine/api"
	"github.com/warp/shop-engine/config"
	"github.com/warp/shop-engine/shop"
	"github.com/warp/shop-engine/store/sqlite"
)

var errUsage = errors.New("usage: shopctl [-db path] <decline-refunds|approve-refunds|runs|create-user|create-good|token> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.Load(".env", nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	global := flag.NewFlagSet("shopctl", flag.ContinueOnError)
	global.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return errUsage
	}
	command, rest := global.Arg(0), global.Args()[1:]

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	svc := shop.NewService(store, shop.WithLogger(logger), shop.WithRefundWindow(cfg.RefundWindow))

	switch command {
	case "decline-refunds":
		result, err := svc.DeclineAllRefunds(ctx, shop.System)
		if err != nil {
			return err
		}
		return printJSON(out, result)

	case "approve-refunds":
		result, err := svc.ApproveAllRefunds(ctx, shop.System)
		if err != nil {
			return err
		}
		return printJSON(out, result)

	case "runs":
		fs := flag.NewFlagSet("runs", flag.ContinueOnError)
		job := fs.String("job", "", "decline_refunds or approve_refunds")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		runs, err := svc.ListMaintenanceRuns(ctx, shop.System, shop.MaintenanceJob(*job))
		if err != nil {
			return err
		}
		return printJSON(out, runs)

	case "create-user":
		fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
		email := fs.String("email", "", "email address")
		username := fs.String("username", "", "username (default: email)")
		wallet := fs.Int64("wallet", shop.DefaultWallet, "starting wallet")
		admin := fs.Bool("admin", false, "create an administrator")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		user, err := svc.CreateUser(ctx, shop.System, shop.User{
			Email:    *email,
			Username: *username,
			Wallet:   *wallet,
			IsAdmin:  *admin,
		})
		if err != nil {
			return err
		}
		return printJSON(out, user)

	case "create-good":
		fs := flag.NewFlagSet("create-good", flag.ContinueOnError)
		title := fs.String("title", "", "title")
		description := fs.String("description", "", "description")
		price := fs.Int64("price", 0, "unit price")
		stock := fs.Int64("stock", 0, "units in stock")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		good, err := svc.CreateGood(ctx, shop.System, shop.Good{
			Title:       *title,
			Description: *description,
			Price:       *price,
			InStock:     *stock,
		})
		if err != nil {
			return err
		}
		return printJSON(out, good)

	case "token":
		fs := flag.NewFlagSet("token", flag.ContinueOnError)
		userID := fs.Int64("user", 0, "user id")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if cfg.TokenSecret == "" {
			return errors.New("TOKEN_SECRET is not set")
		}
		user, err := store.GetUser(ctx, shop.UserID(*userID))
		if err != nil {
			return err
		}
		token, err := api.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL, nil).Issue(user.ID)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, token)
		return err

	default:
		return errUsage
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
