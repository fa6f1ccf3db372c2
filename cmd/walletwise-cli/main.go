// Command walletwise-cli records and lists expenses against a running
// walletwise server.
//
// Usage:
//
//	walletwise-cli [-server URL] add -amount 12.30 -category Food -description lunch [-date 2024-03-15] [-key TOKEN]
//	walletwise-cli [-server URL] list [-category Food] [-sort date_desc]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"walletwise/internal/cli"
	"walletwise/internal/client"
	"walletwise/internal/log"
)

func main() {
	cli.LoadEnvFile()
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("walletwise-cli", flag.ContinueOnError)
	server := global.String("server", envOr("WALLETWISE_URL", "http://localhost:8081"), "server base URL")
	timeout := global.Duration("timeout", 30*time.Second, "overall deadline, retries included")
	verbose := global.Bool("v", false, "log retries to stderr")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		return errors.New("missing command: add or list")
	}

	logger := log.Discard()
	if *verbose {
		logger = log.New(log.Config{Level: log.ParseLevel("debug"), Output: os.Stderr, Component: log.ComponentClient})
	}
	c, err := client.New(client.Config{BaseURL: *server, Logger: logger})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "add":
		return runAdd(ctx, c, rest, out)
	case "list":
		return runList(ctx, c, rest, out)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runAdd(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	amount := fs.String("amount", "", "amount in currency units, e.g. 12.30")
	category := fs.String("category", "", "category")
	description := fs.String("description", "", "description")
	date := fs.String("date", time.Now().Format("2006-01-02"), "date as YYYY-MM-DD")
	key := fs.String("key", "", "idempotency key; generated when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e := client.NewExpense{Amount: *amount, Category: *category, Description: *description, Date: *date}

	var (
		res client.CreateResult
		err error
	)
	if *key != "" {
		res, err = c.CreateExpenseWithKey(ctx, *key, e)
	} else {
		res, err = c.CreateExpense(ctx, e)
	}
	if err != nil {
		return err
	}

	status := "created"
	if res.Replayed {
		status = "already recorded"
	}
	fmt.Fprintf(out, "%s: #%d %s %s %q on %s (key %s)\n",
		status, res.Expense.ID, res.Expense.Amount, res.Expense.Category,
		res.Expense.Description, res.Expense.Date, res.Expense.IdempotencyKey)
	return nil
}

func runList(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	category := fs.String("category", "", "only this category")
	sort := fs.String("sort", "", "date_desc, or empty for newest first")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	expenses, err := c.ListExpenses(ctx, *category, *sort)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(expenses)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tAMOUNT\tCATEGORY\tDESCRIPTION")
	for _, e := range expenses {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Amount, e.Category, e.Description)
	}
	return tw.Flush()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
