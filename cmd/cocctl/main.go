/*
main.go - Operator command-line tool

PURPOSE:
  Back-office operations against the COC database without going through
  the HTTP API: balance lookups, the uncertified backlog, certification,
  the expiration sweep, and the ledger consistency check.

COMMANDS:
  cocctl balance <employee-id>           Five-way balance
  cocctl uncertified                     Periods awaiting certification
  cocctl certify <employee-id> <month> <year> --issued <date> --by <name>
  cocctl sweep [--as-of <date>]          Run the expiration sweep
  cocctl reconcile <employee-id>         Ledger-vs-batch check

FLAGS:
  --db   SQLite database path (default: coc.db, or COC_DB)

EXAMPLES:
  cocctl balance EMP-0042
  cocctl certify EMP-0042 March 2025 --issued 2025-04-01 --by "R. Santos"
  cocctl sweep --as-of 2026-01-01
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/govhr/coc-engine/coc"
	"github.com/govhr/coc-engine/store/sqlite"
)

var dbPath string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "cocctl",
		Short: "Operator tool for the COC engine",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", envOr("COC_DB", "coc.db"), "SQLite database path")

	root.AddCommand(balanceCmd(), uncertifiedCmd(), certifyCmd(), sweepCmd(), reconcileCmd())

	if err := root.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func openEngine() (*coc.Engine, func(), error) {
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, nil, err
	}
	engine := coc.New(store, coc.WithLogger(zerolog.Nop()))
	return engine, func() { store.Close() }, nil
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <employee-id>",
		Short: "Show an employee's credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, done, err := openEngine()
			if err != nil {
				return err
			}
			defer done()

			ctx := context.Background()
			settings, err := engine.Config().Load(ctx)
			if err != nil {
				return err
			}
			today := coc.DateOf(time.Now(), settings.Location)
			b, err := engine.BalanceOf(ctx, coc.EmployeeID(args[0]), today)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Active", "Uncertified", "Total Earned", "Used", "Expired"})
			table.Append([]string{
				b.Active.String(), b.Uncertified.String(), b.TotalEarned.String(),
				b.Used.String(), b.Expired.String(),
			})
			table.Render()
			return nil
		},
	}
}

func uncertifiedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uncertified",
		Short: "List periods awaiting certification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, done, err := openEngine()
			if err != nil {
				return err
			}
			defer done()

			periods, stats, err := engine.Uncertified(context.Background())
			if err != nil {
				return err
			}
			if len(periods) == 0 {
				color.Green("nothing awaiting certification")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Employee", "Name", "Period", "Entries", "Hours"})
			for _, p := range periods {
				table.Append([]string{
					string(p.EmployeeID), p.EmployeeName,
					fmt.Sprintf("%s %d", p.Month, p.Year),
					strconv.Itoa(p.Entries), p.TotalHours.String(),
				})
			}
			table.Render()
			fmt.Printf("%d employees, %s hours pending\n", stats.Employees, stats.TotalHours)
			return nil
		},
	}
}

func certifyCmd() *cobra.Command {
	var issued, by string
	cmd := &cobra.Command{
		Use:   "certify <employee-id> <month> <year>",
		Short: "Certify a period into a credit batch",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("year: %w", err)
			}
			engine, done, err := openEngine()
			if err != nil {
				return err
			}
			defer done()

			result, err := engine.Certify(context.Background(), coc.CertifyRequest{
				EmployeeID:     coc.EmployeeID(args[0]),
				Month:          args[1],
				Year:           year,
				DateOfIssuance: issued,
				CertifiedBy:    by,
			})
			if errors.Is(err, coc.ErrAlreadyExists) {
				color.Yellow("%v", err)
				return nil
			}
			if err != nil {
				return err
			}
			color.Green("certified %s hours, valid until %s (certificate %s)",
				result.Certificate.TotalHours, result.Certificate.ValidUntil, result.Certificate.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&issued, "issued", "", "date of issuance (YYYY-MM-DD)")
	cmd.Flags().StringVar(&by, "by", "", "certifying officer")
	cmd.MarkFlagRequired("issued")
	return cmd
}

func sweepCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire batches past their validity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, done, err := openEngine()
			if err != nil {
				return err
			}
			defer done()

			ctx := context.Background()
			var date coc.Date
			if asOf == "" {
				settings, err := engine.Config().Load(ctx)
				if err != nil {
					return err
				}
				date = coc.DateOf(time.Now(), settings.Location)
			} else {
				date, err = coc.ParseDate(asOf)
				if err != nil {
					return err
				}
			}

			result, err := engine.ExpireSweep(ctx, date, "cocctl")
			if err != nil {
				return err
			}
			if result.BatchesExpired == 0 {
				color.Green("nothing to expire as of %s", date)
				return nil
			}
			color.Yellow("expired %d batches, %s hours forfeited",
				result.BatchesExpired, result.HoursForfeited)
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "sweep cutoff date (YYYY-MM-DD, default today)")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <employee-id>",
		Short: "Check the ledger against batch records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, done, err := openEngine()
			if err != nil {
				return err
			}
			defer done()

			net, err := engine.ReconcileBalance(context.Background(), coc.EmployeeID(args[0]))
			if err != nil {
				return err
			}
			color.Green("consistent: %s active hours", net)
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
