// The cli runs audits against local files without the API or the
// warehouse: analyze a statement export, or forecast a balance CSV.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Rozthegray/ledger-guard/internal/categorize"
	"github.com/Rozthegray/ledger-guard/internal/config"
	"github.com/Rozthegray/ledger-guard/internal/domain"
	"github.com/Rozthegray/ledger-guard/internal/extract"
	"github.com/Rozthegray/ledger-guard/internal/forecast"
	"github.com/Rozthegray/ledger-guard/internal/llm"
	"github.com/Rozthegray/ledger-guard/internal/logger"
	"github.com/Rozthegray/ledger-guard/internal/memory"
	"github.com/Rozthegray/ledger-guard/internal/parse"
	"github.com/Rozthegray/ledger-guard/internal/pipeline"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "ledger-guard",
		Short:        "Audit bank statements and forecast cash-flow runway",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "ledger-guard.toml", "path to config file")

	root.AddCommand(newAnalyzeCmd(&configPath))
	root.AddCommand(newForecastCmd())
	root.AddCommand(newRunwayCmd())
	return root
}

func newAnalyzeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <statement file>",
		Short: "Parse and analyze a local statement text export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			log := logger.New()
			ctx, cancel := context.WithTimeout(logger.WithContext(cmd.Context(), log), 5*time.Minute)
			defer cancel()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read statement: %w", err)
			}

			text, err := extract.PlainText{}.Extract(data)
			if err != nil {
				return err
			}

			model, err := llm.NewClient(ctx, cfg.Model.Name, cfg.Model.EmbeddingModel)
			if err != nil {
				return err
			}

			cache, err := memory.Open(cfg.Memory.DBPath, model)
			if err != nil {
				return err
			}
			defer cache.Close()

			parser := parse.New(model, cfg.Model.MaxChars)
			candidates, err := parser.Parse(ctx, text)
			if err != nil {
				return err
			}

			categorizer := categorize.New(cache, model, cfg.Memory.MinSimilarity)
			analyzer := pipeline.NewAnalyzer(pipeline.ChainCategorizer(categorizer), nil, cfg.Pipeline.Permits)

			// No warehouse in local mode, so anomaly checks run without history.
			enriched := analyzer.Analyze(ctx, candidates, nil)
			return printJSON(enriched)
		},
	}
	return cmd
}

func newForecastCmd() *cobra.Command {
	var months int

	cmd := &cobra.Command{
		Use:   "forecast <balances.csv>",
		Short: "Project balance from a date,balance CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := readBalanceCSV(args[0])
			if err != nil {
				return err
			}
			return printJSON(forecast.New(months).Project(points))
		},
	}
	cmd.Flags().IntVar(&months, "months", 3, "projection horizon in months")
	return cmd
}

func newRunwayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runway <balances.csv>",
		Short: "Estimate runway days from a date,balance CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := readBalanceCSV(args[0])
			if err != nil {
				return err
			}
			estimate, err := forecast.New(0).EstimateRunway(points)
			if err != nil {
				return err
			}
			return printJSON(estimate)
		},
	}
	return cmd
}

// readBalanceCSV parses "date,balance" rows, tolerating a header line.
func readBalanceCSV(path string) ([]domain.BalancePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open balances: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read balances: %w", err)
	}

	var points []domain.BalancePoint
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected date,balance", i+1)
		}

		date, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: bad date %q", i+1, rec[0])
		}

		balance, err := decimal.NewFromString(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad balance %q", i+1, rec[1])
		}

		points = append(points, domain.BalancePoint{Date: date, Balance: balance})
	}
	return points, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
