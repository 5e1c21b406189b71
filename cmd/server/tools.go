package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alphafinance/sim-engine/internal/pricing"
	"github.com/alphafinance/sim-engine/internal/tier"
)

func walkCmd() *cobra.Command {
	var (
		level      string
		steps      int
		seed       uint64
		levelsFile string
	)
	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Print a reproducible price walk for a level's universe",
		Long: `Advance a level's starting prices step by step with a seeded walker
and print one row per step. The same seed always prints the same table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := loadCatalog(levelsFile)
			if err != nil {
				return err
			}
			lvl, err := catalog.Get(level)
			if err != nil {
				return err
			}
			if steps < 0 {
				return fmt.Errorf("steps must not be negative, got %d", steps)
			}
			return printWalk(cmd.OutOrStdout(), lvl, pricing.NewWalker(seed), steps)
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", tier.Beginner, "Level whose universe to walk")
	cmd.Flags().IntVarP(&steps, "steps", "n", 10, "Number of update steps")
	cmd.Flags().Uint64VarP(&seed, "seed", "s", 1, "Random walk seed")
	cmd.Flags().StringVar(&levelsFile, "levels-file", "", "YAML level catalog (defaults to the built-in one)")
	return cmd
}

func printWalk(out io.Writer, lvl tier.Level, w *pricing.Walker, steps int) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	universe := lvl.Symbols

	header := []string{"step"}
	for _, s := range universe {
		header = append(header, s.Ticker)
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for step := 0; step <= steps; step++ {
		if step > 0 {
			universe = w.Advance(universe)
		}
		row := []string{fmt.Sprint(step)}
		for _, s := range universe {
			row = append(row, s.Price.StringFixed(2))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	return tw.Flush()
}

func levelsCmd() *cobra.Command {
	var (
		asYAML     bool
		levelsFile string
	)
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "List the level catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := loadCatalog(levelsFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asYAML {
				data, err := tier.Marshal(catalog)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			return printLevels(out, catalog)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the catalog as a YAML file usable as LEVELS_FILE")
	cmd.Flags().StringVar(&levelsFile, "levels-file", "", "YAML level catalog (defaults to the built-in one)")
	return cmd
}

func printLevels(out io.Writer, catalog *tier.Catalog) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tBALANCE\tLIMIT ORDERS\tSYMBOLS")
	for _, l := range catalog.Levels() {
		tickers := make([]string, len(l.Symbols))
		for i, s := range l.Symbols {
			tickers[i] = s.Ticker
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", l.Name, l.Balance.StringFixed(2), l.LimitOrders, strings.Join(tickers, ","))
	}
	return tw.Flush()
}
