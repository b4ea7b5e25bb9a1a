package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ikpa/internal/simulation"
)

func simulateCmd() *cobra.Command {
	in := simulation.DefaultInput()
	var (
		workers     int
		extraPoints float64
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a Monte Carlo savings projection",
		Example: "  ikpa simulate --income 400000 --savings 40000 --goal 2000000 --deadline 36\n" +
			"  ikpa simulate --savings 50000 --goal 1000000 --compare 10 --json",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := simulation.NewEngine(workers)
			out := cmd.OutOrStdout()

			if cmd.Flags().Changed("compare") {
				cmp, err := engine.Compare(cmd.Context(), in, extraPoints)
				if err != nil {
					return err
				}
				if asJSON {
					return writeIndented(cmd, cmp)
				}
				fmt.Fprintf(out, "Current plan   probability %.1f%%\n", cmp.Current.Probability*100)
				fmt.Fprintf(out, "Saving %.2f more probability %.1f%% (%+.1f points)\n",
					cmp.ExtraMonthlySavings, cmp.Optimized.Probability*100, cmp.ProbabilityDelta*100)
				return nil
			}

			res, err := engine.Run(cmd.Context(), in)
			if err != nil {
				return err
			}
			if asJSON {
				return writeIndented(cmd, res)
			}

			fmt.Fprintf(out, "Iterations: %d  Probability: %.1f%%  Median months to goal: %d\n\n",
				res.Iterations, res.Probability*100, res.MedianMonthsToGoal)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "month\tp10\tp25\tp50\tp75\tp90\treal p50\t")
			for _, c := range res.Checkpoints {
				label := fmt.Sprint(c.Month)
				if c.IsDeadline {
					label += "*"
				}
				fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%.0f\t%.0f\t%.0f\t%.0f\t\n",
					label, c.Nominal.P10, c.Nominal.P25, c.Nominal.P50, c.Nominal.P75, c.Nominal.P90, c.RealP50)
			}
			return tw.Flush()
		},
	}

	f := cmd.Flags()
	f.Float64Var(&in.CurrentNetWorth, "net-worth", 0, "current net worth")
	f.Float64Var(&in.MonthlyIncome, "income", 0, "monthly income")
	f.Float64Var(&in.MonthlyExpenses, "expenses", 0, "monthly expenses")
	f.Float64Var(&in.MonthlySavings, "savings", 0, "monthly savings")
	f.Float64Var(&in.ExpectedReturn, "return", in.ExpectedReturn, "expected annual return")
	f.Float64Var(&in.Volatility, "volatility", in.Volatility, "annual volatility")
	f.Float64Var(&in.IncomeGrowth, "income-growth", in.IncomeGrowth, "annual income growth")
	f.Float64Var(&in.Inflation, "inflation", in.Inflation, "annual inflation")
	f.Float64Var(&in.GoalAmount, "goal", 0, "goal amount")
	f.IntVar(&in.DeadlineMonths, "deadline", 0, "goal deadline in months")
	f.IntVar(&in.Iterations, "iterations", in.Iterations, "number of simulated paths")
	f.IntVar(&in.HorizonMonths, "horizon", in.HorizonMonths, "projection horizon in months")
	f.Int64Var(&in.Seed, "seed", 0, "random seed")
	f.IntVar(&workers, "workers", 0, "worker goroutines (default GOMAXPROCS)")
	f.Float64Var(&extraPoints, "compare", simulation.DefaultExtraPoints, "compare against saving this many more percentage points of income")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeIndented(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
