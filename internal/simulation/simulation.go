// Package simulation runs Monte-Carlo projections of savings towards a goal.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultIterations    = 10_000
	MaxIterations        = 100_000
	DefaultHorizonMonths = 120
	MaxHorizonMonths     = 600
	DefaultExtraPoints   = 5.0
)

var ErrInvalidInput = errors.New("invalid simulation input")

// Input describes one projection. Amounts are in major units and rates are
// annual fractions (0.07 is 7%). Start from DefaultInput so that omitted
// rates keep their defaults.
type Input struct {
	CurrentNetWorth float64 `json:"current_net_worth"`
	MonthlyIncome   float64 `json:"monthly_income"`
	MonthlyExpenses float64 `json:"monthly_expenses"`
	MonthlySavings  float64 `json:"monthly_savings"`
	ExpectedReturn  float64 `json:"expected_return"`
	Volatility      float64 `json:"volatility"`
	IncomeGrowth    float64 `json:"income_growth"`
	Inflation       float64 `json:"inflation"`
	GoalAmount      float64 `json:"goal_amount"`
	DeadlineMonths  int     `json:"deadline_months"`
	Iterations      int     `json:"iterations"`
	HorizonMonths   int     `json:"horizon_months"`
	Seed            int64   `json:"seed"`
}

func DefaultInput() Input {
	return Input{
		ExpectedReturn: 0.07,
		Volatility:     0.15,
		IncomeGrowth:   0.03,
		Inflation:      0.05,
		Iterations:     DefaultIterations,
		HorizonMonths:  DefaultHorizonMonths,
	}
}

func (in *Input) normalize() error {
	if in.Iterations <= 0 {
		in.Iterations = DefaultIterations
	}
	if in.Iterations > MaxIterations {
		in.Iterations = MaxIterations
	}
	if in.HorizonMonths <= 0 {
		in.HorizonMonths = DefaultHorizonMonths
	}
	switch {
	case in.HorizonMonths > MaxHorizonMonths:
		return fmt.Errorf("%w: horizon must be at most %d months", ErrInvalidInput, MaxHorizonMonths)
	case in.DeadlineMonths < 0 || in.DeadlineMonths > MaxHorizonMonths:
		return fmt.Errorf("%w: deadline must be between 0 and %d months", ErrInvalidInput, MaxHorizonMonths)
	case in.Volatility < 0:
		return fmt.Errorf("%w: volatility must not be negative", ErrInvalidInput)
	case in.ExpectedReturn <= -1 || in.Inflation <= -1:
		return fmt.Errorf("%w: rates must be above -100%%", ErrInvalidInput)
	case in.GoalAmount < 0:
		return fmt.Errorf("%w: goal amount must not be negative", ErrInvalidInput)
	}
	return nil
}

type Percentiles struct {
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// Checkpoint is the balance distribution at one month.
type Checkpoint struct {
	Month      int         `json:"month"`
	IsDeadline bool        `json:"is_deadline,omitempty"`
	Nominal    Percentiles `json:"nominal"`
	RealP50    float64     `json:"real_p50"`
}

// Result summarizes a run. MedianMonthsToGoal is the median over every path,
// so it is zero when fewer than half of them reach the goal within the
// horizon.
type Result struct {
	Iterations         int          `json:"iterations"`
	Probability        float64      `json:"probability"`
	MedianMonthsToGoal int          `json:"median_months_to_goal"`
	Checkpoints        []Checkpoint `json:"checkpoints"`
}

type Comparison struct {
	Current             Result  `json:"current"`
	Optimized           Result  `json:"optimized"`
	ExtraMonthlySavings float64 `json:"extra_monthly_savings"`
	ProbabilityDelta    float64 `json:"probability_delta"`
}

// Engine partitions iterations across a fixed number of workers. Results are
// reproducible for a given seed and worker count.
type Engine struct {
	workers int
}

func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{workers: workers}
}

func (e *Engine) Workers() int { return e.workers }

func checkpointMonths(in Input) []int {
	months := []int{}
	for _, m := range []int{12, 60, 120} {
		if m <= in.HorizonMonths {
			months = append(months, m)
		}
	}
	if d := in.DeadlineMonths; d > 0 && d <= in.HorizonMonths {
		dup := false
		for _, m := range months {
			dup = dup || m == d
		}
		if !dup {
			months = append(months, d)
		}
	}
	sort.Ints(months)
	return months
}

// Run simulates in.Iterations independent paths.
func (e *Engine) Run(ctx context.Context, in Input) (Result, error) {
	if err := in.normalize(); err != nil {
		return Result{}, err
	}

	months := checkpointMonths(in)
	steps := in.HorizonMonths
	if in.DeadlineMonths > steps {
		steps = in.DeadlineMonths
	}

	mu := math.Pow(1+in.ExpectedReturn, 1.0/12) - 1
	sigma := in.Volatility / math.Sqrt(12)
	n := in.Iterations

	balances := make([][]float64, len(months))
	for i := range balances {
		balances[i] = make([]float64, n)
	}
	reached := make([]int, n)

	workers := e.workers
	if workers > n {
		workers = n
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*n/workers, (w+1)*n/workers
		rng := rand.New(rand.NewPCG(uint64(in.Seed), uint64(w)))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				balance := in.CurrentNetWorth
				savings := in.MonthlySavings
				cp := 0
				for m := 1; m <= steps; m++ {
					if m > 1 && (m-1)%12 == 0 {
						savings *= 1 + in.IncomeGrowth
					}
					ret := mu + sigma*rng.NormFloat64()
					balance = balance*(1+ret) + savings
					if in.GoalAmount > 0 && reached[i] == 0 && balance >= in.GoalAmount {
						reached[i] = m
					}
					if cp < len(months) && months[cp] == m {
						balances[cp][i] = balance
						cp++
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Iterations: n, Checkpoints: make([]Checkpoint, 0, len(months))}
	for i, m := range months {
		p := percentiles(balances[i])
		res.Checkpoints = append(res.Checkpoints, Checkpoint{
			Month:      m,
			IsDeadline: m == in.DeadlineMonths,
			Nominal:    p,
			RealP50:    p.P50 / math.Pow(1+in.Inflation, float64(m)/12),
		})
	}

	if in.GoalAmount > 0 {
		deadline := in.DeadlineMonths
		if deadline == 0 {
			deadline = steps
		}
		hits := 0
		// Paths that never reach the goal sort after the horizon.
		notReached := float64(steps + 1)
		monthsToGoal := make([]float64, n)
		for i, r := range reached {
			if r == 0 {
				monthsToGoal[i] = notReached
				continue
			}
			monthsToGoal[i] = float64(r)
			if r <= deadline {
				hits++
			}
		}
		res.Probability = float64(hits) / float64(n)
		sort.Float64s(monthsToGoal)
		if median := int(math.Ceil(quantile(monthsToGoal, 0.5))); median <= steps {
			res.MedianMonthsToGoal = median
		}
	}

	slog.DebugContext(ctx, "Simulation complete",
		"component", "simulation",
		"iterations", n,
		"workers", workers,
		"probability", res.Probability)
	return res, nil
}

// Compare runs the current plan and one where savings rise by extraPoints
// percent of monthly income. A non-positive extraPoints uses the default.
func (e *Engine) Compare(ctx context.Context, in Input, extraPoints float64) (Comparison, error) {
	if extraPoints <= 0 {
		extraPoints = DefaultExtraPoints
	}
	current, err := e.Run(ctx, in)
	if err != nil {
		return Comparison{}, err
	}

	extra := in.MonthlyIncome * extraPoints / 100
	opt := in
	opt.MonthlySavings += extra
	optimized, err := e.Run(ctx, opt)
	if err != nil {
		return Comparison{}, err
	}

	return Comparison{
		Current:             current,
		Optimized:           optimized,
		ExtraMonthlySavings: extra,
		ProbabilityDelta:    optimized.Probability - current.Probability,
	}, nil
}

func percentiles(values []float64) Percentiles {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return Percentiles{
		P10: quantile(sorted, 0.10),
		P25: quantile(sorted, 0.25),
		P50: quantile(sorted, 0.50),
		P75: quantile(sorted, 0.75),
		P90: quantile(sorted, 0.90),
	}
}

// quantile interpolates linearly between closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
