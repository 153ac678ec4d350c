package commands

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/autoinvest/internal/engine"
	"github.com/wonny/autoinvest/internal/schedule"
	"github.com/wonny/autoinvest/internal/t212"
	"github.com/wonny/autoinvest/pkg/httputil"
)

// planCmd prints the timetable a rebuild would produce, without
// persisting anything. Needs the metadata API but no database and no
// broker session.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run: print the week's timetable without persisting it",
	Long: `Fetches the pie and venue calendars and prints the scheduled
orders a rebuild would produce right now.

Example:
  go run ./cmd/autoinvest plan`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	metadata := t212.NewMetadataClient(cfg.T212, httputil.New(log), log)
	builder := schedule.NewBuilder(cfg.Invest.WeeklyAmount, cfg.Invest.Period,
		rand.New(rand.NewSource(time.Now().UnixNano())))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	orders, err := engine.PlanOrders(ctx, metadata, builder, cfg.Invest, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("%-22s %-20s %10s %5s\n", "EXECUTE AT", "TICKER", "AMOUNT", "CCY")
	for _, o := range orders {
		fmt.Printf("%-22s %-20s %10s %5s\n",
			o.ExecuteAt.In(cfg.Invest.Timezone).Format("2006-01-02 15:04"),
			o.Ticker,
			o.Amount.StringFixed(2),
			cfg.Invest.MasterCurrency)
	}
	fmt.Printf("\n%d orders, %s %s total budget per week\n",
		len(orders), cfg.Invest.WeeklyAmount.StringFixed(2), cfg.Invest.MasterCurrency)
	return nil
}
