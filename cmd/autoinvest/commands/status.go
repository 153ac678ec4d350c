package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/autoinvest/internal/store"
)

// statusCmd prints the engine state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the engine state",
	Long: `Prints the enabled flag, the scheduled order count and the next
execution time.

Example:
  go run ./cmd/autoinvest status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.NewPostgres(db.Pool)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	enabled, err := st.Enabled(ctx)
	if err != nil {
		return err
	}
	count, err := st.ScheduledOrderCount(ctx)
	if err != nil {
		return err
	}
	next, err := st.NextExecution(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Enabled:          %v\n", enabled)
	fmt.Printf("Scheduled orders: %d\n", count)
	if next != nil {
		fmt.Printf("Next execution:   %s\n", next.In(cfg.Invest.Timezone).Format("2006-01-02 15:04"))
	} else {
		fmt.Println("Next execution:   none")
	}
	return nil
}
