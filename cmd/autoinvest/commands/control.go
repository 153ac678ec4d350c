package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/autoinvest/internal/store"
)

// enableCmd turns order placement on.
var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable order placement",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(true)
	},
}

// disableCmd turns order placement off.
var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable order placement and clear the timetable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(false)
	},
}

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}

func setEnabled(enabled bool) error {
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

	if enabled {
		if err := st.Enable(ctx); err != nil {
			return err
		}
		fmt.Println("Auto-invest enabled.")
		return nil
	}

	if err := st.Disable(ctx); err != nil {
		return err
	}
	fmt.Println("Auto-invest disabled. The timetable will be cleared on the next cycle.")
	return nil
}
