package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/namelens/chatgate/internal/config"
	"github.com/namelens/chatgate/internal/core"
	"github.com/namelens/chatgate/internal/core/engine"
	"github.com/namelens/chatgate/internal/core/store"
	"github.com/namelens/chatgate/internal/output"
)

var (
	budgetShowFormat  string
	budgetShowOut     string
	budgetResetYes    bool
	budgetResetFormat string
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect or reset persisted admission state",
	Long: `Inspect or reset the token-bucket state that persists between runs when
ailink.admission.persist is enabled. The bucket is named after the resolved
provider instance and lives in the backend chosen by ailink.admission.backend
(store or redis).`,
}

var budgetShowCmd = &cobra.Command{
	Use:   "show [bucket]",
	Short: "Show the current budget",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(budgetShowFormat)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		bucket, err := budgetBucket(cfg, args)
		if err != nil {
			return err
		}

		budgets, release, err := openBudgets(cmd, cfg)
		if err != nil {
			return err
		}
		defer release()

		saved, err := budgets.GetBudget(cmd.Context(), bucket)
		if err != nil {
			return err
		}
		view := currentBudget(cfg, bucket, saved)

		sink, err := openSink(budgetShowOut)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(format).FormatBudget(view)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

var budgetResetCmd = &cobra.Command{
	Use:   "reset [bucket]",
	Short: "Delete persisted budget state so the next run starts full",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(budgetResetFormat)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}
		if !budgetResetYes {
			return errors.New("reset requires --yes")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		bucket, err := budgetBucket(cfg, args)
		if err != nil {
			return err
		}
		budgets, release, err := openBudgets(cmd, cfg)
		if err != nil {
			return err
		}
		defer release()

		deleted, err := budgets.ResetBudget(cmd.Context(), bucket)
		if err != nil {
			return err
		}
		return writeBudgetResetResult(format, cmd.OutOrStdout(), bucket, deleted)
	},
}

func init() {
	rootCmd.AddCommand(budgetCmd)
	budgetCmd.AddCommand(budgetShowCmd, budgetResetCmd)

	budgetShowCmd.Flags().StringVar(&budgetShowFormat, "output-format", string(output.FormatTable), "Output format: text|table|json|markdown")
	budgetShowCmd.Flags().StringVar(&budgetShowOut, "out", "", "Write output to a file (default stdout)")
	budgetResetCmd.Flags().BoolVar(&budgetResetYes, "yes", false, "Confirm reset")
	budgetResetCmd.Flags().StringVar(&budgetResetFormat, "output-format", string(output.FormatTable), "Output format: table|json")
}

func budgetBucket(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	return credentialProvider(cfg, nil)
}

// openBudgets opens the configured backend, plus the libsql store it may sit
// on.
func openBudgets(cmd *cobra.Command, cfg *config.Config) (store.BudgetStore, func(), error) {
	var db *store.Store
	if !strings.EqualFold(strings.TrimSpace(cfg.AILink.Admission.Backend), "redis") {
		opened, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return nil, nil, err
		}
		db = opened
	}

	budgets, closeFn, err := openBudgetStore(cmd.Context(), cfg, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, nil, err
	}
	return budgets, func() {
		if closeFn != nil {
			_ = closeFn()
		}
		if db != nil {
			_ = db.Close()
		}
	}, nil
}

// currentBudget applies elapsed refill to saved state, or reports a full
// bucket when nothing is saved.
func currentBudget(cfg *config.Config, bucket string, saved *core.RateBudget) output.Budget {
	admission := cfg.AILink.Admission
	var opts []engine.BucketOption
	if saved != nil {
		opts = append(opts, engine.WithState(*saved))
	}
	tb := engine.NewTokenBucket(admission.Capacity, admission.RefillPerSecond, opts...)
	return output.Budget{Name: bucket, Budget: tb.Snapshot(), Persisted: saved != nil}
}

func writeBudgetResetResult(format output.Format, w io.Writer, bucket string, deleted bool) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(map[string]any{"bucket": bucket, "deleted": deleted}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}
	if !deleted {
		_, err := fmt.Fprintf(w, "No saved budget for %s\n", bucket)
		return err
	}
	_, err := fmt.Fprintf(w, "Reset budget %s\n", bucket)
	return err
}
