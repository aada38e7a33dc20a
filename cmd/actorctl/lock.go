package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arborfield/actorcore/internal/lock"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Exercise the shared/exclusive lock state machine",
}

var (
	lockStatusShared    int
	lockStatusExclusive int
)

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Acquire the requested number of shared/exclusive holders and print the resulting snapshot",
	Long: `status builds a fresh in-process lock, grants either --shared shared
holders (each under its own token) or, with --exclusive 1, a single
exclusive holder (setting both flags is an error), and reports the lock's Snapshot — a diagnostic demonstration of
spec §4.C's state machine, not an inspection of any persisted lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := lock.New(lock.PriorityShared)
		ctx := cmd.Context()

		if lockStatusExclusive > 0 && lockStatusShared > 0 {
			return fmt.Errorf("--shared and --exclusive are mutually exclusive for this demo: a real holder set can't mix grants without blocking")
		}

		if lockStatusExclusive > 0 {
			if lockStatusExclusive > 1 {
				return fmt.Errorf("only one exclusive holder can be granted at a time")
			}
			if err := l.BeginExclusive(ctx, lock.Token("actorctl-excl-0"), nil); err != nil {
				return fmt.Errorf("acquiring exclusive holder: %w", err)
			}
		} else {
			for i := 0; i < lockStatusShared; i++ {
				token := lock.Token(fmt.Sprintf("actorctl-shared-%d", i))
				if err := l.BeginShared(ctx, token, nil); err != nil {
					return fmt.Errorf("acquiring shared holder %d: %w", i, err)
				}
			}
		}

		out, err := json.MarshalIndent(l.Snapshot(), "", "  ")
		if err != nil {
			return fmt.Errorf("rendering JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	lockStatusCmd.Flags().IntVar(&lockStatusShared, "shared", 0, "number of shared holders to acquire before reporting")
	lockStatusCmd.Flags().IntVar(&lockStatusExclusive, "exclusive", 0, "acquire a single exclusive holder before reporting (0 or 1)")
	lockCmd.AddCommand(lockStatusCmd)
}
