package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arborfield/actorcore/internal/config"
	"github.com/arborfield/actorcore/internal/tablestore"
	"github.com/arborfield/actorcore/internal/tablestore/sqlitekv"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Inspect a table actor's sqlitekv-backed storage",
}

var (
	tableDumpDB        string
	tableDumpActorType string
	tableDumpID        string
	tableDumpIndex     string
	tableDumpIndexKeys string
)

var tableDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump every row (or secondary-index hit) in one table actor's base namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tableDumpDB == "" || tableDumpActorType == "" || tableDumpID == "" {
			return fmt.Errorf("--db, --actor-type, and --id are required")
		}

		persist, err := sqlitekv.Open(tableDumpDB)
		if err != nil {
			return fmt.Errorf("opening %s: %w", tableDumpDB, err)
		}
		defer persist.Close()

		env := config.LoadEnvironment()
		shardCount := env.TableShardCount
		if shardCount <= 0 {
			shardCount = 8
		}

		id := strings.Split(tableDumpID, ",")
		store := tablestore.New(tableDumpActorType, id, persist, shardCount)

		var indexKeys []string
		if tableDumpIndex != "" {
			if tableDumpIndexKeys == "" {
				return fmt.Errorf("--index requires --index-keys")
			}
			indexKeys = strings.Split(tableDumpIndexKeys, ",")
		}

		res, err := store.Search(cmd.Context(), tablestore.SearchInput{
			IndexName: tableDumpIndex,
			IndexKeys: indexKeys,
		})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		out, err := json.MarshalIndent(res.Rows, "", "  ")
		if err != nil {
			return fmt.Errorf("rendering JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	tableDumpCmd.Flags().StringVar(&tableDumpDB, "db", "", "path to the sqlitekv database file")
	tableDumpCmd.Flags().StringVar(&tableDumpActorType, "actor-type", "", "table actor type name")
	tableDumpCmd.Flags().StringVar(&tableDumpID, "id", "", "comma-separated actor id segments")
	tableDumpCmd.Flags().StringVar(&tableDumpIndex, "index", "", "secondary index name (omit to dump the base namespace)")
	tableDumpCmd.Flags().StringVar(&tableDumpIndexKeys, "index-keys", "", "comma-separated key fields declared by --index")
	tableCmd.AddCommand(tableDumpCmd)
}
