package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arborfield/actorcore/internal/placement"
)

var placementCmd = &cobra.Command{
	Use:   "placement",
	Short: "Manage an on-disk placement mapping file",
}

// fileMapping mirrors internal/placement's own on-disk field names so a
// file this command writes loads identically through placement.FileLoader.
type fileMapping struct {
	Type    string `yaml:"type"`
	Node    string `yaml:"node"`
	Version string `yaml:"version"`
	BindIdx *int   `yaml:"bindIdx,omitempty"`
}

type fileDocument struct {
	Mappings []fileMapping `yaml:"mappings"`
}

func readMappingFile(path string) (fileDocument, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fileDocument{}, nil
	}
	if err != nil {
		return fileDocument{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fileDocument{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

func writeMappingFile(path string, doc fileDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("rendering YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

var (
	placementFile    string
	placementType    string
	placementNode    string
	placementVersion string
	placementBindIdx string
	placementID      string
)

var placementMapCmd = &cobra.Command{
	Use:   "map",
	Short: "Add (or replace) a mapping entry in a placement file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if placementFile == "" || placementType == "" || placementNode == "" {
			return fmt.Errorf("--file, --type, and --node are required")
		}

		doc, err := readMappingFile(placementFile)
		if err != nil {
			return err
		}

		entry := fileMapping{Type: placementType, Node: placementNode, Version: placementVersion}
		if placementBindIdx != "" {
			if idx := placement.ParseBindIdx(placementBindIdx); idx != nil {
				entry.BindIdx = idx
			} else {
				return fmt.Errorf("--bind-idx %q is not a valid integer", placementBindIdx)
			}
		}
		if entry.Version == "" {
			entry.Version = "1"
		}

		replaced := false
		for i, m := range doc.Mappings {
			if m.Type == entry.Type && m.Node == entry.Node && m.Version == entry.Version {
				doc.Mappings[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			doc.Mappings = append(doc.Mappings, entry)
		}

		return writeMappingFile(placementFile, doc)
	},
}

var placementUnmapCmd = &cobra.Command{
	Use:   "unmap",
	Short: "Remove every mapping entry for (type, node) from a placement file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if placementFile == "" || placementType == "" || placementNode == "" {
			return fmt.Errorf("--file, --type, and --node are required")
		}

		doc, err := readMappingFile(placementFile)
		if err != nil {
			return err
		}

		kept := doc.Mappings[:0:0]
		for _, m := range doc.Mappings {
			if m.Type == placementType && m.Node == placementNode {
				continue
			}
			kept = append(kept, m)
		}
		doc.Mappings = kept

		return writeMappingFile(placementFile, doc)
	},
}

var placementResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Load a placement file and resolve a type/id to its candidate list",
	RunE: func(cmd *cobra.Command, args []string) error {
		if placementFile == "" || placementType == "" {
			return fmt.Errorf("--file and --type are required")
		}

		reg := placement.New()
		loader, err := placement.NewFileLoader(placementFile, reg)
		if err != nil {
			return fmt.Errorf("loading %s: %w", placementFile, err)
		}
		defer loader.Close()

		var id []string
		if placementID != "" {
			id = strings.Split(placementID, ",")
		}

		candidates := reg.Resolve(placementType, id)
		if candidates == nil {
			candidates = []string{}
		}
		out, err := json.MarshalIndent(candidates, "", "  ")
		if err != nil {
			return fmt.Errorf("rendering JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var placementWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a placement file and print the registry's change sequence number on every change",
	RunE: func(cmd *cobra.Command, args []string) error {
		if placementFile == "" {
			return fmt.Errorf("--file is required")
		}

		reg := placement.New()
		loader, err := placement.NewFileLoader(placementFile, reg)
		if err != nil {
			return fmt.Errorf("loading %s: %w", placementFile, err)
		}
		defer loader.Close()

		ctx := cmd.Context()
		seq := reg.Seq()
		printSeq(cmd, reg, seq)
		for {
			next, err := reg.WaitForChange(ctx, seq)
			if err != nil {
				return nil // context cancelled: normal watch termination
			}
			seq = next
			printSeq(cmd, reg, seq)
		}
	},
}

func printSeq(cmd *cobra.Command, reg *placement.Registry, seq uint64) {
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] seq=%d\n", time.Now().Format(time.RFC3339), seq)
}

func init() {
	placementCmd.PersistentFlags().StringVar(&placementFile, "file", "", "path to the YAML placement mapping file")
	placementCmd.PersistentFlags().StringVar(&placementType, "type", "", "actor type name")
	placementCmd.PersistentFlags().StringVar(&placementNode, "node", "", "hosting node identifier")
	placementMapCmd.Flags().StringVar(&placementVersion, "version", "", "mapping version (default 1)")
	placementMapCmd.Flags().StringVar(&placementBindIdx, "bind-idx", "", "id segment index this mapping binds to")
	placementResolveCmd.Flags().StringVar(&placementID, "id", "", "comma-separated actor id segments")
	placementCmd.AddCommand(placementMapCmd, placementUnmapCmd, placementResolveCmd, placementWatchCmd)
}
