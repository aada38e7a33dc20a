package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arborfield/actorcore/internal/wire"
)

var wireCmd = &cobra.Command{
	Use:   "wire",
	Short: "Inspect and exercise the wire serialization codec",
}

var wireEnvelopeFlag string

var wireEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a JSON value from stdin into a wire envelope",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("parsing JSON: %w", err)
		}

		env, err := parseEnvelope(wireEnvelopeFlag)
		if err != nil {
			return err
		}

		encoded, err := wire.EncodeEnvelope(v, env, 0)
		if err != nil {
			return fmt.Errorf("encoding: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(encoded)
		return err
	},
}

var wireDecodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a wire envelope from stdin to JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		v, err := wire.Deserialize(raw)
		if err != nil {
			return fmt.Errorf("decoding: %w", err)
		}
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("rendering JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var wireDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Report which envelope a buffer on stdin starts with",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		env := wire.Detect(raw)
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", env, humanize.Bytes(uint64(len(raw))))
		return nil
	},
}

func parseEnvelope(s string) (wire.Envelope, error) {
	switch s {
	case "", "jb":
		return wire.EnvelopeJB, nil
	case "cj":
		return wire.EnvelopeCJ, nil
	case "bson":
		return wire.EnvelopeBSON, nil
	case "mime":
		return wire.EnvelopeMIME, nil
	default:
		return wire.EnvelopeUnknown, fmt.Errorf("unknown envelope %q (want jb, cj, bson, or mime)", s)
	}
}

func init() {
	wireEncodeCmd.Flags().StringVar(&wireEnvelopeFlag, "envelope", "jb", "envelope to encode into: jb, cj, bson, mime")
	wireCmd.AddCommand(wireEncodeCmd, wireDecodeCmd, wireDetectCmd)
}
