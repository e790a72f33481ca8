package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxrun/internal/onnx"
)

func newPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack MODEL OUTPUT",
		Short: "Validate a model and write it compressed",
		Long: `Load MODEL, resolve every operator against the registry and write it to
OUTPUT. The codec follows the OUTPUT extension: .gz, .zst or .lz4.`,
		Args: cobra.ExactArgs(2),
		RunE: PackHandler,
	}
	cmd.Flags().Bool("strict", false, "Reject graphs that read undefined values")
	return cmd
}

// PackHandler re-encodes a validated model.
func PackHandler(cmd *cobra.Command, args []string) error {
	model, err := onnx.LoadContext(cmd.Context(), args[0], loadOptions(cmd))
	if err != nil {
		return err
	}
	defer model.Close()

	n, err := onnx.WriteModel(args[1], model.Proto())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, %s)\n", args[1], n, onnx.CompressionFor(args[1]))
	return nil
}
