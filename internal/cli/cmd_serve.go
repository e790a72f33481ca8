package cli

import (
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxrun/internal/envconfig"
	"github.com/born-ml/onnxrun/internal/onnx"
	"github.com/born-ml/onnxrun/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve MODEL",
		Aliases: []string{"start"},
		Short:   "Serve a model over HTTP",
		Args:    cobra.ExactArgs(1),
		RunE:    ServeHandler,
	}
	cmd.Flags().Bool("strict", false, "Reject graphs that read undefined values")
	return cmd
}

// ServeHandler loads MODEL and serves it at ONNXRUN_HOST until interrupted.
func ServeHandler(cmd *cobra.Command, args []string) error {
	slog.Info("server config", "env", envconfig.Values())

	model, err := onnx.LoadContext(cmd.Context(), args[0], loadOptions(cmd))
	if err != nil {
		return err
	}
	defer model.Close()

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(model, slog.Default()).Serve(ctx, ln)
}
