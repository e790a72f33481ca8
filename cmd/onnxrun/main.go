// Package main provides the onnxrun CLI.
package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxrun/internal/cli"
)

func main() {
	cobra.CheckErr(cli.NewCLI().ExecuteContext(context.Background()))
}
