// Package cli implements the onnxrun command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxrun/internal/envconfig"
	"github.com/born-ml/onnxrun/internal/logutil"
	"github.com/born-ml/onnxrun/internal/onnx"
)

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "onnxrun",
		Short:         "Run ONNX graphs with loops and branches",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logutil.New(cmd.ErrOrStderr(), envconfig.LogLevel(), envconfig.LogFormat()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				versionHandler(cmd, args)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	infoCmd := newInfoCmd()
	opsCmd := newOpsCmd()
	runCmd := newRunCmd()
	serveCmd := newServeCmd()
	packCmd := newPackCmd()

	envVars := envconfig.AsMap()
	modelEnvs := []envconfig.EnvVar{
		envVars["ONNXRUN_STRICT"],
		envVars["ONNXRUN_S3_ENDPOINT"],
		envVars["ONNXRUN_S3_ACCESS_KEY"],
		envVars["ONNXRUN_S3_SECRET_KEY"],
		envVars["ONNXRUN_S3_INSECURE"],
	}
	for _, cmd := range []*cobra.Command{infoCmd, runCmd, packCmd} {
		appendEnvDocs(cmd, append(modelEnvs, envVars["ONNXRUN_DEBUG"]))
	}
	appendEnvDocs(serveCmd, append(modelEnvs,
		envVars["ONNXRUN_HOST"],
		envVars["ONNXRUN_MAX_SESSIONS"],
		envVars["ONNXRUN_DEBUG"],
		envVars["ONNXRUN_LOG_FORMAT"],
	))

	rootCmd.AddCommand(
		infoCmd,
		opsCmd,
		runCmd,
		serveCmd,
		packCmd,
		newEnvCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// loadOptions builds model load options from the environment and the
// command's --strict flag.
func loadOptions(cmd *cobra.Command) onnx.LoadOptions {
	opts := onnx.DefaultLoadOptions()
	opts.Logger = slog.Default()
	opts.StrictMode = envconfig.Strict()
	if f := cmd.Flags().Lookup("strict"); f != nil && f.Changed {
		opts.StrictMode, _ = cmd.Flags().GetBool("strict")
	}
	if n := envconfig.MaxSessions(); n > 0 {
		opts.MaxSessions = int(n)
	}
	opts.S3 = onnx.S3Config{
		Endpoint:  envconfig.S3Endpoint(),
		AccessKey: envconfig.S3AccessKey(),
		SecretKey: envconfig.S3SecretKey(),
		Region:    envconfig.S3Region(),
		Secure:    !envconfig.S3Insecure(),
	}
	return opts
}
