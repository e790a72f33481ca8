package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnxrun/internal/api"
	"github.com/born-ml/onnxrun/internal/memory"
	"github.com/born-ml/onnxrun/internal/onnx"
)

var clientFromEnvironment = api.ClientFromEnvironment

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [MODEL]",
		Short: "Run a model once",
		Long: `Run a model on the inputs in a JSON file of the form
{"inputs": {"x": {"dtype": "float32", "shape": [2], "data": [1, 2]}}}
and print the outputs as JSON. With --remote the request goes to the server at
ONNXRUN_HOST and MODEL is omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: RunHandler,
	}
	cmd.Flags().StringP("inputs", "i", "-", "Input JSON file, - for stdin")
	cmd.Flags().StringP("output", "o", "", "Write outputs to a file instead of stdout")
	cmd.Flags().Int("repeat", 1, "Run the inputs this many times on one session")
	cmd.Flags().Bool("stats", false, "Print arena statistics after the last run")
	cmd.Flags().Bool("remote", false, "Send the request to the server at ONNXRUN_HOST")
	cmd.Flags().Bool("strict", false, "Reject graphs that read undefined values")
	return cmd
}

// RunHandler runs a model on inputs read from a JSON file.
func RunHandler(cmd *cobra.Command, args []string) error {
	remote, _ := cmd.Flags().GetBool("remote")
	switch {
	case remote && len(args) > 0:
		return errors.New("MODEL cannot be combined with --remote")
	case !remote && len(args) == 0:
		return errors.New("MODEL is required")
	}

	path, _ := cmd.Flags().GetString("inputs")
	req, err := readRunRequest(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	var resp *api.RunResponse
	if remote {
		resp, err = clientFromEnvironment().Run(cmd.Context(), req)
	} else {
		resp, err = runLocal(cmd, args[0], req)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if name, _ := cmd.Flags().GetString("output"); name != "" {
		f, err := os.Create(name)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func readRunRequest(stdin io.Reader, path string) (*api.RunRequest, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var req api.RunRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("reading inputs: %w", err)
	}
	return &req, nil
}

func runLocal(cmd *cobra.Command, location string, req *api.RunRequest) (*api.RunResponse, error) {
	inputs, err := req.Decode()
	if err != nil {
		return nil, err
	}

	opts := loadOptions(cmd)
	opts.MaxSessions = 1
	model, err := onnx.LoadContext(cmd.Context(), location, opts)
	if err != nil {
		return nil, err
	}
	defer model.Close()

	sess := model.NewSession()
	defer sess.Close()

	repeat, _ := cmd.Flags().GetInt("repeat")
	if repeat < 1 {
		return nil, fmt.Errorf("--repeat must be positive, got %d", repeat)
	}

	var out *onnx.Outputs
	start := time.Now()
	for i := 0; i < repeat; i++ {
		if out, err = sess.Run(cmd.Context(), inputs); err != nil {
			return nil, err
		}
	}
	elapsed := time.Since(start) / time.Duration(repeat)

	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		writeArenaStats(cmd.ErrOrStderr(), sess.Arena())
	}

	outputs, err := api.EncodeOutputs(out)
	if err != nil {
		return nil, err
	}
	return &api.RunResponse{Outputs: outputs, Session: sess.ID().String(), Duration: elapsed}, nil
}

func writeArenaStats(w io.Writer, arena *memory.Arena) {
	s := arena.Stats()
	writeTable(w, []string{"ALLOCATED", "REUSED", "RELEASED", "DETACHED", "REBALANCES"}, [][]string{{
		strconv.Itoa(s.Allocated),
		strconv.Itoa(s.Reused),
		strconv.Itoa(s.Released),
		strconv.Itoa(s.Detached),
		strconv.Itoa(s.Rebalances),
	}})

	var rows [][]string
	for _, typ := range memory.Types() {
		for _, class := range arena.SizeClasses(typ) {
			rows = append(rows, []string{typ.String(), strconv.Itoa(class.Size), strconv.Itoa(class.Usage)})
		}
	}
	if len(rows) > 0 {
		fmt.Fprintln(w)
		writeTable(w, []string{"TYPE", "SIZE", "USAGE"}, rows)
	}
}
