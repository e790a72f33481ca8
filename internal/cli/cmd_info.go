package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/onnxrun/internal/envconfig"
	"github.com/born-ml/onnxrun/internal/onnx"
	"github.com/born-ml/onnxrun/internal/onnx/operators"
	"github.com/born-ml/onnxrun/internal/version"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info MODEL",
		Short: "Show model information",
		Long:  "Show graph inputs, outputs, opsets and operators of a model. MODEL is a file path or s3://bucket/key.",
		Args:  cobra.ExactArgs(1),
		RunE:  InfoHandler,
	}
	cmd.Flags().Bool("json", false, "Print as JSON")
	cmd.Flags().Bool("contexts", false, "List the arena contexts a run enters")
	cmd.Flags().Bool("strict", false, "Reject graphs that read undefined values")
	return cmd
}

// InfoHandler loads MODEL and describes it.
func InfoHandler(cmd *cobra.Command, args []string) error {
	model, err := onnx.LoadContext(cmd.Context(), args[0], loadOptions(cmd))
	if err != nil {
		return err
	}
	defer model.Close()

	info := model.Info()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "  Model")
	rows := [][]string{
		{"graph", info.GraphName},
		{"producer", strings.TrimSpace(info.ProducerName + " " + info.ProducerVersion)},
		{"ir version", strconv.FormatInt(info.IRVersion, 10)},
	}
	for _, domain := range slices.Sorted(maps.Keys(info.Opsets)) {
		rows = append(rows, []string{"opset " + domain, strconv.FormatInt(info.Opsets[domain], 10)})
	}
	rows = append(rows,
		[]string{"nodes", strconv.Itoa(info.NodeCount)},
		[]string{"initializers", strconv.Itoa(info.WeightCount)},
		[]string{"operators", strings.Join(info.OpTypes, ", ")},
	)
	writeTable(out, nil, rows)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "  Inputs")
	var inputs [][]string
	for _, name := range model.InputNames() {
		dtype := "-"
		if dt, ok := model.InputType(name); ok {
			dtype = dt.String()
		}
		inputs = append(inputs, []string{name, dtype})
	}
	writeTable(out, nil, inputs)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "  Outputs")
	var outputs [][]string
	for _, name := range model.OutputNames() {
		outputs = append(outputs, []string{name})
	}
	writeTable(out, nil, outputs)

	if showContexts, _ := cmd.Flags().GetBool("contexts"); showContexts {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Contexts")
		var contexts [][]string
		for _, c := range model.Contexts() {
			contexts = append(contexts, []string{c})
		}
		writeTable(out, nil, contexts)
	}
	return nil
}

func newOpsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List supported operators",
		Args:  cobra.NoArgs,
		RunE:  OpsHandler,
	}
	cmd.Flags().Bool("remote", false, "List the operators of the server at ONNXRUN_HOST")
	return cmd
}

// OpsHandler prints the operator registry with opset ranges.
func OpsHandler(cmd *cobra.Command, _ []string) error {
	var rows [][]string
	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		resp, err := clientFromEnvironment().Ops(cmd.Context())
		if err != nil {
			return err
		}
		for _, op := range resp.Ops {
			rows = append(rows, []string{op.Name, op.Domain, strings.Join(op.Versions, ", ")})
		}
	} else {
		for _, d := range operators.NewRegistry().Descriptors() {
			var versions []string
			for _, v := range d.Versions {
				versions = append(versions, v.Info.Version.String())
			}
			rows = append(rows, []string{d.Name, d.Domain, strings.Join(versions, ", ")})
		}
	}

	writeTable(cmd.OutOrStdout(), []string{"NAME", "DOMAIN", "OPSETS"}, rows)
	return nil
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show environment configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vars := envconfig.AsMap()
			var rows [][]string
			for _, name := range slices.Sorted(maps.Keys(vars)) {
				rows = append(rows, []string{name, fmt.Sprintf("%v", vars[name].Value), vars[name].Description})
			}
			writeTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"}, rows)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run:   versionHandler,
	}
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "onnxrun version is %s\n", version.Version)
}

func writeTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	if header != nil {
		table.SetHeader(header)
	}
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
}
