package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxrun/internal/api"
	"github.com/born-ml/onnxrun/internal/logutil"
	"github.com/born-ml/onnxrun/internal/onnx"
	"github.com/born-ml/onnxrun/internal/server"
	"github.com/born-ml/onnxrun/internal/version"
)

// countModel counts x up to the trip count M, scanning every step.
func countModel() *onnx.ModelProto {
	scalar := func(name string, elem int32) onnx.ValueInfoProto {
		return onnx.ValueInfoProto{Name: name, Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: elem}}}
	}
	body := &onnx.GraphProto{
		Inputs:  []onnx.ValueInfoProto{scalar("i", onnx.TensorProtoInt64), scalar("c", onnx.TensorProtoBool), scalar("acc", onnx.TensorProtoFloat)},
		Outputs: []onnx.ValueInfoProto{scalar("c_out", onnx.TensorProtoBool), scalar("acc_out", onnx.TensorProtoFloat), scalar("scan", onnx.TensorProtoFloat)},
		Nodes: []onnx.NodeProto{
			{Name: "keep", OpType: "Identity", Inputs: []string{"c"}, Outputs: []string{"c_out"}},
			{Name: "step", OpType: "Add", Inputs: []string{"acc", "one"}, Outputs: []string{"acc_out"}},
			{Name: "emit", OpType: "Identity", Inputs: []string{"acc_out"}, Outputs: []string{"scan"}},
		},
	}
	return &onnx.ModelProto{
		IRVersion:    8,
		ProducerName: "onnxrun-test",
		OpsetImport:  []onnx.OperatorSetID{{Version: 13}},
		Graph: &onnx.GraphProto{
			Name:         "count",
			Inputs:       []onnx.ValueInfoProto{scalar("M", onnx.TensorProtoInt64), scalar("x", onnx.TensorProtoFloat)},
			Outputs:      []onnx.ValueInfoProto{scalar("total", onnx.TensorProtoFloat), scalar("steps", onnx.TensorProtoFloat)},
			Initializers: []onnx.TensorProto{{Name: "one", DataType: onnx.TensorProtoFloat, FloatData: []float32{1}}},
			Nodes: []onnx.NodeProto{{
				Name: "loop", OpType: "Loop", Inputs: []string{"M", "", "x"}, Outputs: []string{"total", "steps"},
				Attributes: []onnx.AttributeProto{{Name: "body", Type: onnx.AttributeProtoGraph, G: body}},
			}},
		},
	}
}

func writeModel(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	_, err := onnx.WriteModel(path, countModel())
	require.NoError(t, err)
	return path
}

func writeInputs(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inputs.json")
	body := `{"inputs": {
		"M": {"dtype": "int64", "shape": [], "data": [3]},
		"x": {"dtype": "float32", "shape": [], "data": [0.5]}
	}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeOutput(t *testing.T, raw string, name string) []float64 {
	t.Helper()
	var resp api.RunResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp))
	v, ok := resp.Outputs.Get(name)
	require.True(t, ok, "output %q", name)
	var out []float64
	require.NoError(t, json.Unmarshal(v.Data, &out))
	return out
}

func TestInfoCommand(t *testing.T) {
	path := writeModel(t, "count.onnx.gz")

	out, _, err := execute(t, "info", path, "--contexts")
	require.NoError(t, err)
	assert.Contains(t, out, "count")
	assert.Contains(t, out, "onnxrun-test")
	assert.Contains(t, out, "Add, Identity, Loop")
	assert.Contains(t, out, "float32")
	assert.Contains(t, out, "count.loop.body.step")

	out, _, err = execute(t, "info", path, "--json")
	require.NoError(t, err)
	var info onnx.ModelInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, []string{"M", "x"}, info.InputNames)
	assert.Equal(t, int64(13), info.OpsetVersion)
}

func TestInfoMissingModel(t *testing.T) {
	_, _, err := execute(t, "info", filepath.Join(t.TempDir(), "missing.onnx"))
	assert.ErrorIs(t, err, onnx.ErrNotFound)
}

func TestOpsCommand(t *testing.T) {
	out, _, err := execute(t, "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Loop ") {
			assert.Contains(t, line, "1-10, 11-12, 13+")
			return
		}
	}
	t.Fatalf("Loop missing from:\n%s", out)
}

func TestRunCommand(t *testing.T) {
	model := writeModel(t, "count.onnx.zst")
	inputs := writeInputs(t)

	out, stderr, err := execute(t, "run", model, "-i", inputs, "--repeat", "3", "--stats")
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5}, decodeOutput(t, out, "total"))
	assert.Equal(t, []float64{1.5, 2.5, 3.5}, decodeOutput(t, out, "steps"))
	assert.Contains(t, stderr, "ALLOCATED")
	assert.Contains(t, stderr, "REUSED")
}

func TestRunCommandStdinAndOutputFile(t *testing.T) {
	model := writeModel(t, "count.onnx")
	raw, err := os.ReadFile(writeInputs(t))
	require.NoError(t, err)
	dest := filepath.Join(t.TempDir(), "out.json")

	cmd := NewCLI()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewReader(raw))
	cmd.SetArgs([]string{"run", model, "-o", dest})
	require.NoError(t, cmd.Execute())
	assert.Empty(t, stdout.String())

	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5}, decodeOutput(t, string(written), "total"))
}

func TestRunCommandArgs(t *testing.T) {
	inputs := writeInputs(t)

	_, _, err := execute(t, "run", "-i", inputs)
	assert.ErrorContains(t, err, "MODEL is required")

	_, _, err = execute(t, "run", "model.onnx", "--remote", "-i", inputs)
	assert.ErrorContains(t, err, "--remote")

	_, _, err = execute(t, "run", writeModel(t, "count.onnx"), "-i", inputs, "--repeat", "0")
	assert.ErrorContains(t, err, "--repeat")
}

func TestRunCommandRemote(t *testing.T) {
	opts := onnx.DefaultLoadOptions()
	opts.Logger = logutil.Discard()
	model, err := onnx.LoadFromProto(countModel(), opts)
	require.NoError(t, err)
	defer model.Close()

	ts := httptest.NewServer(server.New(model, logutil.Discard()).Routes())
	defer ts.Close()
	t.Setenv("ONNXRUN_HOST", ts.URL)

	out, _, err := execute(t, "run", "--remote", "-i", writeInputs(t))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5, 3.5}, decodeOutput(t, out, "steps"))

	out, _, err = execute(t, "ops", "--remote")
	require.NoError(t, err)
	assert.Contains(t, out, "Loop")
}

func TestPackCommand(t *testing.T) {
	src := writeModel(t, "count.onnx")
	dest := filepath.Join(t.TempDir(), "count.onnx.lz4")

	out, _, err := execute(t, "pack", src, dest)
	require.NoError(t, err)
	assert.Contains(t, out, "lz4")

	out, _, err = execute(t, "run", dest, "-i", writeInputs(t))
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5}, decodeOutput(t, out, "total"))
}

func TestStrictFlag(t *testing.T) {
	proto := countModel()
	proto.Graph.Nodes = append(proto.Graph.Nodes, onnx.NodeProto{
		Name: "dangling", OpType: "Identity", Inputs: []string{"nowhere"}, Outputs: []string{"unused"},
	})
	path := filepath.Join(t.TempDir(), "dangling.onnx")
	_, err := onnx.WriteModel(path, proto)
	require.NoError(t, err)

	_, _, err = execute(t, "info", path)
	require.NoError(t, err)

	_, _, err = execute(t, "info", path, "--strict")
	assert.ErrorIs(t, err, onnx.ErrUnboundValue)

	t.Setenv("ONNXRUN_STRICT", "1")
	_, _, err = execute(t, "info", path)
	assert.ErrorIs(t, err, onnx.ErrUnboundValue)
}

func TestEnvAndVersion(t *testing.T) {
	t.Setenv("ONNXRUN_S3_SECRET_KEY", "hunter2")
	out, _, err := execute(t, "env")
	require.NoError(t, err)
	assert.Contains(t, out, "ONNXRUN_HOST")
	assert.NotContains(t, out, "hunter2")

	out, _, err = execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "onnxrun version is "+version.Version+"\n", out)

	out, _, err = execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}
