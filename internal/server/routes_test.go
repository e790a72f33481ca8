package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxrun/internal/api"
	"github.com/born-ml/onnxrun/internal/logutil"
	"github.com/born-ml/onnxrun/internal/onnx"
	"github.com/born-ml/onnxrun/internal/onnx/operators"
	"github.com/born-ml/onnxrun/internal/tensor"
	"github.com/born-ml/onnxrun/internal/version"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func floatValue(name string, dims ...int64) onnx.ValueInfoProto {
	shape := &onnx.TensorShapeProto{}
	for _, d := range dims {
		shape.Dims = append(shape.Dims, onnx.DimensionProto{DimValue: d})
	}
	return onnx.ValueInfoProto{Name: name, Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{
		ElemType: onnx.TensorProtoFloat,
		Shape:    shape,
	}}}
}

// scaleModel computes y = x * 2 and z = -x; "select" picks between them.
func scaleModel() *onnx.ModelProto {
	branch := func(op string, inputs ...string) *onnx.GraphProto {
		return &onnx.GraphProto{
			Outputs: []onnx.ValueInfoProto{{Name: "r"}},
			Nodes:   []onnx.NodeProto{{Name: op, OpType: op, Inputs: inputs, Outputs: []string{"r"}}},
		}
	}
	return &onnx.ModelProto{
		IRVersion:    8,
		ProducerName: "onnxrun-test",
		OpsetImport:  []onnx.OperatorSetID{{Version: 13}},
		Graph: &onnx.GraphProto{
			Name:    "scale",
			Inputs:  []onnx.ValueInfoProto{floatValue("x", 3), {Name: "flag", Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: onnx.TensorProtoBool}}}},
			Outputs: []onnx.ValueInfoProto{floatValue("y", 3), floatValue("z", 3)},
			Nodes: []onnx.NodeProto{
				{Name: "double", OpType: "Add", Inputs: []string{"x", "x"}, Outputs: []string{"y"}},
				{Name: "select", OpType: "If", Inputs: []string{"flag"}, Outputs: []string{"z"}, Attributes: []onnx.AttributeProto{
					{Name: operators.ThenBranch, Type: onnx.AttributeProtoGraph, G: branch("Identity", "x")},
					{Name: operators.ElseBranch, Type: onnx.AttributeProtoGraph, G: branch("Neg", "x")},
				}},
			},
		},
	}
}

func divModel() *onnx.ModelProto {
	return &onnx.ModelProto{
		IRVersion:   8,
		OpsetImport: []onnx.OperatorSetID{{Version: 14}},
		Graph: &onnx.GraphProto{
			Inputs: []onnx.ValueInfoProto{
				{Name: "a", Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: onnx.TensorProtoInt64}}},
				{Name: "b", Type: &onnx.TypeProto{TensorType: &onnx.TensorTypeProto{ElemType: onnx.TensorProtoInt64}}},
			},
			Outputs: []onnx.ValueInfoProto{{Name: "q"}},
			Nodes:   []onnx.NodeProto{{Name: "div", OpType: "Div", Inputs: []string{"a", "b"}, Outputs: []string{"q"}}},
		},
	}
}

func newTestServer(t *testing.T, proto *onnx.ModelProto) (*Server, http.Handler) {
	t.Helper()
	opts := onnx.DefaultLoadOptions()
	opts.Logger = logutil.Discard()
	opts.MaxSessions = 2
	model, err := onnx.LoadFromProto(proto, opts)
	require.NoError(t, err)
	t.Cleanup(model.Close)

	s := New(model, logutil.Discard())
	return s, s.Routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func floats(t *testing.T, v api.Tensor) []float64 {
	t.Helper()
	var out []float64
	require.NoError(t, json.Unmarshal(v.Data, &out))
	return out
}

func runRequest(x []float64, flag bool) api.RunRequest {
	xs, _ := json.Marshal(x)
	fs, _ := json.Marshal([]bool{flag})
	return api.RunRequest{Inputs: map[string]api.Tensor{
		"x":    {DType: tensor.Float32, Shape: []int{len(x)}, Data: xs},
		"flag": {DType: tensor.Bool, Shape: []int{}, Data: fs},
	}}
}

func TestRunHandler(t *testing.T) {
	_, h := newTestServer(t, scaleModel())

	for _, tt := range []struct {
		flag bool
		z    []float64
	}{
		{true, []float64{1, -2, 3}},
		{false, []float64{-1, 2, -3}},
	} {
		w := do(t, h, http.MethodPost, "/api/run", runRequest([]float64{1, -2, 3}, tt.flag))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp api.RunResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Session)
		require.Equal(t, 2, resp.Outputs.Len())

		assert.Equal(t, "y", resp.Outputs.Oldest().Key, "outputs keep declared order")
		y, _ := resp.Outputs.Get("y")
		assert.Equal(t, []float64{2, -4, 6}, floats(t, y))
		assert.Equal(t, []int{3}, y.Shape)
		z, _ := resp.Outputs.Get("z")
		assert.Equal(t, tt.z, floats(t, z))
	}
}

func TestRunHandlerBadRequests(t *testing.T) {
	_, h := newTestServer(t, scaleModel())

	cases := map[string]struct {
		body   any
		status int
		msg    string
	}{
		"missing body": {nil, http.StatusBadRequest, "missing request body"},
		"missing input": {
			api.RunRequest{Inputs: map[string]api.Tensor{"x": {DType: tensor.Float32, Shape: []int{1}, Data: json.RawMessage(`[1]`)}}},
			http.StatusBadRequest, "flag",
		},
		"unknown input": {
			api.RunRequest{Inputs: map[string]api.Tensor{"w": {DType: tensor.Float32, Shape: []int{1}, Data: json.RawMessage(`[1]`)}}},
			http.StatusBadRequest, "w",
		},
		"shape mismatch": {
			api.RunRequest{Inputs: map[string]api.Tensor{"x": {DType: tensor.Float32, Shape: []int{2}, Data: json.RawMessage(`[1]`)}}},
			http.StatusBadRequest, "requires 2 elements",
		},
		"wrong type": {
			api.RunRequest{Inputs: map[string]api.Tensor{
				"x":    {DType: tensor.Int64, Shape: []int{1}, Data: json.RawMessage(`[1]`)},
				"flag": {DType: tensor.Bool, Shape: []int{}, Data: json.RawMessage(`[true]`)},
			}},
			http.StatusBadRequest, "expected float32",
		},
		"bad json": {"not a request", http.StatusBadRequest, ""},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/run", tt.body)
			assert.Equal(t, tt.status, w.Code)
			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Contains(t, resp["error"], tt.msg)
		})
	}
}

func TestRunHandlerNodeFailure(t *testing.T) {
	_, h := newTestServer(t, divModel())

	body := api.RunRequest{Inputs: map[string]api.Tensor{
		"a": {DType: tensor.Int64, Shape: []int{1}, Data: json.RawMessage(`[4]`)},
		"b": {DType: tensor.Int64, Shape: []int{1}, Data: json.RawMessage(`[0]`)},
	}}
	w := do(t, h, http.MethodPost, "/api/run", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "div", resp["node"])
	assert.Equal(t, "Div", resp["op"])
	assert.Equal(t, "main.div", resp["context"])

	body.Inputs["b"] = api.Tensor{DType: tensor.Int64, Shape: []int{1}, Data: json.RawMessage(`[2]`)}
	w = do(t, h, http.MethodPost, "/api/run", body)
	require.Equal(t, http.StatusOK, w.Code, "a failed run leaves the session usable")
}

func TestInfoHandler(t *testing.T) {
	_, h := newTestServer(t, scaleModel())

	w := do(t, h, http.MethodGet, "/api/info", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.InfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"x", "flag"}, resp.InputNames)
	assert.Equal(t, []string{"y", "z"}, resp.OutputNames)
	assert.Equal(t, int64(13), resp.OpsetVersion)
	assert.Equal(t, "scale", resp.GraphName)
	assert.Equal(t, []string{"Add", "Identity", "If", "Neg"}, resp.OpTypes)
	assert.Equal(t, tensor.Bool, resp.InputTypes["flag"])
	assert.Equal(t, 2, resp.Sessions)
	assert.Contains(t, resp.Contexts, "scale.select.else_branch.Neg")
}

func TestOpsHandler(t *testing.T) {
	_, h := newTestServer(t, scaleModel())

	w := do(t, h, http.MethodGet, "/api/ops", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.OpsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	var loop *api.OpInfo
	for i := range resp.Ops {
		if resp.Ops[i].Name == "Loop" {
			loop = &resp.Ops[i]
		}
	}
	require.NotNil(t, loop)
	assert.Equal(t, operators.DefaultDomain, loop.Domain)
	assert.Equal(t, []string{"1-10", "11-12", "13+"}, loop.Versions)
}

func TestVersionAndHealth(t *testing.T) {
	_, h := newTestServer(t, scaleModel())

	w := do(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "onnxrun is running", w.Body.String())

	w = do(t, h, http.MethodGet, "/api/version", nil)
	var resp api.VersionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, version.Version, resp.Version)
}

func TestClientAgainstServer(t *testing.T) {
	_, h := newTestServer(t, scaleModel())
	ts := httptest.NewServer(h)
	defer ts.Close()

	base, err := url.Parse(ts.URL)
	require.NoError(t, err)
	client := api.NewClient(base, ts.Client())
	ctx := context.Background()

	info, err := client.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "scale", info.GraphName)

	req := runRequest([]float64{1, 2, 3}, false)
	resp, err := client.Run(ctx, &req)
	require.NoError(t, err)
	z, ok := resp.Outputs.Get("z")
	require.True(t, ok)
	assert.Equal(t, []float64{-1, -2, -3}, floats(t, z))

	_, err = client.Run(ctx, &api.RunRequest{})
	var serr api.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
	assert.Contains(t, serr.ErrorMessage, "missing input")

	v, err := client.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.Version, v)
}

func TestServeShutsDown(t *testing.T) {
	s, _ := newTestServer(t, scaleModel())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
