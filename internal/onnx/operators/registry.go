package operators

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/born-ml/onnxrun/internal/tensor"
)

// OpHandler processes an ONNX node and returns output tensors.
type OpHandler func(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)

// Operator is a node bound to one concrete operator version.
type Operator interface {
	Info() *Info
	Node() *Node
	// Apply runs the operator. Omitted optional inputs are nil.
	Apply(ctx *Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// Factory constructs an operator for a node that already passed info.Validate.
type Factory func(info *Info, node *Node) (Operator, error)

// Version pairs a declared contract with its implementation.
type Version struct {
	Info *Info
	New  Factory
}

// Descriptor lists every implemented version of one operator.
type Descriptor struct {
	Name     string
	Domain   string
	Versions []Version
}

// Registry maps ONNX operator types to versioned implementations.
type Registry struct {
	ops map[string]*Descriptor
}

// NewRegistry creates a new operator registry with all supported operators.
func NewRegistry() *Registry {
	r := &Registry{
		ops: make(map[string]*Descriptor),
	}

	// Register all operators
	r.registerMathOps()
	r.registerActivations()
	r.registerLogicalOps()
	r.registerShapeOps()
	r.registerUtilityOps()
	r.registerControlFlow()

	return r
}

func registryKey(domain, name string) string {
	return NormalizeDomain(domain) + ":" + name
}

// Register adds or replaces an operator descriptor.
func (r *Registry) Register(desc Descriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("register: operator name is empty")
	}
	if len(desc.Versions) == 0 {
		return fmt.Errorf("register %s: no versions", desc.Name)
	}
	desc.Domain = NormalizeDomain(desc.Domain)
	desc.Versions = slices.Clone(desc.Versions)
	for i, v := range desc.Versions {
		if v.Info == nil || v.New == nil {
			return fmt.Errorf("register %s: version %d lacks info or factory", desc.Name, i)
		}
		if v.Info.Name == "" {
			v.Info.Name = desc.Name
		}
		if v.Info.Domain == "" {
			v.Info.Domain = desc.Domain
		}
	}
	slices.SortStableFunc(desc.Versions, func(a, b Version) int {
		return cmp.Compare(a.Info.Version.Since, b.Info.Version.Since)
	})
	r.ops[registryKey(desc.Domain, desc.Name)] = &desc
	return nil
}

// RegisterFunc adds a custom operator handler in the default domain.
// The handler accepts any opset and any attributes; it validates its own inputs.
func (r *Registry) RegisterFunc(opType string, handler OpHandler) {
	info := &Info{
		Name:           opType,
		Version:        VersionInfo{Since: 1},
		Inputs:         []IOInfo{{Index: 0, Name: "inputs", Variadic: true}},
		Outputs:        []IOInfo{{Index: 0, Name: "outputs", Variadic: true}},
		OpenAttributes: true,
	}
	_ = r.Register(Descriptor{Name: opType, Versions: []Version{funcVersion(info, handler)}})
}

// Get returns the descriptor for an operator type.
func (r *Registry) Get(domain, opType string) (*Descriptor, bool) {
	d, ok := r.ops[registryKey(domain, opType)]
	return d, ok
}

// Lookup selects the version of desc serving opset. Opset 0 selects the
// lowest since-version. Among overlapping ranges the newest wins.
func (d *Descriptor) Lookup(opset int) (Version, bool) {
	if opset == 0 {
		return d.Versions[0], true
	}
	for i := len(d.Versions) - 1; i >= 0; i-- {
		if d.Versions[i].Info.Version.Contains(opset) {
			return d.Versions[i], true
		}
	}
	return Version{}, false
}

// Resolve maps node to a validated operator for the given opset.
func (r *Registry) Resolve(node *Node, opset int) (Operator, error) {
	d, ok := r.Get(node.Domain, node.OpType)
	if !ok {
		return nil, &ResolutionError{Domain: node.Domain, OpType: node.OpType, Version: opset, Err: ErrUnknownOperator}
	}
	v, ok := d.Lookup(opset)
	if !ok {
		return nil, &ResolutionError{Domain: node.Domain, OpType: node.OpType, Version: opset, Err: ErrUnsupportedVersion}
	}
	if err := v.Info.Validate(node); err != nil {
		return nil, err
	}
	return v.New(v.Info, node)
}

// SupportedOps returns a sorted list of all supported operator types.
func (r *Registry) SupportedOps() []string {
	ops := make([]string, 0, len(r.ops))
	for _, d := range r.ops {
		name := d.Name
		if d.Domain != DefaultDomain {
			name = d.Domain + "." + name
		}
		ops = append(ops, name)
	}
	slices.Sort(ops)
	return ops
}

// Descriptors returns every descriptor ordered by domain and name.
func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.ops))
	for _, d := range r.ops {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *Descriptor) int {
		return cmp.Or(cmp.Compare(a.Domain, b.Domain), cmp.Compare(a.Name, b.Name))
	})
	return out
}

// define registers a built-in operator with one version per since value.
func (r *Registry) define(name string, build func(v VersionInfo) Version, since ...int) {
	desc := Descriptor{Name: name}
	for _, v := range versions(since...) {
		desc.Versions = append(desc.Versions, build(v))
	}
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

// funcOperator adapts an OpHandler to the Operator interface.
type funcOperator struct {
	info    *Info
	node    *Node
	handler OpHandler
}

func funcVersion(info *Info, h OpHandler) Version {
	return Version{Info: info, New: func(info *Info, node *Node) (Operator, error) {
		return &funcOperator{info: info, node: node, handler: h}, nil
	}}
}

func (o *funcOperator) Info() *Info { return o.info }
func (o *funcOperator) Node() *Node { return o.node }

func (o *funcOperator) Apply(ctx *Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return o.handler(ctx, o.node, inputs)
}
