package workspace

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/hotsync/internal/ctxlog"
	"github.com/vk/hotsync/internal/fsutil"
	"github.com/vk/hotsync/internal/livegraph"
	"github.com/vk/hotsync/internal/nodetype"
	"github.com/zclconf/go-cty/cty"
)

// Node is one seeded instance.
type Node struct {
	ID         livegraph.InstanceID
	Type       nodetype.TypeID
	Pos        livegraph.Vec2
	Size       livegraph.Vec2
	Widgets    map[string]any
	Properties map[string]any
	// Source names the file and block the node was declared in.
	Source string
}

type hclFile struct {
	Nodes []*hclNode `hcl:"node,block"`
}

type hclNode struct {
	Type       string    `hcl:"type,label"`
	ID         string    `hcl:"id,label"`
	Pos        []float64 `hcl:"pos,optional"`
	Size       []float64 `hcl:"size,optional"`
	Widgets    cty.Value `hcl:"widgets,optional"`
	Properties cty.Value `hcl:"properties,optional"`
}

// Load parses every .hcl file at path. Instance ids must be unique across
// all files.
func Load(ctx context.Context, path string) ([]Node, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading workspace.", "path", path)

	files, err := fsutil.FindFiles(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to find workspace files in %s: %w", path, err)
	}
	if len(files) == 0 {
		logger.Warn("No .hcl workspace files found, starting with an empty graph.", "path", path)
		return nil, nil
	}

	parser := hclparse.NewParser()
	seen := make(map[livegraph.InstanceID]string)
	var nodes []Node
	for _, file := range files {
		parsed, err := loadFile(parser, file)
		if err != nil {
			return nil, err
		}
		for _, n := range parsed {
			if prev, dup := seen[n.ID]; dup {
				return nil, fmt.Errorf("%s: instance id %s already declared at %s", n.Source, n.ID, prev)
			}
			seen[n.ID] = n.Source
			nodes = append(nodes, n)
		}
	}

	logger.Info("Workspace loaded.", "files", len(files), "nodes", len(nodes))
	return nodes, nil
}

func loadFile(parser *hclparse.Parser, path string) ([]Node, error) {
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	nodes := make([]Node, 0, len(parsed.Nodes))
	for _, hn := range parsed.Nodes {
		n, err := hn.toNode(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Source, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (hn *hclNode) toNode(path string) (Node, error) {
	n := Node{
		Type:   nodetype.TypeID(hn.Type),
		Source: fmt.Sprintf("%s: node %q %q", path, hn.Type, hn.ID),
	}
	if hn.Type == "" {
		return n, fmt.Errorf("node type must not be empty")
	}

	var err error
	if n.ID, err = livegraph.ParseInstanceID(hn.ID); err != nil {
		return n, err
	}
	if n.Pos, err = toVec2("pos", hn.Pos); err != nil {
		return n, err
	}
	if n.Size, err = toVec2("size", hn.Size); err != nil {
		return n, err
	}
	if n.Widgets, err = toMap("widgets", hn.Widgets); err != nil {
		return n, err
	}
	if n.Properties, err = toMap("properties", hn.Properties); err != nil {
		return n, err
	}
	return n, nil
}

func toVec2(name string, v []float64) (livegraph.Vec2, error) {
	switch len(v) {
	case 0:
		return livegraph.Vec2{}, nil
	case 2:
		return livegraph.Vec2{v[0], v[1]}, nil
	default:
		return livegraph.Vec2{}, fmt.Errorf("%s must have exactly two elements, got %d", name, len(v))
	}
}

func toMap(name string, v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return map[string]any{}, nil
	}
	if !v.Type().IsObjectType() && !v.Type().IsMapType() {
		return nil, fmt.Errorf("%s must be an object, got %s", name, v.Type().FriendlyName())
	}
	out, err := ctyToGo(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out.(map[string]any), nil
}

// ctyToGo converts a known cty value to the JSON-like Go value the editor
// stores in widgets.
func ctyToGo(val cty.Value) (any, error) {
	if !val.IsKnown() {
		return nil, fmt.Errorf("value is not known")
	}
	if val.IsNull() {
		return nil, nil
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			converted, err := ctyToGo(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k.AsString(), err)
			}
			out[k.AsString()] = converted
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			converted, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}
