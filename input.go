package distill

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Input carries raw input into Create. Adapters decode into the canonical
// tree shape: map[string]any, []any, string, float64, bool, nil. Numbers
// normalize to float64 across adapters so value comparison during
// convergence never depends on the input format.
type Input interface {
	Decode() (any, error)
}

type jsonInput struct{ data []byte }

// JSON feeds a JSON document.
func JSON(data []byte) Input { return jsonInput{data: data} }

func (in jsonInput) Decode() (any, error) {
	var v any
	if err := json.Unmarshal(in.data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type jsonReaderInput struct{ r io.Reader }

// JSONReader feeds a JSON document read from r.
func JSONReader(r io.Reader) Input { return jsonReaderInput{r: r} }

func (in jsonReaderInput) Decode() (any, error) {
	data, err := io.ReadAll(in.r)
	if err != nil {
		return nil, err
	}
	return jsonInput{data: data}.Decode()
}

type yamlInput struct{ data []byte }

// YAML feeds a YAML document. The decoded tree is normalized so a YAML and a
// JSON rendering of the same document produce identical instances.
func YAML(data []byte) Input { return yamlInput{data: data} }

func (in yamlInput) Decode() (any, error) {
	var v any
	if err := yaml.Unmarshal(in.data, &v); err != nil {
		return nil, err
	}
	return normalizeTree(v), nil
}

type valueInput struct{ v any }

// Value feeds an already-decoded tree, normalized the same way YAML input
// is.
func Value(v any) Input { return valueInput{v: v} }

func (in valueInput) Decode() (any, error) { return normalizeTree(in.v), nil }

// normalizeTree rewrites a decoded tree into the canonical shape: string
// keys and float64 numbers. Unknown leaf types pass through untouched.
func normalizeTree(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = normalizeTree(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[fmt.Sprint(k)] = normalizeTree(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, el := range node {
			out[i] = normalizeTree(el)
		}
		return out
	case int:
		return float64(node)
	case int8:
		return float64(node)
	case int16:
		return float64(node)
	case int32:
		return float64(node)
	case int64:
		return float64(node)
	case uint:
		return float64(node)
	case uint8:
		return float64(node)
	case uint16:
		return float64(node)
	case uint32:
		return float64(node)
	case uint64:
		return float64(node)
	case float32:
		return float64(node)
	default:
		return v
	}
}
