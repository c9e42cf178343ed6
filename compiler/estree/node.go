// Package estree decodes ESTree JSON, as produced by SpiderMonkey's
// Reflect.parse, acorn or esprima, into the compiler's syntax tree.
package estree

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// node is the union of every ESTree field the decoder reads. Fields whose
// JSON type depends on the node type are kept raw and decoded on demand.
type node struct {
	Type  string    `json:"type"`
	Loc   *location `json:"loc"`
	Start *int      `json:"start"`
	Range []int     `json:"range"`

	Body       json.RawMessage `json:"body"`       // statement list or single node
	Value      json.RawMessage `json:"value"`      // literal value or property value
	Consequent json.RawMessage `json:"consequent"` // if branch or case body
	Expression json.RawMessage `json:"expression"` // statement expression or closure flag

	Name     string     `json:"name"`
	Operator string     `json:"operator"`
	Kind     string     `json:"kind"`
	Prefix   bool       `json:"prefix"`
	Computed bool       `json:"computed"`
	Each     bool       `json:"each"`
	Regex    *regexInfo `json:"regex"`

	ID           *node   `json:"id"`
	Init         *node   `json:"init"`
	Test         *node   `json:"test"`
	Update       *node   `json:"update"`
	Alternate    *node   `json:"alternate"`
	Argument     *node   `json:"argument"`
	Label        *node   `json:"label"`
	Left         *node   `json:"left"`
	Right        *node   `json:"right"`
	Object       *node   `json:"object"`
	Property     *node   `json:"property"`
	Callee       *node   `json:"callee"`
	Key          *node   `json:"key"`
	Discriminant *node   `json:"discriminant"`
	Block        *node   `json:"block"`
	Handler      *node   `json:"handler"`
	Finalizer    *node   `json:"finalizer"`
	Param        *node   `json:"param"`
	Guard        *node   `json:"guard"`
	Params       []*node `json:"params"`
	Arguments    []*node `json:"arguments"`
	Elements     []*node `json:"elements"`
	Properties   []*node `json:"properties"`
	Declarations []*node `json:"declarations"`
	Expressions  []*node `json:"expressions"`
	Cases        []*node `json:"cases"`
	Handlers     []*node `json:"handlers"`
	Guarded      []*node `json:"guardedHandlers"`
	Head         []*node `json:"head"`
	Generator    bool    `json:"generator"`
}

type location struct {
	Start point `json:"start"`
	End   point `json:"end"`
}

type point struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type regexInfo struct {
	Pattern string `json:"pattern"`
	Flags   string `json:"flags"`
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// decodeNode decodes a raw field holding a single node.
func decodeNode(raw json.RawMessage) (*node, error) {
	if isNull(raw) {
		return nil, nil
	}
	var n node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// decodeList decodes a raw field holding a node array.
func decodeList(raw json.RawMessage) ([]*node, error) {
	if isNull(raw) {
		return nil, nil
	}
	var list []*node
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}
