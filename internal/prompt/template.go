// Package prompt renders the triage, analyze and fix prompts.
package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Vars maps placeholder names to their values.
type Vars map[string]string

// tagRe matches every tag the renderer understands:
// {{name}}, {{#if name}}, {{else}} and {{/if}}.
var tagRe = regexp.MustCompile(`\{\{\s*(?:#if\s+([A-Za-z_][A-Za-z0-9_]*)|(else)|(/if)|([A-Za-z_][A-Za-z0-9_]*))\s*\}\}`)

type nodeKind int

const (
	textNode nodeKind = iota
	varNode
	ifNode
)

type node struct {
	kind nodeKind
	text string // literal text, or the variable name for varNode and ifNode
	then []node
	alt  []node
}

// frame is an open {{#if}} while parsing.
type frame struct {
	cond    *node
	tag     string
	sawElse bool
}

// Render expands tmpl with vars.
//
// {{name}} is replaced by its value, which is inserted verbatim and never
// expanded again. {{#if name}}...{{else}}...{{/if}} keeps the first branch
// when name is set and non-empty. Blocks nest. Placeholders referenced from
// a branch that is not taken are not required.
func Render(tmpl string, vars Vars) (string, error) {
	tree, err := parse(tmpl)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	missing := map[string]bool{}
	emit(&b, tree, vars, missing)

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", fmt.Errorf("missing template variables: %s", strings.Join(names, ", "))
	}
	return b.String(), nil
}

func parse(tmpl string) ([]node, error) {
	var root []node
	var stack []*frame

	// out returns the slice new nodes are appended to.
	out := func() *[]node {
		if len(stack) == 0 {
			return &root
		}
		top := stack[len(stack)-1]
		if top.sawElse {
			return &top.cond.alt
		}
		return &top.cond.then
	}

	pos := 0
	for _, m := range tagRe.FindAllStringSubmatchIndex(tmpl, -1) {
		if m[0] > pos {
			dst := out()
			*dst = append(*dst, node{kind: textNode, text: tmpl[pos:m[0]]})
		}
		pos = m[1]
		tag := tmpl[m[0]:m[1]]

		switch {
		case m[2] >= 0:
			stack = append(stack, &frame{
				cond: &node{kind: ifNode, text: tmpl[m[2]:m[3]]},
				tag:  tag,
			})
		case m[4] >= 0:
			if len(stack) == 0 {
				return nil, fmt.Errorf("{{else}} outside a conditional block")
			}
			top := stack[len(stack)-1]
			if top.sawElse {
				return nil, fmt.Errorf("duplicate {{else}} in %s", top.tag)
			}
			top.sawElse = true
		case m[6] >= 0:
			if len(stack) == 0 {
				return nil, fmt.Errorf("dangling {{/if}} without matching {{#if}}")
			}
			closed := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			dst := out()
			*dst = append(*dst, *closed.cond)
		default:
			dst := out()
			*dst = append(*dst, node{kind: varNode, text: tmpl[m[8]:m[9]]})
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed conditional block: %s", stack[len(stack)-1].tag)
	}
	if pos < len(tmpl) {
		root = append(root, node{kind: textNode, text: tmpl[pos:]})
	}
	return root, nil
}

func emit(b *strings.Builder, nodes []node, vars Vars, missing map[string]bool) {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			b.WriteString(n.text)
		case varNode:
			v, ok := vars[n.text]
			if !ok {
				missing[n.text] = true
				continue
			}
			b.WriteString(v)
		case ifNode:
			if vars[n.text] != "" {
				emit(b, n.then, vars, missing)
			} else {
				emit(b, n.alt, vars, missing)
			}
		}
	}
}
