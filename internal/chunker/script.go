package chunker

import (
	"context"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"repoaudit/internal/types"
)

func language(d dialect) *sitter.Language {
	switch d {
	case dialectTS:
		return typescript.GetLanguage()
	case dialectTSX:
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

func scriptUnits(ctx context.Context, d dialect, src []byte) (units []unit) {
	if len(src) == 0 {
		return nil
	}
	defer func() {
		// A grammar panic on hostile input degrades to the fallback chunk.
		if r := recover(); r != nil {
			units = nil
		}
	}()
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(language(d))
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		return nil
	}
	defer tree.Close()

	root := tree.RootNode()
	// Partial trees hide code inside ERROR regions; keep the whole file instead.
	if root.HasError() {
		return nil
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		units = append(units, topLevel(root.NamedChild(i), src)...)
	}
	return units
}

func topLevel(n *sitter.Node, src []byte) []unit {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "export_statement":
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			return topLevel(decl, src)
		}
		if v := n.ChildByFieldName("value"); v != nil && isFunction(v) && span(n) >= minBindingLines {
			return []unit{newUnit(n, types.ChunkComponent, "default", src)}
		}
	case "function_declaration", "generator_function_declaration":
		return []unit{newUnit(n, types.ChunkFunction, fieldText(n, "name", src), src)}
	case "class_declaration", "abstract_class_declaration":
		return []unit{newUnit(n, types.ChunkClass, fieldText(n, "name", src), src)}
	case "lexical_declaration", "variable_declaration":
		var out []unit
		for i := 0; i < int(n.NamedChildCount()); i++ {
			d := n.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			if u, ok := binding(n, d.ChildByFieldName("name"), d.ChildByFieldName("value"), src); ok {
				out = append(out, u)
			}
		}
		return out
	case "expression_statement":
		if a := n.NamedChild(0); a != nil && a.Type() == "assignment_expression" {
			if u, ok := binding(n, a.ChildByFieldName("left"), a.ChildByFieldName("right"), src); ok {
				return []unit{u}
			}
		}
	}
	return nil
}

// binding turns `name = <function>` into a unit when the function is large
// enough. PascalCase names are treated as UI components.
func binding(stmt, name, value *sitter.Node, src []byte) (unit, bool) {
	if name == nil || value == nil || !isFunction(value) || span(stmt) < minBindingLines {
		return unit{}, false
	}
	label := name.Content(src)
	kind := types.ChunkFunction
	if isPascal(lastSegment(label)) {
		kind = types.ChunkComponent
	}
	return newUnit(stmt, kind, label, src), true
}

func isFunction(n *sitter.Node) bool {
	switch n.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return true
	case "call_expression":
		// memo(() => ...), forwardRef(function ...)
		args := n.ChildByFieldName("arguments")
		if args == nil {
			return false
		}
		for i := 0; i < int(args.NamedChildCount()); i++ {
			if isFunction(args.NamedChild(i)) {
				return true
			}
		}
	case "parenthesized_expression":
		if c := n.NamedChild(0); c != nil {
			return isFunction(c)
		}
	}
	return false
}

func newUnit(n *sitter.Node, kind types.ChunkKind, name string, src []byte) unit {
	return unit{
		kind:      kind,
		name:      name,
		startLine: int(n.StartPoint().Row) + 1,
		endLine:   int(n.EndPoint().Row) + 1,
		text:      n.Content(src),
	}
}

func fieldText(n *sitter.Node, field string, src []byte) string {
	if c := n.ChildByFieldName(field); c != nil {
		return c.Content(src)
	}
	return ""
}

func span(n *sitter.Node) int {
	return int(n.EndPoint().Row-n.StartPoint().Row) + 1
}

func lastSegment(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return s[i+1:]
		}
	}
	return s
}

func isPascal(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}
