package chunker

import (
	"go/ast"
	"go/parser"
	"go/token"

	"repoaudit/internal/types"
)

// goUnits uses the standard Go parser; invalid files yield no units.
func goUnits(name string, src []byte) []unit {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, src, parser.ParseComments)
	if err != nil {
		return nil
	}
	text := func(n ast.Node) (int, int, string) {
		start, end := fset.Position(n.Pos()), fset.Position(n.End())
		return start.Line, end.Line, string(src[start.Offset:end.Offset])
	}

	var units []unit
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			s, e, body := text(d)
			units = append(units, unit{kind: types.ChunkFunction, name: funcName(d), startLine: s, endLine: e, text: body})
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				switch ts.Type.(type) {
				case *ast.StructType, *ast.InterfaceType:
				default:
					continue
				}
				var node ast.Node = ts
				if len(d.Specs) == 1 {
					node = d
				}
				s, e, body := text(node)
				units = append(units, unit{kind: types.ChunkClass, name: ts.Name.Name, startLine: s, endLine: e, text: body})
			}
		}
	}
	return units
}

func funcName(d *ast.FuncDecl) string {
	if d.Recv == nil || len(d.Recv.List) == 0 {
		return d.Name.Name
	}
	t := d.Recv.List[0].Type
	if star, ok := t.(*ast.StarExpr); ok {
		t = star.X
	}
	if idx, ok := t.(*ast.IndexExpr); ok {
		t = idx.X
	}
	if idx, ok := t.(*ast.IndexListExpr); ok {
		t = idx.X
	}
	if id, ok := t.(*ast.Ident); ok {
		return id.Name + "." + d.Name.Name
	}
	return d.Name.Name
}
