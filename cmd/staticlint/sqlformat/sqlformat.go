// Package sqlformat defines an analyzer that reports SQL queries built with
// fmt.Sprintf and passed straight to database/sql. Values must go through
// query placeholders instead.
package sqlformat

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

var Analyzer = &analysis.Analyzer{
	Name:     "sqlformat",
	Doc:      "reports fmt.Sprintf used as the query of a database/sql call",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

// queryArgIndex maps database/sql methods to the position of their query argument.
var queryArgIndex = map[string]int{
	"Exec":            0,
	"Query":           0,
	"QueryRow":        0,
	"Prepare":         0,
	"ExecContext":     1,
	"QueryContext":    1,
	"QueryRowContext": 1,
	"PrepareContext":  1,
}

func run(pass *analysis.Pass) (interface{}, error) {
	ins := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	ins.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)

		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return
		}

		index, ok := queryArgIndex[sel.Sel.Name]
		if !ok || len(call.Args) <= index || !isFrom(pass, sel.Sel, "database/sql") {
			return
		}

		if isSprintf(pass, call.Args[index]) {
			pass.Reportf(call.Args[index].Pos(), "query built with fmt.Sprintf; use placeholders")
		}
	})

	return nil, nil
}

func isSprintf(pass *analysis.Pass, expr ast.Expr) bool {
	call, ok := ast.Unparen(expr).(*ast.CallExpr)
	if !ok {
		return false
	}

	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Sprintf" {
		return false
	}

	return isFrom(pass, sel.Sel, "fmt")
}

func isFrom(pass *analysis.Pass, ident *ast.Ident, pkgPath string) bool {
	fn, ok := pass.TypesInfo.Uses[ident].(*types.Func)
	return ok && fn.Pkg() != nil && fn.Pkg().Path() == pkgPath
}
