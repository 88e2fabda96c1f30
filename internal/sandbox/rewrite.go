package sandbox

import (
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// StripHashbang blanks a leading "#!" line. The newline is kept so line
// numbers in stack traces still match the file.
func StripHashbang(code string) string {
	if !strings.HasPrefix(code, "#!") {
		return code
	}
	if i := strings.IndexByte(code, '\n'); i >= 0 {
		return code[i:]
	}
	return ""
}

// IsStrict reports whether code opens with a "use strict" directive. Only
// the directive prologue of the top level is inspected: comments are
// skipped, nested functions are not looked at. Code that does not parse is
// reported as sloppy; compiling it will surface the syntax error.
func IsStrict(code string) bool {
	fn, err := parser.ParseFunction("", StripHashbang(code))
	if err != nil || fn.Body == nil {
		return false
	}

	for _, stmt := range fn.Body.List {
		expr, ok := stmt.(*ast.ExpressionStatement)
		if !ok {
			return false
		}
		lit, ok := expr.Expression.(*ast.StringLiteral)
		if !ok {
			return false
		}
		if lit.Literal == `"use strict"` || lit.Literal == `'use strict'` {
			return true
		}
	}
	return false
}

// WrapSource shadows the named globals with parameters of an immediately
// invoked function. The arguments are read from the binding expression,
// e.g. binding.process, so module code sees whatever the binding holds:
//
//	(function (process) {"use strict";<code>
//	}).call(this, binding.process);
//
// The strict directive is repeated when the original code declared one,
// since wrapping would otherwise move it out of prologue position.
func WrapSource(code string, names []string, binding string, strict bool) string {
	code = StripHashbang(code)

	args := make([]string, len(names))
	for i, name := range names {
		args[i] = binding + "." + name
	}

	var b strings.Builder
	b.Grow(len(code) + 64)
	b.WriteString("(function (")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(") {")
	if strict {
		b.WriteString(`"use strict";`)
	}
	b.WriteString(code)
	b.WriteString("\n}).call(this")
	for _, arg := range args {
		b.WriteString(", ")
		b.WriteString(arg)
	}
	b.WriteString(");")
	return b.String()
}
