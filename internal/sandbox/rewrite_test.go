package sandbox

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripHashbang(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"no hashbang", "var a = 1;", "var a = 1;"},
		{"hashbang", "#!/usr/bin/env node\nvar a = 1;", "\nvar a = 1;"},
		{"hashbang only", "#!/usr/bin/env node", ""},
		{"not at start", " #!x\n", " #!x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHashbang(tt.code))
		})
	}
}

func TestIsStrict(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"double quotes", `"use strict"; var a;`, true},
		{"single quotes", `'use strict'
var a;`, true},
		{"after comments", "// header\n/* block */\n'use strict';\nmodule.exports = 1;", true},
		{"after other directive", `"use asm"; "use strict"; var a;`, true},
		{"after hashbang", "#!/usr/bin/env node\n'use strict';", true},
		{"sloppy", `var a = 1; "use strict";`, false},
		{"nested function only", `function f() { "use strict"; }`, false},
		{"escaped directive", `"use\u0020strict";`, false},
		{"empty", ``, false},
		{"syntax error", `"use strict"; var = ;`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStrict(tt.code))
		})
	}
}

func TestWrapSource(t *testing.T) {
	got := WrapSource("#!/usr/bin/env node\nexit(1);", []string{"process", "console"}, "__b", true)
	assert.Equal(t, "(function (process, console) {\"use strict\";\nexit(1);\n}).call(this, __b.process, __b.console);", got)

	vm := goja.New()
	_, err := vm.RunString(`var __b = { process: { tag: 'patched' } }; var seen;`)
	require.NoError(t, err)

	_, err = vm.RunString(WrapSource("seen = process.tag;", []string{"process"}, "__b", false))
	require.NoError(t, err)
	assert.Equal(t, "patched", vm.Get("seen").Export())
}

func TestWrapSourceKeepsStrictness(t *testing.T) {
	vm := goja.New()
	_, err := vm.RunString(`var __b = { process: {} }; var strict;`)
	require.NoError(t, err)

	for _, tt := range []struct {
		code string
		want bool
	}{
		{"'use strict'; strict = (function () { return this === undefined; })();", true},
		{"strict = (function () { return this === undefined; })();", false},
	} {
		_, err := vm.RunString(WrapSource(tt.code, []string{"process"}, "__b", IsStrict(tt.code)))
		require.NoError(t, err)
		assert.Equal(t, tt.want, vm.Get("strict").Export(), tt.code)
	}
}
