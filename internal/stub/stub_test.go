package stub

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lastCallback invokes the trailing function argument of call.
func lastCallback(t *testing.T, call goja.FunctionCall, args ...goja.Value) {
	t.Helper()
	require.NotEmpty(t, call.Arguments)
	cb, ok := goja.AssertFunction(call.Arguments[len(call.Arguments)-1])
	require.True(t, ok, "last argument is not a callback")
	_, err := cb(goja.Undefined(), args...)
	require.NoError(t, err)
}

func newTestSet(t *testing.T, overridable ...string) (*goja.Runtime, *Set) {
	t.Helper()
	vm := goja.New()
	set := NewSet(vm, nil)

	set.Implement("echo", func(call goja.FunctionCall) goja.Value {
		lastCallback(t, call, goja.Null(), call.Argument(0))
		return goja.Undefined()
	})
	set.Implement("fail", func(call goja.FunctionCall) goja.Value {
		lastCallback(t, call, vm.ToValue("boom"))
		return goja.Undefined()
	})
	set.Implement("count", func(call goja.FunctionCall) goja.Value {
		lastCallback(t, call, vm.ToValue(42))
		return goja.Undefined()
	})
	set.Implement("explode", func(call goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("exploded"))
	})
	set.Implement("on", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue("registered")
	})
	set.Bare("sendTo")

	err := Instrument(set, Table{
		"echo":    Normal,
		"fail":    Normal,
		"count":   NoError,
		"explode": Normal,
		"on":      None,
	}, overridable...)
	require.NoError(t, err)

	api := vm.NewObject()
	require.NoError(t, set.Bind(api))
	require.NoError(t, vm.Set("api", api))
	return vm, set
}

func runAndRead(t *testing.T, vm *goja.Runtime, script string) *goja.Object {
	t.Helper()
	_, err := vm.RunString("var out = {};\n" + script)
	require.NoError(t, err)
	return vm.Get("out").ToObject(vm)
}

func TestInstrumentCreatesStubs(t *testing.T) {
	_, set := newTestSet(t)

	assert.Equal(t, []string{
		"count", "countAsync",
		"echo", "echoAsync",
		"explode", "explodeAsync",
		"fail", "failAsync",
		"on", "sendTo",
	}, set.Names())

	_, ok := set.Lookup("onAsync")
	assert.False(t, ok, "none convention must not be promisified")
}

func TestInstrumentMissingImplementation(t *testing.T) {
	set := NewSet(goja.New(), nil)
	err := Instrument(set, Table{"missing": Normal})
	assert.ErrorIs(t, err, ErrNoImplementation)
}

func TestCallbackStubCallsThrough(t *testing.T) {
	vm, set := newTestSet(t)

	out := runAndRead(t, vm, `api.echo(7, function (err, v) { out.err = err; out.v = v; });`)

	assert.True(t, goja.IsNull(out.Get("err")))
	assert.Equal(t, int64(7), out.Get("v").ToInteger())

	echo := set.MustLookup("echo")
	require.Equal(t, 1, echo.CallCount())
	call, ok := echo.LastCall()
	require.True(t, ok)
	assert.Equal(t, int64(7), call.Arg(0).ToInteger())
	assert.True(t, goja.IsUndefined(call.Arg(5)))
}

func TestPromisifiedEquivalence(t *testing.T) {
	vm, set := newTestSet(t)

	out := runAndRead(t, vm, `
		api.echoAsync("hello").then(function (v) { out.echo = v; });
		api.failAsync().then(function () { out.failResolved = true; }, function (e) { out.fail = e; });
		api.countAsync().then(function (v) { out.count = v; });
		api.explodeAsync().catch(function (e) { out.explode = e instanceof TypeError; });
	`)

	assert.Equal(t, "hello", out.Get("echo").String())
	assert.Equal(t, "boom", out.Get("fail").String())
	assert.Nil(t, out.Get("failResolved"))
	assert.Equal(t, int64(42), out.Get("count").ToInteger())
	assert.True(t, out.Get("explode").ToBoolean())

	// the async twin records its own calls and leaves the callback stub alone
	assert.Equal(t, 1, set.MustLookup("echoAsync").CallCount())
	assert.Equal(t, 0, set.MustLookup("echo").CallCount())
}

func TestNoErrorResolvesWithFirstArgument(t *testing.T) {
	vm := goja.New()
	set := NewSet(vm, nil)
	set.Implement("list", func(call goja.FunctionCall) goja.Value {
		cb, _ := goja.AssertFunction(call.Arguments[len(call.Arguments)-1])
		// a truthy first argument is a result, not an error
		_, _ = cb(goja.Undefined(), vm.ToValue("not an error"))
		return goja.Undefined()
	})
	require.NoError(t, Instrument(set, Table{"list": NoError}))
	api := vm.NewObject()
	require.NoError(t, set.Bind(api))
	require.NoError(t, vm.Set("api", api))

	out := runAndRead(t, vm, `api.listAsync().then(function (v) { out.v = v; }, function () { out.rejected = true; });`)
	assert.Equal(t, "not an error", out.Get("v").String())
	assert.Nil(t, out.Get("rejected"))
}

func TestProtectedStubAlwaysRefuses(t *testing.T) {
	_, set := newTestSet(t)

	for _, name := range []string{"echo", "echoAsync", "count", "countAsync"} {
		st := set.MustLookup(name)
		assert.True(t, st.Protected(), name)
		for i := 0; i < 3; i++ {
			assert.ErrorIs(t, st.Returns(1), ErrProtected)
			assert.ErrorIs(t, st.Throws("x"), ErrProtected)
			assert.ErrorIs(t, st.CallsFake(nil), ErrProtected)
			assert.ErrorIs(t, st.CallsThrough(), ErrProtected)
			assert.ErrorIs(t, st.ResetBehavior(), ErrProtected)
		}
		st.ResetHistory()
	}
}

func TestUnpromisifiedStubIsProtected(t *testing.T) {
	vm, set := newTestSet(t)
	on := set.MustLookup("on")
	assert.True(t, on.Protected())
	assert.ErrorIs(t, on.Returns(1), ErrProtected)
	assert.ErrorIs(t, on.CallsFake(nil), ErrProtected)

	_, err := vm.RunString(`api.on.returns(1)`)
	assert.Error(t, err)

	v, err := vm.RunString(`api.on("ready", function () {})`)
	require.NoError(t, err)
	assert.Equal(t, "registered", v.String())
}

func TestProtectedStubThrowsInScript(t *testing.T) {
	vm, _ := newTestSet(t)

	for i := 0; i < 2; i++ {
		_, err := vm.RunString(`api.echo.returns(1)`)
		var ex *goja.Exception
		require.ErrorAs(t, err, &ex)
		assert.Contains(t, ex.Error(), "protected")
	}
}

func TestOverridableStub(t *testing.T) {
	vm, set := newTestSet(t, "echo")

	echo := set.MustLookup("echo")
	assert.False(t, echo.Protected())
	assert.False(t, set.MustLookup("echoAsync").Protected())
	assert.True(t, set.MustLookup("fail").Protected())

	require.NoError(t, echo.Returns("replaced"))
	v, err := vm.RunString(`api.echo()`)
	require.NoError(t, err)
	assert.Equal(t, "replaced", v.String())

	require.NoError(t, echo.CallsThrough())
	out := runAndRead(t, vm, `api.echo(3, function (e, v) { out.v = v; });`)
	assert.Equal(t, int64(3), out.Get("v").ToInteger())
}

func TestBareStub(t *testing.T) {
	vm, set := newTestSet(t)
	sendTo := set.MustLookup("sendTo")
	assert.False(t, sendTo.Protected())

	v, err := vm.RunString(`api.sendTo("other.0", "cmd")`)
	require.NoError(t, err)
	assert.True(t, goja.IsUndefined(v))
	assert.Equal(t, 1, sendTo.CallCount())

	require.NoError(t, sendTo.Returns(5))
	v, err = vm.RunString(`api.sendTo()`)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v.ToInteger())

	require.NoError(t, sendTo.Throws(errors.New("offline")))
	v, err = vm.RunString(`try { api.sendTo(); "no" } catch (e) { e.message }`)
	require.NoError(t, err)
	assert.Equal(t, "offline", v.String())

	calls := sendTo.Calls()
	require.Len(t, calls, 3)
	assert.True(t, calls[2].Threw)
	assert.NotNil(t, calls[2].Exception)

	v, err = vm.RunString(`api.sendTo.callCount`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.ToInteger())

	_, err = vm.RunString(`api.sendTo.resetHistory()`)
	require.NoError(t, err)
	assert.False(t, sendTo.Called())
}

func TestCallsFake(t *testing.T) {
	vm, set := newTestSet(t, "on")
	on := set.MustLookup("on")

	v, err := vm.RunString(`api.on("ready", function () {})`)
	require.NoError(t, err)
	assert.Equal(t, "registered", v.String())

	require.NoError(t, on.CallsFake(func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(len(call.Arguments))
	}))
	v, err = vm.RunString(`api.on("a", "b", "c")`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.ToInteger())
}

func TestObserver(t *testing.T) {
	vm := goja.New()
	var seen []string
	set := NewSet(vm, func(name string) { seen = append(seen, name) })
	set.Bare("a")
	set.Bare("b")
	api := vm.NewObject()
	require.NoError(t, set.Bind(api))
	require.NoError(t, vm.Set("api", api))

	_, err := vm.RunString(`api.a(); api.b(); api.a();`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, seen)
}

func TestParseConvention(t *testing.T) {
	tests := []struct {
		in      string
		want    Convention
		wantErr bool
	}{
		{"normal", Normal, false},
		{"no-error", NoError, false},
		{"none", None, false},
		{"", None, false},
		{"bogus", None, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseConvention(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.in != "" {
				assert.Equal(t, tt.in, got.String())
			}
		})
	}
}
