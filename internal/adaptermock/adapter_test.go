package adaptermock

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/adapter-harness/internal/logging"
	"github.com/GriffinCanCode/adapter-harness/internal/store"
	"github.com/GriffinCanCode/adapter-harness/internal/stub"
)

func newTestAdapter(t *testing.T, opts Options) (*goja.Runtime, *store.Store, *Adapter) {
	t.Helper()
	vm := goja.New()
	st := store.New()
	a, err := New(vm, st, opts)
	require.NoError(t, err)
	require.NoError(t, vm.Set("adapter", a.Object()))
	return vm, st, a
}

func run(t *testing.T, vm *goja.Runtime, script string) goja.Value {
	t.Helper()
	v, err := vm.RunString(script)
	require.NoError(t, err)
	return v
}

func TestMethodsInstalled(t *testing.T) {
	vm, _, a := newTestAdapter(t, Options{})
	obj := a.Object()

	for name, conv := range conventions {
		assert.Truef(t, isFunction(obj.Get(name)), "%s missing", name)
		async := obj.Get(name + stub.AsyncSuffix)
		if conv == stub.None {
			assert.Nilf(t, async, "%s should not be promisified", name)
		} else {
			assert.Truef(t, isFunction(async), "%sAsync missing", name)
		}
	}
	for _, name := range bareMethods {
		assert.Truef(t, isFunction(obj.Get(name)), "%s missing", name)
	}

	assert.Equal(t, "test.0", run(t, vm, "adapter.namespace").String())
	assert.Equal(t, "info", run(t, vm, "adapter.log.level").String())
	assert.Equal(t, int64(0), run(t, vm, "adapter.instance").ToInteger())
}

func isFunction(v goja.Value) bool {
	if v == nil {
		return false
	}
	_, ok := goja.AssertFunction(v)
	return ok
}

func TestStateMethods(t *testing.T) {
	vm, st, _ := newTestAdapter(t, Options{Name: "foo", Instance: 1})

	run(t, vm, `
		var setID, got;
		adapter.setState("sensor.temp", 21.5, true, function (err, id) { setID = id; });
		adapter.getState("sensor.temp", function (err, state) { got = state; });
	`)
	assert.Equal(t, "foo.1.sensor.temp", vm.Get("setID").String())

	state, ok := st.GetState("foo.1.sensor.temp")
	require.True(t, ok)
	assert.Equal(t, 21.5, state.Val())
	assert.True(t, state.Ack())
	assert.Equal(t, 21.5, run(t, vm, "got.val").ToFloat())

	// Already qualified ids are left alone.
	run(t, vm, `adapter.setState("foo.1.other", {val: "x", ack: false});`)
	assert.True(t, st.HasState("foo.1.other"))

	run(t, vm, `adapter.setForeignState("system.host.cpu", 3);`)
	assert.True(t, st.HasState("system.host.cpu"))

	run(t, vm, `
		var keys;
		adapter.getStates("sensor.*", function (err, states) { keys = Object.keys(states); });
	`)
	assert.Equal(t, "foo.1.sensor.temp", run(t, vm, "keys.join(',')").String())

	run(t, vm, `adapter.delState("sensor.temp");`)
	assert.False(t, st.HasState("foo.1.sensor.temp"))
}

func TestSetStateChanged(t *testing.T) {
	vm, st, _ := newTestAdapter(t, Options{})

	run(t, vm, `
		var results = [];
		function record(err, id, notChanged) { results.push(notChanged); }
		adapter.setStateChanged("a", 1, true, record);
		adapter.setStateChanged("a", 1, true, record);
		adapter.setStateChanged("a", 1, false, record);
		adapter.setStateChanged("a", 2, false, record);
	`)
	assert.Equal(t, "false,true,false,false", run(t, vm, "results.join(',')").String())

	state, ok := st.GetState("test.0.a")
	require.True(t, ok)
	assert.Equal(t, int64(2), state.Val())
}

func TestObjectMethods(t *testing.T) {
	vm, st, _ := newTestAdapter(t, Options{})

	run(t, vm, `
		var created, extended;
		adapter.setObject("dev", {type: "device", common: {name: "Dev"}}, function (err, res) { created = res.id; });
		adapter.extendObject("dev", {common: {role: "x"}}, function (err, res) { extended = res.value; });
	`)
	assert.Equal(t, "test.0.dev", vm.Get("created").String())
	assert.Equal(t, "Dev", run(t, vm, "extended.common.name").String())
	assert.Equal(t, "x", run(t, vm, "extended.common.role").String())

	obj, ok := st.GetObject("test.0.dev")
	require.True(t, ok)
	assert.Equal(t, "device", obj.Type())
	assert.Equal(t, "x", obj.Common()["role"])

	run(t, vm, `adapter.setObjectNotExists("dev", {type: "channel"});`)
	obj, _ = st.GetObject("test.0.dev")
	assert.Equal(t, "device", obj.Type(), "existing object must not be replaced")

	run(t, vm, `
		var all;
		adapter.getAdapterObjects(function (objects) { all = Object.keys(objects); });
	`)
	assert.Equal(t, "test.0.dev", run(t, vm, "all.join(',')").String())

	run(t, vm, `adapter.delObject("dev");`)
	assert.False(t, st.HasObject("test.0.dev"))
}

func TestGetForeignObjectsFiltersByType(t *testing.T) {
	vm, st, _ := newTestAdapter(t, Options{})
	for id, typ := range map[string]string{"a.0.x": "state", "a.0.y": "channel", "b.0.z": "state"} {
		require.NoError(t, st.PublishObject(store.Object{store.KeyID: id, store.KeyType: typ}))
	}

	run(t, vm, `
		var ids;
		adapter.getForeignObjects("a.0.*", "state", function (err, objs) { ids = Object.keys(objs).sort(); });
	`)
	assert.Equal(t, "a.0.x", run(t, vm, "ids.join(',')").String())
}

func TestObjectViewAndList(t *testing.T) {
	vm, st, _ := newTestAdapter(t, Options{})
	for _, id := range []string{"enum.rooms.kitchen", "enum.rooms.living", "enum.functions.light"} {
		require.NoError(t, st.PublishObject(store.Object{store.KeyID: id, store.KeyType: "enum"}))
	}
	require.NoError(t, st.PublishObject(store.Object{store.KeyID: "enum.rooms.kitchen.lamp", store.KeyType: "state"}))

	run(t, vm, `
		var view, list;
		adapter.getObjectView("system", "enum", {startkey: "enum.rooms.", endkey: "enum.rooms.~"}, function (err, res) {
			view = res.rows.map(function (r) { return r.id; });
		});
		adapter.getObjectList({startkey: "enum.rooms.kitchen", endkey: "enum.rooms.kitchen.~"}, function (err, res) {
			list = res.rows.map(function (r) { return r.doc.type; });
		});
	`)
	assert.Equal(t, "enum.rooms.kitchen,enum.rooms.living", run(t, vm, "view.join(',')").String())
	assert.Equal(t, "enum,state", run(t, vm, "list.join(',')").String())
}

func TestAsyncVariants(t *testing.T) {
	vm, st, _ := newTestAdapter(t, Options{})
	st.PublishState("test.0.a", store.State{store.KeyVal: "on"})

	run(t, vm, `
		var val, missing, rejected;
		adapter.getStateAsync("a").then(function (s) { val = s.val; });
		adapter.getForeignObjectAsync("nope").then(function (o) { missing = o; });
		adapter.setObjectAsync("bad", {common: {}}).catch(function (e) { rejected = e.message; });
	`)
	assert.Equal(t, "on", vm.Get("val").String())
	assert.True(t, goja.IsNull(vm.Get("missing")))
	assert.Contains(t, vm.Get("rejected").String(), "type")
}

func TestProtectedMethods(t *testing.T) {
	vm, _, a := newTestAdapter(t, Options{})

	getState, ok := a.Stub("getState")
	require.True(t, ok)
	assert.ErrorIs(t, getState.Returns(1), stub.ErrProtected)

	async, ok := a.Stub("getStateAsync")
	require.True(t, ok)
	assert.ErrorIs(t, async.Throws("x"), stub.ErrProtected)

	_, err := vm.RunString(`adapter.setState.returns(1)`)
	assert.Error(t, err)

	view, ok := a.Stub("getObjectView")
	require.True(t, ok)
	assert.NoError(t, view.Returns("custom"))
	assert.Equal(t, "custom", run(t, vm, `adapter.getObjectView("system", "state", {})`).String())

	a.ResetBehavior()
	assert.True(t, goja.IsUndefined(run(t, vm, `adapter.getObjectView("system", "state", {})`)))
}

func TestBareStubs(t *testing.T) {
	vm, _, a := newTestAdapter(t, Options{})

	assert.True(t, goja.IsUndefined(run(t, vm, `adapter.sendTo("other.0", "cmd", {})`)))

	sendTo, ok := a.Stub("sendTo")
	require.True(t, ok)
	assert.Equal(t, 1, sendTo.CallCount())
	call, _ := sendTo.LastCall()
	assert.Equal(t, "cmd", call.Arg(1).String())

	require.NoError(t, sendTo.Returns(5))
	assert.Equal(t, int64(5), run(t, vm, `adapter.sendTo("x")`).ToInteger())

	run(t, vm, `adapter.resetMock()`)
	assert.Equal(t, 0, sendTo.CallCount())
	assert.True(t, goja.IsUndefined(run(t, vm, `adapter.sendTo("x")`)))
}

func TestEventHandlers(t *testing.T) {
	vm, _, a := newTestAdapter(t, Options{})

	run(t, vm, `
		var self;
		var chained = adapter.on("ready", function () { self = this; return 42; }) === adapter;
		adapter.on("custom", function () {});
	`)
	assert.True(t, vm.Get("chained").ToBoolean())

	v, err := a.Emit(EventReady)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.ToInteger())
	assert.True(t, vm.Get("self").StrictEquals(a.Object()))

	_, ok := a.Handler("custom")
	assert.False(t, ok)
	assert.Equal(t, 1, a.Listeners("custom"))

	_, err = a.Emit(EventUnload)
	assert.ErrorIs(t, err, ErrNoHandler)

	_, err = vm.RunString(`adapter.on("ready", 5)`)
	assert.Error(t, err)

	run(t, vm, `adapter.removeAllListeners("ready")`)
	_, ok = a.Handler(EventReady)
	assert.False(t, ok)
}

func TestTerminate(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		reason   string
		exitCode int64 // -1 when absent
	}{
		{"no arguments", `adapter.terminate()`, DefaultTerminateReason, -1},
		{"reason", `adapter.terminate("bye")`, "bye", -1},
		{"reason and code", `adapter.terminate("bye", 4)`, "bye", 4},
		{"code only", `adapter.terminate(7)`, DefaultTerminateReason, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, _, _ := newTestAdapter(t, Options{})
			_, err := vm.RunString(tt.script)
			var ex *goja.Exception
			require.ErrorAs(t, err, &ex)

			obj, ok := ex.Value().(*goja.Object)
			require.True(t, ok)
			assert.Equal(t, tt.reason, obj.Get(TerminateReasonKey).String())
			assert.Equal(t, "Adapter.terminate was called: "+tt.reason, obj.Get("message").String())
			if tt.exitCode < 0 {
				assert.Nil(t, obj.Get(ExitCodeKey))
			} else {
				require.NotNil(t, obj.Get(ExitCodeKey))
				assert.Equal(t, tt.exitCode, obj.Get(ExitCodeKey).ToInteger())
			}
		})
	}
}

func TestTerminateCannotBeStubbedAway(t *testing.T) {
	vm, _, a := newTestAdapter(t, Options{})

	for _, name := range []string{"terminate", "on", "once", "removeListener", "subscribeStates", "setTimeout"} {
		st, ok := a.Stub(name)
		require.True(t, ok, name)
		assert.True(t, st.Protected(), name)
		assert.ErrorIs(t, st.Returns(1), stub.ErrProtected, name)
	}

	_, err := vm.RunString(`adapter.terminate.returns(1)`)
	assert.Error(t, err)

	_, err = vm.RunString(`adapter.terminate("still fatal")`)
	var ex *goja.Exception
	require.ErrorAs(t, err, &ex)
	obj, ok := ex.Value().(*goja.Object)
	require.True(t, ok)
	assert.Equal(t, "still fatal", obj.Get(TerminateReasonKey).String())
}

func TestLogForwarding(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	vm, _, a := newTestAdapter(t, Options{Logger: logging.Wrap(zap.New(core))})

	run(t, vm, `adapter.log.warn("disk", 95, "%")`)

	entries := logs.FilterMessage("disk 95 %").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "adapter", entries[0].LoggerName)
	assert.Equal(t, "test.0", entries[0].ContextMap()["namespace"])

	warn, ok := a.LogStub("warn")
	require.True(t, ok)
	assert.Equal(t, 1, warn.CallCount())

	require.NoError(t, warn.CallsFake(func(goja.FunctionCall) goja.Value { return goja.Undefined() }))
	run(t, vm, `adapter.log.warn("silenced")`)
	assert.Zero(t, logs.FilterMessage("silenced").Len())

	a.ResetBehavior()
	run(t, vm, `adapter.log.warn("back")`)
	assert.Equal(t, 1, logs.FilterMessage("back").Len())
}

func TestChangeForwarding(t *testing.T) {
	vm, st, a := newTestAdapter(t, Options{ForwardChanges: true})

	run(t, vm, `
		var seen = [];
		adapter.on("stateChange", function (id, state) { seen.push(id + "=" + (state ? state.val : null)); });
		adapter.on("objectChange", function (id, obj) { seen.push(id + ":" + (obj ? obj.type : null)); });
		adapter.subscribeStates("sensor.*");
		adapter.subscribeForeignObjects("system.*");
	`)
	assert.True(t, a.SubscribedState("test.0.sensor.temp"))
	assert.False(t, a.SubscribedState("other.0.sensor.temp"))

	st.PublishState("test.0.sensor.temp", store.State{store.KeyVal: 20})
	st.PublishState("test.0.other", store.State{store.KeyVal: 1})
	require.NoError(t, st.PublishObject(store.Object{store.KeyID: "system.host.x", store.KeyType: "host"}))
	st.DeleteState("test.0.sensor.temp")
	a.Quietly(func() {
		st.PublishState("test.0.sensor.quiet", store.State{store.KeyVal: 1})
	})

	run(t, vm, `adapter.unsubscribeStates("sensor.*")`)
	st.PublishState("test.0.sensor.temp", store.State{store.KeyVal: 21})

	assert.Equal(t,
		"test.0.sensor.temp=20|system.host.x:host|test.0.sensor.temp=null",
		run(t, vm, `seen.join("|")`).String())
}

func TestChangeForwardingDeferred(t *testing.T) {
	var queued []func()
	vm, st, _ := newTestAdapter(t, Options{
		ForwardChanges: true,
		Defer:          func(fn func()) { queued = append(queued, fn) },
	})

	run(t, vm, `
		var count = 0;
		adapter.on("stateChange", function () { count++; });
		adapter.subscribeStates("*");
	`)
	st.PublishState("test.0.a", store.State{store.KeyVal: 1})
	assert.Equal(t, int64(0), vm.Get("count").ToInteger())
	require.Len(t, queued, 1)

	queued[0]()
	assert.Equal(t, int64(1), vm.Get("count").ToInteger())
}

func TestSubscribeRejectsBadPattern(t *testing.T) {
	vm, _, _ := newTestAdapter(t, Options{})
	_, err := vm.RunString(`adapter.subscribeStates(42)`)
	assert.Error(t, err)
}

func TestTimerDelegation(t *testing.T) {
	vm, _, _ := newTestAdapter(t, Options{})

	_, err := vm.RunString(`adapter.setTimeout(function () {}, 10)`)
	assert.Error(t, err, "no global timers on a bare runtime")

	var delay int64
	require.NoError(t, vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		delay = call.Argument(1).ToInteger()
		return vm.ToValue(7)
	}))
	assert.Equal(t, int64(7), run(t, vm, `adapter.setTimeout(function () {}, 50)`).ToInteger())
	assert.Equal(t, int64(50), delay)
}

func TestObserverSeesCalls(t *testing.T) {
	var names []string
	vm, _, _ := newTestAdapter(t, Options{Observer: func(name string) { names = append(names, name) }})

	run(t, vm, `adapter.getState("a", function () {}); adapter.log.info("x");`)
	assert.Equal(t, []string{"getState", "info"}, names)
}
