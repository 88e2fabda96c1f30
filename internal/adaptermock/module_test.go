package adaptermock

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/adapter-harness/internal/store"
)

func newTestModule(t *testing.T, opts Options) (*goja.Runtime, *[]*Adapter) {
	t.Helper()
	vm := goja.New()
	var created []*Adapter
	exports, err := Module(vm, store.New(), opts, func(a *Adapter) {
		created = append(created, a)
	})
	require.NoError(t, err)
	require.NoError(t, vm.Set("utils", exports))
	return vm, &created
}

func TestModuleConstructorForms(t *testing.T) {
	vm, created := newTestModule(t, Options{Instance: 2})

	run(t, vm, `
		var readyCalls = 0;
		var a1 = new utils.Adapter({name: "foo", ready: function () { readyCalls++; }});
		var a2 = new utils.Adapter("bar");
		var a3 = utils.adapter({name: "baz"});
	`)
	require.Len(t, *created, 3)

	tests := []struct {
		global    string
		namespace string
	}{
		{"a1", "foo.2"},
		{"a2", "bar.2"},
		{"a3", "baz.2"},
	}
	for i, tt := range tests {
		a := (*created)[i]
		assert.Equal(t, tt.namespace, a.Namespace())
		assert.True(t, vm.Get(tt.global).StrictEquals(a.Object()), "%s is not the created surface", tt.global)
	}

	first := (*created)[0]
	_, err := first.Emit(EventReady)
	require.NoError(t, err)
	assert.Equal(t, int64(1), vm.Get("readyCalls").ToInteger())

	_, ok := (*created)[1].Handler(EventReady)
	assert.False(t, ok)
}

func TestModuleDefaultName(t *testing.T) {
	vm, created := newTestModule(t, Options{Name: "fallback"})
	run(t, vm, `new utils.Adapter({})`)
	require.Len(t, *created, 1)
	assert.Equal(t, "fallback", (*created)[0].Name())
}

func TestModuleSubclass(t *testing.T) {
	vm, created := newTestModule(t, Options{})

	run(t, vm, `
		class MyAdapter extends utils.Adapter {
			constructor(options) {
				super(Object.assign({}, options, {name: "my"}));
				this.started = false;
				this.on("ready", this.onReady.bind(this));
			}
			onReady() {
				this.started = true;
				this.setState("info.connection", true, true);
			}
		}
		var instance = new MyAdapter();
		var isSubclass = instance instanceof MyAdapter && instance instanceof utils.Adapter;
	`)
	require.Len(t, *created, 1)
	a := (*created)[0]
	assert.True(t, vm.Get("isSubclass").ToBoolean())
	assert.Equal(t, "my.0", a.Namespace())

	_, err := a.Emit(EventReady)
	require.NoError(t, err)
	assert.True(t, run(t, vm, "instance.started").ToBoolean())

	state, ok := a.Store().GetState("my.0.info.connection")
	require.True(t, ok)
	assert.Equal(t, true, state.Val())
}

func TestModuleDirectories(t *testing.T) {
	vm, _ := newTestModule(t, Options{DataDir: "/data"})

	run(t, vm, `var a = new utils.Adapter("dirs");`)
	assert.Equal(t, DefaultControllerDir, run(t, vm, "utils.controllerDir").String())
	assert.Equal(t, "/data", run(t, vm, "utils.getAbsoluteDefaultDataDir()").String())
	assert.Equal(t, "/data/dirs.0", run(t, vm, "utils.getAbsoluteInstanceDataDir(a)").String())

	_, err := vm.RunString(`utils.getAbsoluteInstanceDataDir(5)`)
	assert.Error(t, err)
}
