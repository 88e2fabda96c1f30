package adaptermock

import (
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/adapter-harness/internal/stub"
)

// conventions lists every implemented method with its callback convention.
// Methods marked None get no Async twin.
var conventions = stub.Table{
	"getObject":                 stub.Normal,
	"setObject":                 stub.Normal,
	"setObjectNotExists":        stub.Normal,
	"extendObject":              stub.Normal,
	"delObject":                 stub.Normal,
	"getAdapterObjects":         stub.NoError,
	"getForeignObject":          stub.Normal,
	"getForeignObjects":         stub.Normal,
	"setForeignObject":          stub.Normal,
	"setForeignObjectNotExists": stub.Normal,
	"extendForeignObject":       stub.Normal,
	"delForeignObject":          stub.Normal,
	"getObjectView":             stub.Normal,
	"getObjectList":             stub.Normal,

	"getState":               stub.Normal,
	"getStates":              stub.Normal,
	"setState":               stub.Normal,
	"setStateChanged":        stub.Normal,
	"delState":               stub.Normal,
	"getForeignState":        stub.Normal,
	"getForeignStates":       stub.Normal,
	"setForeignState":        stub.Normal,
	"setForeignStateChanged": stub.Normal,
	"delForeignState":        stub.Normal,

	"on":                 stub.None,
	"once":               stub.None,
	"off":                stub.None,
	"removeListener":     stub.None,
	"removeAllListeners": stub.None,
	"terminate":          stub.None,

	"subscribeStates":           stub.None,
	"subscribeForeignStates":    stub.None,
	"unsubscribeStates":         stub.None,
	"unsubscribeForeignStates":  stub.None,
	"subscribeObjects":          stub.None,
	"subscribeForeignObjects":   stub.None,
	"unsubscribeObjects":        stub.None,
	"unsubscribeForeignObjects": stub.None,

	"setTimeout":    stub.None,
	"clearTimeout":  stub.None,
	"setInterval":   stub.None,
	"clearInterval": stub.None,
}

// overridable methods may be reconfigured by tests.
var overridable = []string{"getObjectView"}

// bareMethods are installed as behavior-less stubs for tests to configure.
var bareMethods = []string{
	// enums, devices, channels
	"getEnum", "getEnums", "addChannelToEnum", "deleteChannelFromEnum",
	"addStateToEnum", "deleteStateFromEnum",
	"createDevice", "createChannel", "createState", "deleteDevice",
	"deleteChannel", "deleteState", "getDevices", "getChannels",
	"getChannelsOf", "getStatesOf", "findForeignObject",

	// files
	"readFile", "writeFile", "delFile", "unlink", "rename", "mkdir",
	"readDir", "chmodFile", "fileExists",

	// messaging
	"sendTo", "sendToHost",

	// security, sessions
	"getCertificates", "checkPassword", "setPassword", "checkGroup",
	"calculatePermissions", "getSession", "setSession", "destroySession",
	"encrypt", "decrypt",

	// misc
	"formatValue", "formatDate", "getPort", "getHistory", "idToDCS",
	"stop", "restart", "disable",
}

func (a *Adapter) registerTimerMethods() {
	for _, name := range []string{"setTimeout", "clearTimeout", "setInterval", "clearInterval"} {
		a.methods.Implement(name, a.loopTimer(name))
	}
}

// loopTimer delegates to the runtime's global timer function, which the
// event loop provides.
func (a *Adapter) loopTimer(name string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(a.vm.Get(name))
		if !ok {
			panic(a.vm.NewTypeError("%s is not available in this runtime", name))
		}
		v, err := fn(goja.Undefined(), call.Arguments...)
		if err != nil {
			a.rethrow(err)
		}
		return v
	}
}
