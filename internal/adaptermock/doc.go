// Package adaptermock provides a recording stand-in for the adapter object
// the host hands to adapter code.
//
// Object and state methods are backed by a store.Store and exist in
// callback and promise (<name>Async) form. Event registration records the
// ready, message, objectChange, stateChange and unload handlers so a driver
// can invoke them later. Everything else the host offers is present as a
// bare stub that tests configure as needed.
//
// Module builds the exports adapter code receives when it requires the
// host dependency:
//
//	exports, err := adaptermock.Module(vm, st, adaptermock.Options{Name: "foo"}, func(a *adaptermock.Adapter) {
//		created = a
//	})
//
// All methods must be called on the goroutine that owns the runtime.
package adaptermock
