// Package stub records and reconfigures JS-callable functions and derives
// promise-returning twins from callback-style implementations.
//
// A Set collects the methods of one JS object. Hand-written implementations
// are registered with Implement, configurable placeholders with Bare.
// Instrument then replaces each implementation named in a Table with a
// recording Stub that calls through, and for Normal and NoError methods adds
// a <name>Async stub built by Promisify:
//
//	set := stub.NewSet(vm, nil)
//	set.Implement("getState", getState)
//	set.Bare("sendTo")
//	_ = stub.Instrument(set, stub.Table{"getState": stub.Normal})
//	_ = set.Bind(adapterObj)
//
// Instrumented stubs are protected: Returns, Throws, CallsFake and
// CallsThrough fail with ErrProtected, unless the method name was passed to
// Instrument as overridable. Call history can always be reset.
package stub
