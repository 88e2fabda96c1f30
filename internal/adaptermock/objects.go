package adaptermock

import (
	"sort"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/adapter-harness/internal/shared/jsval"
	"github.com/GriffinCanCode/adapter-harness/internal/store"
)

func (a *Adapter) registerObjectMethods() {
	a.methods.Implement("getObject", a.getObject(false))
	a.methods.Implement("getForeignObject", a.getObject(true))
	a.methods.Implement("setObject", a.setObject(false))
	a.methods.Implement("setForeignObject", a.setObject(true))
	a.methods.Implement("setObjectNotExists", a.setObjectNotExists(false))
	a.methods.Implement("setForeignObjectNotExists", a.setObjectNotExists(true))
	a.methods.Implement("extendObject", a.extendObject(false))
	a.methods.Implement("extendForeignObject", a.extendObject(true))
	a.methods.Implement("delObject", a.delObject(false))
	a.methods.Implement("delForeignObject", a.delObject(true))
	a.methods.Implement("getAdapterObjects", a.getAdapterObjects)
	a.methods.Implement("getForeignObjects", a.getForeignObjects)
	a.methods.Implement("getObjectView", a.getObjectView)
	a.methods.Implement("getObjectList", a.getObjectList)
}

// getObject(id[, options], callback)
func (a *Adapter) getObject(foreign bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args, cb := splitCallback(call.Arguments)
		id := a.id(arg(args, 0), foreign)
		obj, ok := a.store.GetObject(id)
		a.reply(cb, goja.Null(), a.objectValue(obj, ok))
		return goja.Undefined()
	}
}

// setObject(id, obj[, options], callback)
func (a *Adapter) setObject(foreign bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args, cb := splitCallback(call.Arguments)
		id := a.id(arg(args, 0), foreign)
		a.publishObject(cb, id, arg(args, 1))
		return goja.Undefined()
	}
}

// setObjectNotExists(id, obj[, options], callback)
func (a *Adapter) setObjectNotExists(foreign bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args, cb := splitCallback(call.Arguments)
		id := a.id(arg(args, 0), foreign)
		if a.store.HasObject(id) {
			a.reply(cb, goja.Null())
			return goja.Undefined()
		}
		a.publishObject(cb, id, arg(args, 1))
		return goja.Undefined()
	}
}

func (a *Adapter) publishObject(cb goja.Callable, id string, v goja.Value) {
	doc, ok := jsval.ExportMap(v)
	if !ok {
		panic(a.vm.NewTypeError("object must be an object"))
	}
	doc[store.KeyID] = id
	if err := a.store.PublishObject(store.Object(doc)); err != nil {
		a.fail(cb, err)
		return
	}
	a.reply(cb, goja.Null(), a.idResult(id))
}

// extendObject(id, obj[, options], callback)
func (a *Adapter) extendObject(foreign bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args, cb := splitCallback(call.Arguments)
		id := a.id(arg(args, 0), foreign)
		patch, ok := jsval.ExportMap(arg(args, 1))
		if !ok {
			panic(a.vm.NewTypeError("object must be an object"))
		}

		existing, _ := a.store.GetObject(id)
		merged := store.Extend(existing, patch)
		merged[store.KeyID] = id
		if err := a.store.PublishObject(merged); err != nil {
			a.fail(cb, err)
			return goja.Undefined()
		}

		stored, _ := a.store.GetObject(id)
		result := a.vm.NewObject()
		_ = result.Set("id", id)
		_ = result.Set("value", jsval.ToJS(a.vm, map[string]any(stored)))
		a.reply(cb, goja.Null(), result, a.vm.ToValue(id))
		return goja.Undefined()
	}
}

// delObject(id[, options], callback)
func (a *Adapter) delObject(foreign bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args, cb := splitCallback(call.Arguments)
		a.store.DeleteObject(a.id(arg(args, 0), foreign))
		a.reply(cb, goja.Null())
		return goja.Undefined()
	}
}

// getAdapterObjects(callback) answers without an error argument.
func (a *Adapter) getAdapterObjects(call goja.FunctionCall) goja.Value {
	_, cb := splitCallback(call.Arguments)
	objects, err := a.store.GetObjects(a.namespace + ".*")
	if err != nil {
		panic(a.vm.NewGoError(err))
	}
	a.reply(cb, a.objectsValue(objects))
	return goja.Undefined()
}

// getForeignObjects(pattern[, type][, enums][, options], callback)
func (a *Adapter) getForeignObjects(call goja.FunctionCall) goja.Value {
	args, cb := splitCallback(call.Arguments)
	pattern := arg(args, 0)
	if !goja.IsString(pattern) {
		panic(a.vm.NewTypeError("pattern must be a string"))
	}

	var types []string
	if t := arg(args, 1); goja.IsString(t) {
		types = append(types, t.String())
	}

	objects, err := a.store.GetObjects(pattern.String(), types...)
	if err != nil {
		a.fail(cb, err)
		return goja.Undefined()
	}
	a.reply(cb, goja.Null(), a.objectsValue(objects))
	return goja.Undefined()
}

// getObjectView(design, search, params[, options], callback) serves the
// "system" design: search names an object type, params carries an optional
// startkey/endkey id range.
func (a *Adapter) getObjectView(call goja.FunctionCall) goja.Value {
	args, cb := splitCallback(call.Arguments)
	design := arg(args, 0).String()
	search := arg(args, 1).String()
	lo, hi := keyRange(arg(args, 2))

	rows := make([]any, 0)
	if design == "system" {
		objects, _ := a.store.GetObjects("*", search)
		for _, id := range sortedObjectIDs(objects) {
			if inRange(id, lo, hi) {
				rows = append(rows, map[string]any{"id": id, "value": map[string]any(objects[id])})
			}
		}
	}
	a.reply(cb, goja.Null(), jsval.ToJS(a.vm, map[string]any{"rows": rows}))
	return goja.Undefined()
}

// getObjectList(params[, options], callback)
func (a *Adapter) getObjectList(call goja.FunctionCall) goja.Value {
	args, cb := splitCallback(call.Arguments)
	lo, hi := keyRange(arg(args, 0))

	objects, _ := a.store.GetObjects("*")
	rows := make([]any, 0, len(objects))
	for _, id := range sortedObjectIDs(objects) {
		if inRange(id, lo, hi) {
			doc := map[string]any(objects[id])
			rows = append(rows, map[string]any{"id": id, "value": doc, "doc": doc})
		}
	}
	a.reply(cb, goja.Null(), jsval.ToJS(a.vm, map[string]any{"rows": rows}))
	return goja.Undefined()
}

func (a *Adapter) objectValue(obj store.Object, ok bool) goja.Value {
	if !ok {
		return goja.Null()
	}
	return jsval.ToJS(a.vm, map[string]any(obj))
}

func (a *Adapter) objectsValue(objects map[string]store.Object) goja.Value {
	out := make(map[string]any, len(objects))
	for id, obj := range objects {
		out[id] = map[string]any(obj)
	}
	return jsval.ToJS(a.vm, out)
}

func (a *Adapter) idResult(id string) goja.Value {
	result := a.vm.NewObject()
	_ = result.Set("id", id)
	return result
}

// keyRange reads startkey/endkey from a view params object.
func keyRange(params goja.Value) (lo, hi string) {
	m, ok := jsval.ExportMap(params)
	if !ok {
		return "", ""
	}
	lo, _ = m["startkey"].(string)
	hi, _ = m["endkey"].(string)
	return lo, hi
}

func inRange(id, lo, hi string) bool {
	return (lo == "" || id >= lo) && (hi == "" || id <= hi)
}

func sortedObjectIDs(objects map[string]store.Object) []string {
	ids := make([]string, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
