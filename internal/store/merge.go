package store

// mergeDocs deep-merges src over a copy of base. Nested maps are merged key
// by key, everything else in src replaces the base value. Neither input is
// modified.
func mergeDocs[B ~map[string]any, S ~map[string]any](base B, src S) map[string]any {
	out := cloneMap(base)
	mergeInto(out, map[string]any(src))
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeInto(dstMap, srcMap)
			continue
		}
		dst[k] = cloneValue(v)
	}
}

func cloneMap[M ~map[string]any](m M) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Object:
		return cloneMap(t)
	case State:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Extend deep-merges patch over a copy of base, the way extendObject
// combines an existing object with a partial update.
func Extend(base Object, patch map[string]any) Object {
	if base == nil {
		base = Object{}
	}
	return Object(mergeDocs(base, patch))
}
