package composition

import (
	"maps"
	"slices"
)

// seed builds the shared context of a run from the execution input and the
// tissue input mapping.
func seed(t *Tissue, input map[string]any) map[string]any {
	ctx := maps.Clone(input)
	if ctx == nil {
		ctx = make(map[string]any)
	}
	for external, key := range t.Inputs {
		if v, ok := input[external]; ok {
			ctx[key] = v
		}
	}
	return ctx
}

// project builds a step payload. Context keys that are absent are omitted.
func project(shared map[string]any, mapping map[string]string) map[string]any {
	payload := make(map[string]any, len(mapping))
	for local, key := range mapping {
		if v, ok := shared[key]; ok {
			payload[local] = v
		}
	}
	return payload
}

// merge copies mapped response keys into the shared context.
func merge(shared, result map[string]any, mapping map[string]string) {
	for resultKey, key := range mapping {
		if v, ok := result[resultKey]; ok {
			shared[key] = v
		}
	}
}

// collect builds the run output from the tissue output mapping, or returns
// the whole context when none is declared.
func collect(t *Tissue, shared map[string]any) map[string]any {
	if len(t.Outputs) == 0 {
		return maps.Clone(shared)
	}
	return project(shared, t.Outputs)
}

func sortedValues(m map[string]string) []string {
	vals := slices.Collect(maps.Values(m))
	slices.Sort(vals)
	return slices.Compact(vals)
}
