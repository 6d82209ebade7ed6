package testutil

import (
	"github.com/handylife-debug/webwaka-main-sub008/registry"
)

// Manifest returns a manifest for id ("sector/name") with one "calculate"
// action. Channels default to stable.
func Manifest(id, version string, channels ...string) registry.Manifest {
	sector, name, _ := registry.SplitID(id)
	if len(channels) == 0 {
		channels = []string{registry.StableChannel}
	}
	return registry.Manifest{
		ID:       id,
		Sector:   sector,
		Name:     name,
		Version:  version,
		Actions:  []string{"calculate"},
		Channels: channels,
	}
}

// TaxAndFeeManifest is the inventory/TaxAndFee cell published on the stable
// and canary channels.
func TaxAndFeeManifest(version string) registry.Manifest {
	m := Manifest("inventory/TaxAndFee", version, registry.StableChannel, "canary")
	m.Actions = []string{"calculate", "quote"}
	m.Description = "Tax and fee calculation"
	return m
}

// TissueStep builds one step of a tissue document.
func TissueStep(id, cellID, action string, inputs, outputs map[string]string) map[string]any {
	step := map[string]any{"id": id, "cellId": cellID, "action": action}
	if inputs != nil {
		step["inputs"] = inputs
	}
	if outputs != nil {
		step["outputs"] = outputs
	}
	return step
}

// TissueDoc builds a tissue document as posted to the operator API.
func TissueDoc(id string, steps ...map[string]any) map[string]any {
	list := make([]any, len(steps))
	for i, s := range steps {
		list[i] = s
	}
	return map[string]any{
		"id":      id,
		"name":    id,
		"version": "1.0.0",
		"steps":   list,
	}
}
