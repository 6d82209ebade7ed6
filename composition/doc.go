// Package composition runs tissues: declarative pipelines of cell actions
// over one shared data context.
//
// A tissue lists steps. Each step projects context keys into its payload
// through its input mapping, calls the cell through a Caller (normally a
// dispatch.Bus), and writes mapped response keys back into the context.
// Steps run strictly in the order they are declared. Dependencies derived
// from the mappings are reported by Dependencies and logged when a step
// reads a key only a later step writes, but they never reorder execution.
//
// A failing step aborts the run with errors.CompositionStepError. Side
// effects of the steps that already ran are not undone.
//
// Every run is kept in a bounded per-tissue history. TissueHealth classifies
// the last ten runs: failed when more than half failed, degraded when any
// failed, unknown with no history.
//
// Organs group tissues. Only the sequential strategy executes: each tissue
// receives the organ input overlaid with the previous tissue's output.
//
//	orch := composition.New(bus, composition.WithStore(tissues))
//	err := orch.RegisterTissue(ctx, composition.Tissue{
//	    ID:   "checkout",
//	    Name: "Checkout",
//	    Steps: []composition.Step{
//	        {ID: "tax", CellID: "inventory/TaxAndFee", Action: "calculate",
//	            Inputs: map[string]string{"amount": "subtotal"},
//	            Outputs: map[string]string{"total": "total"}},
//	    },
//	})
//	res, err := orch.ExecuteTissue(ctx, "checkout", map[string]any{"subtotal": 100})
package composition
