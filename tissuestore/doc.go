// Package tissuestore persists tissue definitions in a storage.Store so an
// orchestrator can reload them on start:
//
//	store, _ := tissuestore.New(kv)
//	orch := composition.New(bus, composition.WithStore(store))
//	n, err := orch.LoadTissues(ctx)
//
// Every Save bumps the stored revision. On backends that implement
// storage.Updater the bump is a compare-and-swap.
package tissuestore
