// Package natsclient manages the NATS connection shared by the cellbus
// registry, the NATS dispatch transport and the tissue store.
//
// A Client dials with backoff, tracks connection status through the nats.go
// disconnect and reconnect handlers, and hands out the JetStream context:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithClientName("cellbus"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// Buckets are created on first use and reopened afterwards:
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket: "CELL_REGISTRY",
//	})
//	kv := client.NewKVStore(bucket)
//
// KVStore adds compare-and-swap helpers on top of the bucket. UpdateWithRetry
// re-reads and reapplies the update function when another writer wins the
// race, and gives up with ErrKVMaxRetriesExceeded.
//
//	err := kv.UpdateWithRetry(ctx, "cells.finance.ledger", func(cur []byte) ([]byte, error) {
//	    return bytes.ToUpper(cur), nil
//	})
package natsclient
