// Package config loads the cellbus server configuration.
//
// Configuration is built in layers:
//
//  1. built-in defaults (Default)
//  2. JSON files added with Loader.AddLayer, deep-merged in order so a layer
//     only needs the keys it changes
//  3. CELLBUS_* environment variables (NATS_URLS, REGISTRY_STORAGE,
//     REGISTRY_SIGNING_KEY, SERVER_HTTP_PORT, ...)
//  4. optional validation
//
// Durations are written as Go duration strings ("30s", "5m").
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.json")
//	loader.AddLayer("configs/production.json")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//	    return err
//	}
//
// Files are size and depth limited, and relative paths may not escape the
// working directory.
package config
