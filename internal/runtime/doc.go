// Package runtime wires storage, config, and the component stores into a
// single-node allocd instance. It exposes Open/Close, a basic health check,
// and accessors used by the service layer and transports.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeInterval, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
package runtime
