// Package rescache is a resilient cache layer over interchangeable backends
// (redis, in-process memory, bigcache, bolt, or none).
//
// A Runtime owns the process's backend driver. It builds and health-probes
// the driver lazily; when that fails it switches to a no-op driver for a
// cooldown period instead of failing callers (unless Config.Strict is set).
// Transient backend errors are logged and read as misses or failed writes.
//
// Cache[V] is the typed API on top of a Runtime:
//
//	rt := rescache.NewRuntime(cfg, rescache.WithLogger(l))
//	posts, _ := rescache.New[Post](rt, rescache.Options[Post]{Prefix: "post:"})
//	p, err := posts.Remember(ctx, "1", time.Hour, loadPost)
//
// Components:
//   - provider: byte store contract plus one driver per technology.
//   - codec: Envelope tags each payload with its format (JSON, msgpack, CBOR,
//     raw) and still decodes untagged payloads written by older deployments.
//   - genstore: per-key generations that keep Remember from writing back a
//     value deleted during its recompute.
//   - tiered: an in-process L1 map in front of a Cache, grouped by prefix.
//
// Keys:
//
//	<prefix><key>                 - entry
//	<prefix><key>::neg            - "known empty" marker (short TTL)
//	<prefix>__cache_lock:<key>    - advisory stampede lock
//	<prefix>__cache_probe:<uuid>  - health probe sentinel
package rescache
