// Package osio provides stdio-style buffered streams over remote object
// storage.
//
// Code written against classic open/read/write/seek/tell/close semantics can
// operate transparently over a round-trip-expensive backend: each stream
// caches a contiguous window of the remote object in a local buffer,
// coalescing small transfers into few remote calls and seeking within the
// cached window without touching the backend at all. Transfers too large to
// cache profitably move directly between the caller's buffer and the remote
// object, bypassing the cache.
//
// A Session owns the configured backends and the table of open streams:
//
//	sess := osio.NewSession(osio.WithStore("mem", mem.New()))
//	stream, err := sess.Open(ctx, "mem://scores.dat", "w")
//	if err != nil {
//		// ...
//	}
//	stream.Write(data)
//	stream.Close()
//
// Names of the form scheme://rest route to the store registered for scheme;
// names without a scheme go to the default store (the local filesystem
// unless overridden).
//
// Streams are not safe for concurrent use; each stream belongs to one
// logical caller. The bytes moved are opaque to this package.
package osio
