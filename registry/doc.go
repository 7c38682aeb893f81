// Package registry tracks the containers a process has open.
//
// A Registry maps absolute file paths to loaded containers so that each
// file is decoded once and shared, and so that textures can be looked up
// across every open file. It holds a bounded number of containers; the
// least recently used one is evicted when the bound is reached, and a
// modified container is saved as it leaves. Metrics for opens, saves and
// evictions are exported through a Prometheus registerer.
//
// The Registry itself is safe for concurrent use. The containers it hands
// out are not; callers that share a container across goroutines must
// serialize access to it.
package registry
