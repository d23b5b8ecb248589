// Package cache implements the persistent, size-bounded disk cache that sits
// between the archive pipeline and the network. One file per URL lives in
// the cache directory; the name is derived by FileName. A Store guarantees a
// single in-flight download per key, publishes downloads with an atomic
// rename from a ".bak" temp file, and evicts the least recently accessed
// files that no reader currently holds open. When space cannot be reserved
// the caller receives the live network body instead of an error.
package cache
