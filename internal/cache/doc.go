// Package cache memoizes expensive source calls and whole pipeline runs.
//
// Values are JSON encoded under namespaced keys built with Key. Reads and
// writes never fail the caller: backend and decoding problems are logged and
// surface as misses. Redis, a JSON file, and a no-op backend are provided.
package cache
