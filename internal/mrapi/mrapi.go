// Package mrapi is the core's only extension point: the user-supplied
// map/reduce transforms, and the partitioning hash every worker must
// agree on, since one worker's map output is read by another worker's
// reduce task.
package mrapi

import "hash/fnv"

// KeyValue is a single key/value pair emitted by a Map invocation and
// consumed, grouped by key, by a Reduce invocation.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MapFunc consumes one input file's name and contents and produces an
// unordered sequence of key/value pairs. Must be deterministic given
// its inputs; may emit zero pairs.
type MapFunc func(filename, contents string) []KeyValue

// ReduceFunc aggregates every value emitted for a single key into one
// output value. Must be deterministic given its inputs and invariant
// to the order of values.
type ReduceFunc func(key string, values []string) string

// Partition computes FNV-1a 32-bit over the UTF-8 bytes of the key,
// reduced mod r. Every worker must compute this identically, since one
// worker's map output is read by a different worker's reduce task.
func Partition(key string, r int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(r))
}
