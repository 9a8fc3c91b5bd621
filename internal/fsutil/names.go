// Package fsutil names the on-disk artifacts of the data flow: the
// intermediate and output namespaces and their .tmp staging
// counterparts, the sole publication mechanism being an atomic rename
// from the .tmp name to the final name.
package fsutil

import "fmt"

// IntermediateName is mr-{m}-{r}, the final name of the partitioned
// output of map task m destined for reduce task r.
func IntermediateName(m, r int) string {
	return fmt.Sprintf("mr-%d-%d", m, r)
}

// IntermediateTemp is the staging name rendered atomically into
// IntermediateName(m, r) once fully written.
func IntermediateTemp(m, r int) string {
	return IntermediateName(m, r) + ".tmp"
}

// OutputName is mr-out-{r}, the final name of reduce task r's output.
func OutputName(r int) string {
	return fmt.Sprintf("mr-out-%d", r)
}

// OutputTemp is the staging name rendered atomically into
// OutputName(r) once fully written.
func OutputTemp(r int) string {
	return OutputName(r) + ".tmp"
}
