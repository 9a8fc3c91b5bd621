package worker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/yashch22/mrcore/internal/fsutil"
	"github.com/yashch22/mrcore/internal/mrapi"
)

// runMap executes map task m against inputFile, partitions the result
// into r intermediate files, and atomically publishes each one. It
// returns false (reporting success=false upstream) on any I/O or
// transform error, cleaning up its own partial .tmp files first so a
// failed attempt never leaves orphans behind.
func (w *Worker) runMap(m int, inputFile string, r int) bool {
	contents, err := os.ReadFile(inputFile)
	if err != nil {
		w.log.Error().Err(err).Int("task_id", m).Str("file", inputFile).Msg("map: cannot read input")
		return false
	}

	kva := w.app.Map(inputFile, string(contents))

	buckets := make([][]mrapi.KeyValue, r)
	for _, kv := range kva {
		p := mrapi.Partition(kv.Key, r)
		buckets[p] = append(buckets[p], kv)
	}

	tempNames := make([]string, r)
	if err := writeMapPartitions(m, r, buckets, tempNames); err != nil {
		w.log.Error().Err(err).Int("task_id", m).Msg("map: failed to write intermediate files")
		cleanupTemp(tempNames)
		return false
	}

	for p := 0; p < r; p++ {
		if err := os.Rename(tempNames[p], fsutil.IntermediateName(m, p)); err != nil {
			w.log.Error().Err(err).Int("task_id", m).Int("partition", p).Msg("map: failed to publish intermediate file")
			cleanupTemp(tempNames[p:])
			return false
		}
	}

	return true
}

// writeMapPartitions writes one newline-delimited-JSON .tmp file per
// partition, even when a partition has zero records: the file must
// still exist for reduce to find and open.
func writeMapPartitions(m, r int, buckets [][]mrapi.KeyValue, tempNames []string) error {
	for p := 0; p < r; p++ {
		name := fsutil.IntermediateTemp(m, p)
		tempNames[p] = name

		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}

		bw := bufio.NewWriter(f)
		enc := json.NewEncoder(bw)
		var writeErr error
		for _, kv := range buckets[p] {
			if writeErr = enc.Encode(kv); writeErr != nil {
				break
			}
		}
		if writeErr == nil {
			writeErr = bw.Flush()
		}
		closeErr := f.Close()
		if writeErr != nil {
			return fmt.Errorf("write %s: %w", name, writeErr)
		}
		if closeErr != nil {
			return fmt.Errorf("close %s: %w", name, closeErr)
		}
	}
	return nil
}

func cleanupTemp(names []string) {
	for _, n := range names {
		if n != "" {
			os.Remove(n)
		}
	}
}

// runReduce executes reduce task r over the M intermediate files
// produced for partition r by every map task, writing sorted,
// tab-separated output and atomically publishing it. A missing
// intermediate file means an upstream map task never finished and
// fails the task rather than silently skipping it.
func (w *Worker) runReduce(r int, m int) bool {
	var kva []mrapi.KeyValue
	for mi := 0; mi < m; mi++ {
		name := fsutil.IntermediateName(mi, r)
		records, err := readIntermediate(name)
		if err != nil {
			w.log.Error().Err(err).Int("task_id", r).Str("file", name).Msg("reduce: missing or unreadable intermediate file")
			return false
		}
		kva = append(kva, records...)
	}

	sort.Slice(kva, func(i, j int) bool { return kva[i].Key < kva[j].Key })

	tempName := fsutil.OutputTemp(r)
	if err := writeReduceOutput(tempName, kva, w.app.Reduce); err != nil {
		w.log.Error().Err(err).Int("task_id", r).Msg("reduce: failed to write output")
		os.Remove(tempName)
		return false
	}

	if err := os.Rename(tempName, fsutil.OutputName(r)); err != nil {
		w.log.Error().Err(err).Int("task_id", r).Msg("reduce: failed to publish output")
		os.Remove(tempName)
		return false
	}

	return true
}

func readIntermediate(name string) ([]mrapi.KeyValue, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var records []mrapi.KeyValue
	dec := json.NewDecoder(f)
	for dec.More() {
		var kv mrapi.KeyValue
		if err := dec.Decode(&kv); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		records = append(records, kv)
	}
	return records, nil
}

func writeReduceOutput(path string, kva []mrapi.KeyValue, reduce mrapi.ReduceFunc) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)

	var writeErr error
	i := 0
	for i < len(kva) {
		j := i + 1
		for j < len(kva) && kva[j].Key == kva[i].Key {
			j++
		}
		values := make([]string, 0, j-i)
		for k := i; k < j; k++ {
			values = append(values, kva[k].Value)
		}
		output := reduce(kva[i].Key, values)
		if _, writeErr = fmt.Fprintf(bw, "%s\t%s\n", kva[i].Key, output); writeErr != nil {
			break
		}
		i = j
	}
	if writeErr == nil {
		writeErr = bw.Flush()
	}
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}
