// Package main builds a Go plugin implementing the sample word-count
// application, kept deliberately minimal; build with
// `go build -buildmode=plugin -o wordcount.so ./cmd/apps/wordcount`.
package main

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/yashch22/mrcore/internal/mrapi"
)

// Map splits contents into words and emits one ("word", "1") pair per
// occurrence.
func Map(_, contents string) []mrapi.KeyValue {
	fields := strings.FieldsFunc(contents, func(r rune) bool { return !unicode.IsLetter(r) })
	kva := make([]mrapi.KeyValue, 0, len(fields))
	for _, w := range fields {
		kva = append(kva, mrapi.KeyValue{Key: w, Value: "1"})
	}
	return kva
}

// Reduce sums the occurrence counts for one word.
func Reduce(_ string, values []string) string {
	return strconv.Itoa(len(values))
}
