package model

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// noteTagPattern matches the "[key:value]" tokens the remote's free-text
// note field carries structured annotations in (spec.md §6).
var noteTagPattern = regexp.MustCompile(`\[(\w+):([^\]]+)\]`)

// noteFieldOrder is the stable order the writer emits tags in, regardless
// of the order they were set: "paired before suspect_reason" (spec.md §6).
var noteFieldOrder = []string{"paired", "suspect_reason"}

// ParseNote splits a remote note into its free user text and the
// structured metadata tags embedded within it. Parsing tolerates
// arbitrary interleaving and whitespace.
func ParseNote(note string) (userText string, tags map[string]string) {
	tags = map[string]string{}
	if note == "" {
		return "", tags
	}
	for _, m := range noteTagPattern.FindAllStringSubmatch(note, -1) {
		tags[m[1]] = m[2]
	}
	clean := noteTagPattern.ReplaceAllString(note, "")
	clean = strings.Join(strings.Fields(clean), " ")
	return strings.TrimSpace(clean), tags
}

// EncodeNote re-serializes userText plus the given tags, emitting known
// fields (paired, suspect_reason) first in stable order and any remaining
// tags after, sorted by key for determinism. Nil/empty tag values are
// omitted.
func EncodeNote(userText string, tags map[string]string) string {
	var parts []string
	if userText != "" {
		parts = append(parts, userText)
	}

	emitted := map[string]bool{}
	for _, key := range noteFieldOrder {
		if v, ok := tags[key]; ok && v != "" {
			parts = append(parts, "["+key+":"+v+"]")
			emitted[key] = true
		}
	}
	// Any other keys, in a deterministic order.
	var rest []string
	for k := range tags {
		if !emitted[k] && tags[k] != "" {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		parts = append(parts, "["+k+":"+tags[k]+"]")
	}

	return strings.Join(parts, " ")
}

// PairedFromTag parses the "paired" tag's transaction id.
func PairedFromTag(tags map[string]string) (TxnID, bool) {
	v, ok := tags["paired"]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return TxnID(n), true
}
