package scope

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"

	"golang.org/x/exp/slices"
)

// Fingerprint returns a deterministic digest of the complete scope state:
// every rule of every database plus the replication filter lists. Two
// configurations share a fingerprint iff their database→(schema,table)→rule
// mappings and filter lists are equal. A schema change alone changes the
// digest even when the bare table name does not.
func Fingerprint(rules *Rules, filter *Filter) string {
	h := sha256.New()

	for _, db := range rules.Databases() {
		writeFields(h, "db", db)
		for _, key := range rules.SchemaOnlyKeys(db) {
			writeFields(h, "schema_only", key.Schema, key.Table)
		}
		for _, e := range rules.TableFilters(db) {
			writeFields(h, "table_filter", e.Key.Schema, e.Key.Table, e.Predicate)
		}
		for _, e := range rules.TimeFilters(db) {
			writeFields(h, "time_filter", e.Key.Schema, e.Key.Table, e.Filter.Column, e.Filter.Raw)
		}
	}

	writeSet(h, "include_databases", filter.includeDatabases.ToSlice())
	writeSet(h, "exclude_databases", filter.excludeDatabases.ToSlice())
	writeSet(h, "include_tables", filter.includeTables.ToSlice())
	writeSet(h, "exclude_tables", filter.excludeTables.ToSlice())

	return hex.EncodeToString(h.Sum(nil))
}

func writeSet(w io.Writer, kind string, values []string) {
	slices.Sort(values)
	writeFields(w, append([]string{kind}, values...)...)
}

// writeFields hashes each field length-prefixed, so adjacent fields can never
// concatenate into the same byte stream.
func writeFields(w io.Writer, fields ...string) {
	var buf [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(buf[:], uint64(len(f)))
		_, _ = w.Write(buf[:])
		_, _ = w.Write([]byte(f))
	}
}
