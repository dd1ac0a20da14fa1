// Package conntable maps upstream client identifiers to the live SDK
// connection handles that serve them. The table owns its handles: removing
// an entry drops the handle, which closes it with the SDK's default reason.
//
// A Table is not safe for concurrent use; the transport that owns it is
// driven from a single goroutine.
package conntable

import (
	"github.com/BonsonW/renetsteam/sdk"
)

// Table maps client identifiers to connection handles. The zero value is not
// usable; create tables with New.
type Table struct {
	m map[uint64]sdk.NetConnection
}

// New returns an empty Table.
func New() *Table {
	return &Table{m: make(map[uint64]sdk.NetConnection)}
}

// Drop releases conn with the SDK's default close arguments. Close errors
// are discarded.
func Drop(conn sdk.NetConnection) {
	if conn == nil {
		return
	}

	_ = conn.Close(sdk.ConnectionEndInvalid, "", false)
}

// Insert stores conn under id. A handle already stored for id is dropped
// first so that at most one live handle exists per identity.
//
// Parameters:
//   - id: The client identifier
//   - conn: The handle; ownership moves into the table
func (t *Table) Insert(id uint64, conn sdk.NetConnection) {
	if prev, ok := t.m[id]; ok && prev != conn {
		Drop(prev)
	}

	t.m[id] = conn
}

// Get returns the handle for id without transferring ownership.
func (t *Table) Get(id uint64) (sdk.NetConnection, bool) {
	conn, ok := t.m[id]
	return conn, ok
}

// Has reports whether id has an entry.
func (t *Table) Has(id uint64) bool {
	_, ok := t.m[id]
	return ok
}

// Take removes the entry for id and hands its handle to the caller, who
// becomes responsible for closing it.
//
// Returns:
//   - The handle and true if the entry existed, or nil and false otherwise
func (t *Table) Take(id uint64) (sdk.NetConnection, bool) {
	conn, ok := t.m[id]
	if ok {
		delete(t.m, id)
	}

	return conn, ok
}

// Remove deletes the entry for id and drops its handle. Removing a missing
// id is a no-op.
//
// Returns:
//   - true if an entry was removed
func (t *Table) Remove(id uint64) bool {
	conn, ok := t.Take(id)
	if ok {
		Drop(conn)
	}

	return ok
}

// Keys returns a snapshot of the identifiers in unspecified order. It is safe
// to mutate the table while walking the snapshot.
func (t *Table) Keys() []uint64 {
	keys := make([]uint64, 0, len(t.m))
	for id := range t.m {
		keys = append(keys, id)
	}

	return keys
}

// Range calls f for each entry until f returns false. f must not mutate the
// table.
func (t *Table) Range(f func(id uint64, conn sdk.NetConnection) bool) {
	for id, conn := range t.m {
		if !f(id, conn) {
			return
		}
	}
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.m)
}

// Clear drops every handle and empties the table.
func (t *Table) Clear() {
	for id, conn := range t.m {
		delete(t.m, id)
		Drop(conn)
	}
}
