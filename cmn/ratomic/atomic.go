// Package ratomic wraps sync/atomic in the small set of counter types the
// node needs (int32/int64/bool), matching the field-level usage the teacher
// shows (atomic.Int64 "rxlast", atomic.Int32 "refc" in the xaction jogger).
/*
 * Copyright (c) 2024, zexec authors.
 */
package ratomic

import "sync/atomic"

type Int64 struct{ v int64 }

func (i *Int64) Store(n int64) { atomic.StoreInt64(&i.v, n) }
func (i *Int64) Load() int64   { return atomic.LoadInt64(&i.v) }
func (i *Int64) Inc() int64    { return atomic.AddInt64(&i.v, 1) }
func (i *Int64) Dec() int64    { return atomic.AddInt64(&i.v, -1) }
func (i *Int64) Add(d int64) int64 { return atomic.AddInt64(&i.v, d) }

type Int32 struct{ v int32 }

func (i *Int32) Store(n int32) { atomic.StoreInt32(&i.v, n) }
func (i *Int32) Load() int32   { return atomic.LoadInt32(&i.v) }
func (i *Int32) Inc() int32    { return atomic.AddInt32(&i.v, 1) }
func (i *Int32) Dec() int32    { return atomic.AddInt32(&i.v, -1) }

type Bool struct{ v int32 }

func (b *Bool) Store(val bool) {
	if val {
		atomic.StoreInt32(&b.v, 1)
	} else {
		atomic.StoreInt32(&b.v, 0)
	}
}
func (b *Bool) Load() bool { return atomic.LoadInt32(&b.v) != 0 }

// CAS attempts a compare-and-swap on the boolean, returning whether it took.
func (b *Bool) CAS(old, new bool) bool {
	var o, n int32
	if old {
		o = 1
	}
	if new {
		n = 1
	}
	return atomic.CompareAndSwapInt32(&b.v, o, n)
}
