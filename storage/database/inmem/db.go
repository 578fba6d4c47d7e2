// Package inmemdb keeps every repository in memory; used by tests and database-less dev runs.
package inmemdb

import (
	"sync"

	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/enrollment"
	"github.com/trezcool/darasa/core/liveclass"
	"github.com/trezcool/darasa/core/material"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/user"
)

type (
	DB struct {
		user         *table[user.User]
		notification *table[notification.Notification]
		course       *table[course.Course]
		module       *table[course.Module]
		coupon       *table[enrollment.Coupon]
		enrollment   *table[enrollment.Enrollment]
		assignment   *table[assignment.Assignment]
		submission   *table[assignment.Submission]
		session      *table[liveclass.Session]
		attendance   *table[liveclass.Attendance]
		material     *table[material.Material]
	}

	// table keeps rows in insertion order so that sorting ties are deterministic.
	table[T any] struct {
		sync.RWMutex
		rows map[string]T
		keys []string
	}
)

func Open() *DB {
	return &DB{
		user:         newTable[user.User](),
		notification: newTable[notification.Notification](),
		course:       newTable[course.Course](),
		module:       newTable[course.Module](),
		coupon:       newTable[enrollment.Coupon](),
		enrollment:   newTable[enrollment.Enrollment](),
		assignment:   newTable[assignment.Assignment](),
		submission:   newTable[assignment.Submission](),
		session:      newTable[liveclass.Session](),
		attendance:   newTable[liveclass.Attendance](),
		material:     newTable[material.Material](),
	}
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

// the methods below expect the caller to hold the table lock.

func (t *table[T]) list() []T {
	rows := make([]T, 0, len(t.keys))
	for _, k := range t.keys {
		rows = append(rows, t.rows[k])
	}
	return rows
}

func (t *table[T]) get(key string) (T, bool) {
	row, ok := t.rows[key]
	return row, ok
}

func (t *table[T]) put(key string, row T) {
	if _, ok := t.rows[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.rows[key] = row
}

func (t *table[T]) remove(keys ...string) int {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := t.rows[k]; ok {
			drop[k] = true
			delete(t.rows, k)
		}
	}
	if len(drop) == 0 {
		return 0
	}
	kept := t.keys[:0]
	for _, k := range t.keys {
		if !drop[k] {
			kept = append(kept, k)
		}
	}
	t.keys = kept
	return len(drop)
}

// removeWhere deletes the rows matching fn and returns how many went.
func (t *table[T]) removeWhere(fn func(T) bool) int {
	var keys []string
	for _, k := range t.keys {
		if fn(t.rows[k]) {
			keys = append(keys, k)
		}
	}
	return t.remove(keys...)
}
