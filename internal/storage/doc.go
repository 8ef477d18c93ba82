// Package storage keeps the most recent fetch between runs so that the
// notify and visualize commands can work without refetching.
//
// Two drivers exist:
//   - "json": a single pretty-printed JSON array, replaced atomically on save
//   - "sqlite": an articles table in a SQLite database file
//
// Both drivers replace the whole set on Save and return articles in saved
// order from Load.
package storage
