// Package stores provides the SQLite frame journal. Frames, their phase
// timings and the usage errors reported around them are written to a
// database whose schema is managed by embedded migrations.
package stores
