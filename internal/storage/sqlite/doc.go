// Package sqlite stores per-run and per-train pipeline statistics in a
// SQLite database.
//
// The schema is versioned with golang-migrate; migrations are embedded in
// the binary and applied by Open. TrainStore implements pipeline.Sink so a
// store can be handed straight to pipeline.Run.
package sqlite
