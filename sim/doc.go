// Package sim provides the grand-canonical Monte Carlo engine for lattice
// models.
//
// # Reading Guide
//
// Start with these files to understand the Monte Carlo kernel:
//   - grand_canonical.go: chain state, event proposal, Metropolis acceptance
//   - completion.go: cutoffs, equilibration and convergence checks
//   - driver.go: the loop over conditions segments
//
// # Architecture
//
// The sim package defines interfaces and bridge types; implementations live in
// sub-packages:
//   - sim/clex/: reference cluster-expansion energy model
//   - sim/catalog/: configuration catalog backends (memory, SQLite, Badger)
//   - sim/output/: per-segment result files
//   - sim/telemetry/: Prometheus chain counters
//   - sim/trace/: decision trace recording
//
// Energy models register themselves via init() with RegisterEnergyModel and
// are built from settings by NewEnergyModel.
//
// # Key Interfaces
//
//   - EnergyModel: full and single-site delta evaluation of a supercell
//   - SymmetryProvider: supercell translations and factor group
//   - Catalog: persistent set of known canonical configurations
//   - SegmentRecorder: per-segment output
//   - ChainObserver: per-step counters
package sim
