// register.go adds the cluster-expansion model to the sim energy model
// registry. Production code imports sim/clex directly; tests in package sim
// use clex_import_test.go for the blank import.
package clex

import "github.com/lattice-mc/lattice-mc/sim"

// ModelType is the registered energy model name.
const ModelType = "clex"

func init() {
	sim.RegisterEnergyModel(ModelType, NewModelFromYAML)
}
