package sim_test

// Blank import triggers sim/clex's init(), which registers the "clex" energy
// model. This allows package sim's internal test files to build models from
// settings without directly importing sim/clex (which would create an import
// cycle).
import _ "github.com/lattice-mc/lattice-mc/sim/clex"
