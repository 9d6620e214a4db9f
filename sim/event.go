package sim

// Event is a proposed single-site occupant change and the extensive property
// changes it implies. Events are owned by the chain that proposed them and
// are overwritten by the next Propose.
type Event struct {
	Site              int
	CurrentOccupant   int
	CandidateOccupant int

	DFormationEnergy float64   // extensive
	DCorr            []float64 // extensive
	DCompN           []float64 // extensive species counts
	DEta             []float64 // extensive; nil without an order parameter
	DComp            []float64 // change in parametric composition, extensive

	// DPotentialEnergy is DFormationEnergy - sum_k mu_k * DComp_k.
	DPotentialEnergy float64
}

func (e *Event) fill(site, cur, cand int, d Properties, dComp []float64, mu []float64) {
	e.Site = site
	e.CurrentOccupant = cur
	e.CandidateOccupant = cand
	e.DFormationEnergy = d.FormationEnergy
	e.DCorr = d.Corr
	e.DCompN = d.CompN
	e.DEta = d.Eta
	e.DComp = dComp
	e.DPotentialEnergy = d.FormationEnergy
	for k := range mu {
		e.DPotentialEnergy -= mu[k] * dComp[k]
	}
}
