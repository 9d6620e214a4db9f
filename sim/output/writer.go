// Package output writes per-segment Monte Carlo results to disk.
//
// Layout under the output directory:
//
//	results.json                       one summary per conditions segment
//	conditions.<i>/final_state.json    conditions and final occupation
//	conditions.<i>/occupation_key.json species allowed on each site
//	conditions.<i>/observations.json.gz
//	conditions.<i>/trajectory.json.gz
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/lattice-mc/lattice-mc/sim"
)

// Writer is a sim.SegmentRecorder. Segments write to separate directories,
// so RecordSegment is safe for concurrent use with distinct segment indices.
type Writer struct {
	dir               string
	writeObservations bool
	writeTrajectory   bool
	occupationKey     [][]string
}

var _ sim.SegmentRecorder = (*Writer)(nil)

// NewWriter creates the output directory and precomputes the occupation key
// of model.
func NewWriter(s sim.OutputSettings, model sim.EnergyModel) (*Writer, error) {
	if s.OutputDirectory == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(s.OutputDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Writer{
		dir:               s.OutputDirectory,
		writeObservations: s.WriteObservations,
		writeTrajectory:   s.WriteTrajectory,
		occupationKey:     occupationKey(model),
	}, nil
}

func occupationKey(model sim.EnergyModel) [][]string {
	namer, _ := model.(sim.SpeciesNamer)
	key := make([][]string, model.NumSites())
	for site := range key {
		for _, species := range model.AllowedOccupants(site) {
			name := strconv.Itoa(species)
			if namer != nil {
				name = namer.SpeciesName(species)
			}
			key[site] = append(key[site], name)
		}
	}
	return key
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

func (w *Writer) RecordsTrajectory() bool { return w.writeTrajectory }

// SegmentDir returns the directory of conditions segment i.
func (w *Writer) SegmentDir(i int) string {
	return filepath.Join(w.dir, fmt.Sprintf("conditions.%d", i))
}

type finalState struct {
	Temperature  float64   `json:"temperature"`
	ParamChemPot []float64 `json:"param_chem_pot"`
	Occupation   []int     `json:"occupation"`
}

type trajectoryFile struct {
	Pass []int64 `json:"Pass"`
	Step []int64 `json:"Step"`
	DoF  [][]int `json:"DoF"`
}

func (w *Writer) RecordSegment(res *sim.SegmentResult, samplers *sim.SamplerSet, trajectory [][]int) error {
	dir := w.SegmentDir(res.Index)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := writeJSON(filepath.Join(dir, "final_state.json"), finalState{
		Temperature:  res.Temperature,
		ParamChemPot: res.ParamChemPot,
		Occupation:   res.FinalOccupation,
	}, false); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "occupation_key.json"), w.occupationKey, false); err != nil {
		return err
	}

	times := samplers.Times()
	pass := make([]int64, len(times))
	step := make([]int64, len(times))
	for i, t := range times {
		pass[i], step[i] = t.Pass, t.Step
	}
	if w.writeObservations {
		obs := map[string]any{"Pass": pass, "Step": step}
		for _, s := range samplers.Samplers() {
			obs[s.Name()] = s.Values()
		}
		if err := writeJSON(filepath.Join(dir, "observations.json.gz"), obs, true); err != nil {
			return err
		}
	}
	if w.writeTrajectory {
		if err := writeJSON(filepath.Join(dir, "trajectory.json.gz"), trajectoryFile{Pass: pass, Step: step, DoF: trajectory}, true); err != nil {
			return err
		}
	}
	logrus.Debugf("conditions.%d: output written to %s", res.Index, dir)
	return nil
}

// Finish writes results.json.
func (w *Writer) Finish(results []sim.SegmentResult) error {
	path := filepath.Join(w.dir, "results.json")
	if err := writeJSON(path, results, false); err != nil {
		return err
	}
	logrus.Infof("results written to %s", path)
	return nil
}

// writeJSON encodes v to path through a temporary file and a rename, so
// readers never see a partial file.
func writeJSON(path string, v any, compress bool) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	cleanup := true
	defer func() {
		if cleanup {
			_ = f.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	var out io.Writer = f
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(f)
		out = zw
	}
	enc := json.NewEncoder(out)
	if !compress {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("compressing %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s: %w", path, err)
	}
	cleanup = false
	return nil
}

// ReadObservations decodes an observations.json.gz file.
func ReadObservations(path string) (map[string][]float64, error) {
	var obs map[string][]float64
	if err := readGzipJSON(path, &obs); err != nil {
		return nil, err
	}
	return obs, nil
}

// ReadTrajectory decodes a trajectory.json.gz file into its occupations.
func ReadTrajectory(path string) ([][]int, error) {
	var traj trajectoryFile
	if err := readGzipJSON(path, &traj); err != nil {
		return nil, err
	}
	return traj.DoF, nil
}

func readGzipJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }()
	if err := json.NewDecoder(zr).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
