package catalog

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lattice-mc/lattice-mc/sim"
)

// CurrentSchemaVersion is written with every encoded record.
const CurrentSchemaVersion = 1

var ErrVersionMismatch = errors.New("record version mismatch")

type envelope struct {
	SchemaVersion int               `json:"schema_version"`
	Record        sim.CatalogRecord `json:"record"`
}

// EncodeRecord serializes rec with the current schema version.
func EncodeRecord(rec sim.CatalogRecord) ([]byte, error) {
	return json.Marshal(envelope{SchemaVersion: CurrentSchemaVersion, Record: rec})
}

// DecodeRecord parses a payload written by EncodeRecord.
func DecodeRecord(data []byte) (sim.CatalogRecord, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return sim.CatalogRecord{}, err
	}
	if env.SchemaVersion != CurrentSchemaVersion {
		return sim.CatalogRecord{}, fmt.Errorf("%w: schema %d, want %d", ErrVersionMismatch, env.SchemaVersion, CurrentSchemaVersion)
	}
	return env.Record, nil
}
