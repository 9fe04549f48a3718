package fl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/absmach/fedagg/pkg/codec"
)

const (
	roundPrefix = "round_"
	modelPrefix = "model_v"
	fileExt     = ".json"
	dirPerm     = 0o755
	filePerm    = 0o644
)

// PersistentStorage keeps round snapshots and aggregated models as JSON
// files so a restarted coordinator can serve earlier model versions.
type PersistentStorage struct {
	mu        sync.RWMutex
	roundsDir string
	modelsDir string
}

// modelRecord is the on-disk form of a Model; the value is kept as a
// marshaled codec envelope.
type modelRecord struct {
	Version  int            `json:"version"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Envelope []byte         `json:"envelope"`
}

func NewPersistentStorage(roundsDir, modelsDir string) (*PersistentStorage, error) {
	for _, dir := range []string{roundsDir, modelsDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return &PersistentStorage{roundsDir: roundsDir, modelsDir: modelsDir}, nil
}

func (ps *PersistentStorage) SaveRound(roundID string, state *RoundState) error {
	path, err := ps.roundPath(roundID)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	return writeJSON(path, state)
}

func (ps *PersistentStorage) LoadRound(roundID string) (*RoundState, error) {
	path, err := ps.roundPath(roundID)
	if err != nil {
		return nil, err
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var state RoundState
	if err := readJSON(path, &state); err != nil {
		return nil, err
	}

	return &state, nil
}

// ListRounds returns the stored round IDs in lexical order.
func (ps *PersistentStorage) ListRounds() ([]string, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	names, err := fileNames(ps.roundsDir)
	if err != nil {
		return nil, err
	}

	ids := []string{}
	for _, name := range names {
		id, ok := strings.CutPrefix(name, roundPrefix)
		if !ok {
			continue
		}
		if id, ok = strings.CutSuffix(id, fileExt); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	return ids, nil
}

func (ps *PersistentStorage) SaveModel(experimentID string, model Model) error {
	dir, err := ps.experimentDir(experimentID)
	if err != nil {
		return err
	}

	envelope, err := codec.SerializeValue(model.Value)
	if err != nil {
		return fmt.Errorf("failed to serialize model value: %w", err)
	}
	payload, err := envelope.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal model envelope: %w", err)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	return writeJSON(modelPath(dir, model.Version), modelRecord{
		Version:  model.Version,
		Metadata: model.Metadata,
		Envelope: payload,
	})
}

func (ps *PersistentStorage) LoadModel(experimentID string, version int) (*Model, error) {
	dir, err := ps.experimentDir(experimentID)
	if err != nil {
		return nil, err
	}

	ps.mu.RLock()
	var record modelRecord
	err = readJSON(modelPath(dir, version), &record)
	ps.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	envelope, err := codec.Unmarshal(record.Envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal model envelope: %w", err)
	}
	value, _, err := codec.DeserializeValue(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize model value: %w", err)
	}

	return &Model{
		Version:  record.Version,
		Value:    value,
		Metadata: record.Metadata,
	}, nil
}

// ListModels returns the stored versions of an experiment in ascending
// order. An experiment without models yields an empty list.
func (ps *PersistentStorage) ListModels(experimentID string) ([]int, error) {
	dir, err := ps.experimentDir(experimentID)
	if err != nil {
		return nil, err
	}

	ps.mu.RLock()
	names, err := fileNames(dir)
	ps.mu.RUnlock()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return []int{}, nil
	case err != nil:
		return nil, err
	}

	versions := []int{}
	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, modelPrefix+"%d"+fileExt, &version); err == nil {
			versions = append(versions, version)
		}
	}
	slices.Sort(versions)

	return versions, nil
}

func (ps *PersistentStorage) roundPath(roundID string) (string, error) {
	id := sanitizeID(roundID)
	if id == "" {
		return "", fmt.Errorf("%w: round %q", ErrInvalidID, roundID)
	}

	return filepath.Join(ps.roundsDir, roundPrefix+id+fileExt), nil
}

func (ps *PersistentStorage) experimentDir(experimentID string) (string, error) {
	id := sanitizeID(experimentID)
	if id == "" {
		return "", fmt.Errorf("%w: experiment %q", ErrInvalidID, experimentID)
	}

	return filepath.Join(ps.modelsDir, id), nil
}

func modelPath(dir string, version int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d%s", modelPrefix, version, fileExt))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}

	return nil
}

func fileNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	return names, nil
}

// sanitizeID keeps only characters that are safe in a file name, which also
// strips path traversal sequences.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, id)
}
