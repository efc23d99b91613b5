package activation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const stateFileName = "activation.json"

// stateSchemaVersion is written into every state file. Files without the
// field (written by older SDK builds) are read as version 1.
const stateSchemaVersion = 1

// persistedState is the flat JSON layout of the activation state file.
type persistedState struct {
	SchemaVersion      int    `json:"schema_version,omitempty"`
	ActivationCode     string `json:"activation_code"`
	MachineID          string `json:"machine_id"`
	ActivatedAt        string `json:"activated_at"`
	ExpiresAt          string `json:"expires_at,omitempty"`
	IsValid            bool   `json:"is_valid"`
	CurrentActivations int    `json:"current_activations"`
	MaxActivations     int    `json:"max_activations"`
}

// Store persists activation state to a single JSON file.
//
// The default load policy is full-verify: the file is parsed and the
// stored machine fingerprint compared against a freshly computed one, so
// a state file copied to another machine does not activate it. The
// existence-only policy treats file presence as proof of activation and
// is intended only for contexts where a plugin host forbids any work
// during scanning.
//
// The file is not protected against concurrent multi-process writers;
// exactly one plugin instance is expected to own a given state path.
type Store struct {
	path          string
	existenceOnly bool
	machineID     func() string
	logger        *slog.Logger
}

// NewStore creates a store for the given path. machineID supplies the
// current fingerprint for the full-verify check.
func NewStore(path string, existenceOnly bool, machineID func() string, logger *slog.Logger) *Store {
	return &Store{
		path:          path,
		existenceOnly: existenceOnly,
		machineID:     machineID,
		logger:        logger,
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads persisted activation state. The boolean reports whether a
// usable activation record was found. Corruption and fingerprint
// mismatches are "no state", never an error: the engine falls back to
// not-activated rather than failing construction.
func (s *Store) Load() (Info, bool) {
	if s.path == "" {
		return Info{}, false
	}

	if s.existenceOnly {
		if _, err := os.Stat(s.path); err != nil {
			return Info{}, false
		}
		s.logger.Debug("activation state present, existence-only load",
			slog.String("path", s.path),
		)
		return Info{IsValid: true}, true
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read activation state",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		return Info{}, false
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("activation state is corrupt, treating as not activated",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return Info{}, false
	}

	if current := s.machineID(); state.MachineID != current {
		s.logger.Warn("activation state belongs to a different machine",
			slog.String("path", s.path),
			slog.String("stored_machine_id", truncateID(state.MachineID)),
			slog.String("current_machine_id", truncateID(current)),
		)
		return Info{}, false
	}

	s.logger.Debug("activation state loaded",
		slog.String("path", s.path),
		slog.Int("schema_version", state.SchemaVersion),
		slog.Bool("is_valid", state.IsValid),
	)

	return Info{
		ActivationCode:     state.ActivationCode,
		MachineID:          state.MachineID,
		ActivatedAt:        state.ActivatedAt,
		ExpiresAt:          state.ExpiresAt,
		CurrentActivations: state.CurrentActivations,
		MaxActivations:     state.MaxActivations,
		IsValid:            state.IsValid,
	}, true
}

// Save persists the activation record. The write goes through a
// temporary sibling and a rename so a crash never leaves a truncated
// state file.
func (s *Store) Save(info Info) error {
	if s.path == "" {
		return errors.New("no state path configured")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	state := persistedState{
		SchemaVersion:      stateSchemaVersion,
		ActivationCode:     info.ActivationCode,
		MachineID:          info.MachineID,
		ActivatedAt:        info.ActivatedAt,
		ExpiresAt:          info.ExpiresAt,
		IsValid:            info.IsValid,
		CurrentActivations: info.CurrentActivations,
		MaxActivations:     info.MaxActivations,
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal activation state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write activation state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace activation state: %w", err)
	}

	s.logger.Debug("activation state saved",
		slog.String("path", s.path),
		slog.Int("size_bytes", len(data)),
	)
	return nil
}

// Clear removes the state file. A missing file is not an error.
func (s *Store) Clear() error {
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove activation state: %w", err)
	}
	return nil
}

// truncateID shortens a fingerprint for logging so full machine IDs do
// not end up in log files.
func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
