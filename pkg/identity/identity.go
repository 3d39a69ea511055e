// Package identity persists the room and user identifiers the agent server
// uses to thread a conversation across runs.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Identity is the persisted conversation identity.
type Identity struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// Complete reports whether both identifiers are set.
func (id Identity) Complete() bool {
	return id.RoomID != "" && id.UserID != ""
}

// New generates a fresh identity.
func New() Identity {
	return Identity{RoomID: uuid.NewString(), UserID: uuid.NewString()}
}

// DefaultPath is identity.json under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "simli-avatar", "identity.json")
}

// Load reads the identity at path. If the file is missing, unreadable as
// JSON, or lacks either identifier, both are regenerated and saved.
func Load(path string) (Identity, error) {
	var id Identity

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jerr := json.Unmarshal(data, &id); jerr != nil {
			log.Warn().Str("module", "identity").Str("path", path).Err(jerr).Msg("corrupt identity file, regenerating")
			id = Identity{}
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Identity{}, fmt.Errorf("identity: read %s: %w", path, err)
	}

	if id.Complete() {
		log.Debug().Str("module", "identity").Str("room_id", id.RoomID).Str("user_id", id.UserID).Msg("identity loaded")
		return id, nil
	}

	id = New()
	if err := Save(path, id); err != nil {
		return Identity{}, err
	}
	log.Info().Str("module", "identity").Str("room_id", id.RoomID).Str("user_id", id.UserID).Msg("identity created")
	return id, nil
}

// Save writes id to path with owner-only permissions.
func Save(path string, id Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("identity: create dir: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("identity: write %s: %w", path, err)
	}
	return nil
}
