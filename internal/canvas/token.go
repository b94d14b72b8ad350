package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// TokenFile holds a saved access token.
type TokenFile struct {
	Token   string    `json:"token"`
	Domain  string    `json:"domain"`
	User    string    `json:"user,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// TokenFilePath returns the default path for the token file under the
// user's XDG config directory.
func TokenFilePath() string {
	return filepath.Join(xdg.ConfigHome, "CanvasFileSync", "token.json")
}

// SaveToken writes tf to path, readable only by the user.
func SaveToken(path string, tf *TokenFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadToken reads a token file. A missing file returns nil and no error.
func LoadToken(path string) (*TokenFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", path, err)
	}
	return &tf, nil
}

// DeleteToken removes the token file. A missing file is not an error.
func DeleteToken(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
