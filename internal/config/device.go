package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/recall/internal/eventlog"
)

// DeviceFile is the name of the persisted device id inside DataDir.
const DeviceFile = "device-id"

// DeviceID returns the configured device id, or the one persisted in
// DataDir. On first use a new id is generated with gen and written there,
// so the id is stable across restarts.
func (c *Config) DeviceID(gen eventlog.DeviceIDGenerator) (eventlog.DeviceID, error) {
	if c.Device != "" {
		return eventlog.DeviceID(c.Device), nil
	}

	path := filepath.Join(c.DataDir, DeviceFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		id := strings.TrimSpace(string(data))
		if id == "" {
			return "", fmt.Errorf("device id: %s is empty", path)
		}
		return eventlog.DeviceID(id), nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("device id: %w", err)
	}

	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("device id: %w", err)
	}
	id := gen.Generate()
	if err := os.WriteFile(path, []byte(string(id)+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("device id: %w", err)
	}
	return id, nil
}
