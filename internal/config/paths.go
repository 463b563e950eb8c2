// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrRelativePath rejects bare relative paths in the profile and in
// path-taking commands. The anchor must be explicit.
var ErrRelativePath = errors.New("relative path not allowed; use an absolute path, ~/ for home, or @/ for the profile directory")

// ResolvePath expands a configured path to an absolute one. Accepted
// forms: absolute, ~/ (home), @/ (profile directory).
func (p *Profile) ResolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return "", errors.New("empty path")

	case strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil

	case strings.HasPrefix(path, "@/"):
		if p.dir == "" {
			return "", errors.New("profile directory unknown")
		}
		return filepath.Join(p.dir, path[2:]), nil

	case filepath.IsAbs(path):
		return filepath.Clean(path), nil

	default:
		return "", fmt.Errorf("%w: %s", ErrRelativePath, path)
	}
}
