// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrRelativePath rejects bare relative paths in command arguments. A
// path the session's working directory would silently resolve is a
// footgun once conversations move between machines; the ~/ and @/
// markers make the anchor explicit.
var ErrRelativePath = errors.New("relative path not allowed; use an absolute path, ~/ for home, or @/ for the profile root")

// ValidatePath checks a path argument from a command like /switch.
// Accepted forms: absolute paths, ~/ (home-anchored), and @/
// (profile-root-anchored). Anything else is rejected with
// ErrRelativePath.
func ValidatePath(arg string) error {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return NewUserInputError("path required")
	}
	if strings.HasPrefix(arg, "~/") || strings.HasPrefix(arg, "@/") {
		return nil
	}
	if filepath.IsAbs(arg) {
		return nil
	}
	return ErrRelativePath
}
