// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// =============================================================================
// CREDENTIAL REFERENCES
// =============================================================================

// ErrKeychainUnavailable is returned for keychain: references when no
// keychain-backed resolver is wired in. Resolution through an OS keychain
// is an external collaborator.
var ErrKeychainUnavailable = errors.New("keychain credential resolution not available")

// CredentialResolver resolves a credential reference to the secret it
// names. Profiles store references, never secrets.
type CredentialResolver interface {
	Resolve(ref string) (string, error)
}

// Resolver is the built-in resolver. It handles literal:, env:, and
// file: references and rejects keychain: with ErrKeychainUnavailable.
type Resolver struct {
	// Keychain, when non-nil, handles keychain:<service> references.
	Keychain CredentialResolver
}

// Resolve implements CredentialResolver. An empty reference resolves to
// an empty credential.
func (r *Resolver) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}

	scheme, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return "", fmt.Errorf("malformed credential reference %q: missing scheme", ref)
	}

	switch scheme {
	case "literal":
		return rest, nil

	case "env":
		value, found := os.LookupEnv(rest)
		if !found {
			return "", fmt.Errorf("credential environment variable %s not set", rest)
		}
		return value, nil

	case "file":
		data, err := os.ReadFile(rest)
		if err != nil {
			return "", fmt.Errorf("read credential file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil

	case "keychain":
		if r.Keychain != nil {
			return r.Keychain.Resolve(rest)
		}
		return "", fmt.Errorf("%w (service %q)", ErrKeychainUnavailable, rest)

	default:
		return "", fmt.Errorf("unknown credential scheme %q", scheme)
	}
}
