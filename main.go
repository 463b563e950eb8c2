// parley - single-conversation terminal chat over local and cloud models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/parley/internal/cli"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/orchestrator"
	"github.com/jeranaias/parley/internal/provider"
	"github.com/jeranaias/parley/internal/provider/ollama"
	"github.com/jeranaias/parley/internal/provider/openrouter"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n%s", err, cli.Usage())
		os.Exit(2)
	}
	if args.ShowHelp {
		fmt.Print(cli.Usage())
		return
	}
	if args.ShowVersion {
		fmt.Printf("parley %s (%s)\n", Version, GitCommit)
		return
	}

	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args cli.Args) error {
	profilePath := args.ProfilePath
	if profilePath == "" {
		var err error
		profilePath, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	profile, err := config.Load(profilePath)
	if err != nil {
		return err
	}

	closeLog, err := setupLogging(profile, args.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		log.SetOutput(io.Discard)
	} else {
		defer closeLog()
	}

	providers, err := buildProviders(profile)
	if err != nil {
		return err
	}

	chatPath, err := resolveChatPath(profile, args.ChatPath)
	if err != nil {
		return err
	}
	if !storage.Exists(chatPath) {
		if _, err := storage.Create(chatPath); err != nil {
			return err
		}
	}

	timeout := profile.Timeout()
	if args.TimeoutSet {
		timeout = args.Timeout
	}

	backend := profile.Backends[profile.DefaultBackend]
	state := session.New(profile.DefaultBackend, backend.Model, timeout)

	orch, err := orchestrator.New(profile, providers, state, chatPath)
	if err != nil {
		return err
	}

	log.Printf("session start: profile=%s chat=%s backend=%s", profilePath, chatPath, profile.DefaultBackend)

	// Piped stdin gets no banner; the transcript is the output.
	quiet := args.Quiet || !cli.IsTTY()
	repl := cli.NewREPL(orch, filepath.Join(profile.Dir(), "history"), quiet)
	return repl.Run()
}

// buildProviders constructs one provider per configured backend. Credential
// resolution failures degrade to an unconfigured client so the session can
// still start against the remaining backends.
func buildProviders(profile *config.Profile) (*provider.Registry, error) {
	resolver := &config.Resolver{}
	registry := provider.NewRegistry()

	for name, b := range profile.Backends {
		switch b.Kind {
		case config.KindOllama:
			registry.Register(ollama.New(name, b.BaseURL))
		case config.KindOpenRouter:
			key, err := resolver.Resolve(b.Credential)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: backend %s: credential unavailable: %v\n", name, err)
				key = ""
			}
			client := openrouter.New(name, key, b.BaseURL)
			log.Printf("backend %s: openrouter key fingerprint %s", name, client.KeyFingerprint())
			registry.Register(client)
		default:
			return nil, fmt.Errorf("backend %q: unknown kind %q", name, b.Kind)
		}
	}
	return registry, nil
}

// resolveChatPath returns the conversation file path, generating a fresh
// timestamped name under the profile's chat directory when none was given.
func resolveChatPath(profile *config.Profile, arg string) (string, error) {
	if arg != "" {
		if filepath.IsAbs(arg) {
			return filepath.Clean(arg), nil
		}
		if resolved, err := profile.ResolvePath(arg); err == nil {
			return resolved, nil
		}
		// A bare relative path on the command line is anchored to the
		// working directory, unlike in-session /switch.
		return filepath.Abs(arg)
	}

	chatDir, err := profile.ResolvePath(profile.ChatDir)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.json",
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8])
	return filepath.Join(chatDir, name), nil
}

// setupLogging directs the stdlib logger at a dated file under the log
// directory.
func setupLogging(profile *config.Profile, override string) (func(), error) {
	dir := override
	if dir == "" {
		var err error
		dir, err = profile.ResolvePath(profile.LogDir)
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "parley_"+time.Now().Format("20060102")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}

	log.SetOutput(f)
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	return func() { f.Close() }, nil
}
