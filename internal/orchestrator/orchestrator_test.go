// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley/internal/commands"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/provider"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/storage"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// scriptedProvider replays canned replies and records requests.
type scriptedProvider struct {
	name     string
	reply    string
	err      error
	requests []provider.Request
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Send(ctx context.Context, req provider.Request, onDelta provider.DeltaFunc) (*provider.Result, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if onDelta != nil {
		onDelta(provider.Delta{Text: p.reply})
	}
	return &provider.Result{Text: p.reply, Model: "test-model"}, nil
}

func (p *scriptedProvider) lastRequest(t *testing.T) provider.Request {
	t.Helper()
	require.NotEmpty(t, p.requests)
	return p.requests[len(p.requests)-1]
}

// captureOutput collects everything the orchestrator emits.
type captureOutput struct {
	deltas     []provider.Delta
	prints     []string
	assistants []string
}

func (c *captureOutput) Delta(d provider.Delta) { c.deltas = append(c.deltas, d) }
func (c *captureOutput) Print(s string)         { c.prints = append(c.prints, s) }
func (c *captureOutput) Assistant(s string)     { c.assistants = append(c.assistants, s) }

// =============================================================================
// FIXTURE
// =============================================================================

type fixture struct {
	orch *Orchestrator
	prov *scriptedProvider
	out  *captureOutput
	path string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "conv.json")
	_, err := storage.Create(path)
	require.NoError(t, err)

	prov := &scriptedProvider{name: "local", reply: "Hello there!"}
	providers := provider.NewRegistry()
	providers.Register(prov)

	profile := &config.Profile{
		DefaultBackend: "local",
		Backends: map[string]config.Backend{
			"local": {Kind: config.KindOllama, Model: "llama3.2:3b"},
		},
		SystemPrompts: map[string]string{"default": "Be concise."},
	}

	state := session.New("local", "llama3.2:3b", 30*time.Second)
	orch, err := New(profile, providers, state, path)
	require.NoError(t, err)

	return &fixture{orch: orch, prov: prov, out: &captureOutput{}, path: path}
}

func (f *fixture) handle(t *testing.T, line string) error {
	t.Helper()
	_, err := f.orch.HandleInput(context.Background(), line, f.out)
	return err
}

func (f *fixture) reload(t *testing.T) *model.Conversation {
	t.Helper()
	conv, err := storage.Load(f.path)
	require.NoError(t, err)
	return conv
}

// =============================================================================
// END TO END
// =============================================================================

func TestSendCommitsPair(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handle(t, "hello"))

	conv := f.orch.Conversation()
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Hello there!", conv.Messages[1].Text())
	assert.Equal(t, "test-model", conv.Messages[1].Model)

	// Disk matches memory.
	assert.True(t, conv.Equal(f.reload(t)))

	// Hex IDs were assigned.
	assert.Equal(t, "0", conv.Messages[0].HexID)
	assert.Equal(t, "1", conv.Messages[1].HexID)

	// Deltas streamed and the final text was delivered for rendering.
	assert.NotEmpty(t, f.out.deltas)
	assert.Equal(t, []string{"Hello there!"}, f.out.assistants)
}

func TestSendSystemPromptAndContext(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handle(t, "/system default"))
	require.NoError(t, f.handle(t, "first question"))
	require.NoError(t, f.handle(t, "second question"))

	req := f.prov.lastRequest(t)
	assert.Equal(t, "Be concise.", req.System)
	require.Len(t, req.Turns, 3)
	assert.Equal(t, "first question", req.Turns[0].Content)
	assert.Equal(t, "Hello there!", req.Turns[1].Content)
	assert.Equal(t, "second question", req.Turns[2].Content)
}

func TestEmptyMessageRejected(t *testing.T) {
	f := newFixture(t)

	err := f.handle(t, "   \n  ")
	var uiErr *commands.UserInputError
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, 0, f.orch.Conversation().Len())
}

// =============================================================================
// ERROR AND RETRY
// =============================================================================

func TestProviderFailureCommitsErrorPair(t *testing.T) {
	f := newFixture(t)
	f.prov.err = provider.NewError(provider.KindConnection, "connection refused", nil)

	err := f.handle(t, "hello")
	require.Error(t, err)

	conv := f.orch.Conversation()
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, model.RoleError, conv.Messages[1].Role)
	assert.True(t, conv.IsErrorBlocked())
	assert.True(t, f.orch.State().ErrorBlocked())
	assert.True(t, conv.Equal(f.reload(t)))

	// Plain sends are now rejected.
	err = f.handle(t, "another message")
	var uiErr *commands.UserInputError
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, 2, f.orch.Conversation().Len())
}

func TestRetryResendsExactPromptAndApplies(t *testing.T) {
	f := newFixture(t)

	// First exchange fails and blocks the conversation.
	f.prov.err = provider.NewError(provider.KindOverloaded, "busy", nil)
	require.Error(t, f.handle(t, "my exact prompt"))
	require.True(t, f.orch.State().ErrorBlocked())

	// Provider recovers; /retry resends the same prompt.
	f.prov.err = nil
	f.prov.reply = "recovered answer"
	require.NoError(t, f.handle(t, "/retry"))
	assert.Equal(t, session.ModeRetry, f.orch.State().Mode())

	req := f.prov.lastRequest(t)
	require.Len(t, req.Turns, 1)
	assert.Equal(t, "my exact prompt", req.Turns[0].Content)

	// Committed state is untouched while staged.
	assert.Equal(t, 2, f.orch.Conversation().Len())
	assert.Equal(t, model.RoleError, f.orch.Conversation().Messages[1].Role)

	// Apply commits truncation plus the attempt atomically.
	require.NoError(t, f.handle(t, "/apply"))
	conv := f.orch.Conversation()
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, "my exact prompt", conv.Messages[0].Text())
	assert.Equal(t, "recovered answer", conv.Messages[1].Text())
	assert.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
	assert.False(t, f.orch.State().ErrorBlocked())
	assert.Equal(t, session.ModeNormal, f.orch.State().Mode())
	assert.True(t, conv.Equal(f.reload(t)))
}

func TestRetryEditedPromptAndCancel(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handle(t, "original question"))
	require.NoError(t, f.handle(t, "/retry 0"))

	// Plain input while staged edits the prompt and reruns.
	f.prov.reply = "edited answer"
	require.NoError(t, f.handle(t, "edited question"))
	req := f.prov.lastRequest(t)
	assert.Equal(t, "edited question", req.Turns[len(req.Turns)-1].Content)

	// Cancel discards everything staged.
	require.NoError(t, f.handle(t, "/cancel"))
	assert.Equal(t, session.ModeNormal, f.orch.State().Mode())
	conv := f.orch.Conversation()
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, "original question", conv.Messages[0].Text())
}

func TestApplyWithoutAttempt(t *testing.T) {
	f := newFixture(t)
	err := f.handle(t, "/apply")
	var uiErr *commands.UserInputError
	require.ErrorAs(t, err, &uiErr)
}

func TestRetryTargetMustBeUserMessage(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, "hello"))

	err := f.handle(t, "/retry 1")
	var uiErr *commands.UserInputError
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, session.ModeNormal, f.orch.State().Mode())
}

// =============================================================================
// MUTATION ATOMICITY
// =============================================================================

func TestPersistenceFailureLeavesLiveStateUntouched(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, "hello"))

	before := f.orch.Conversation().Clone()

	// /dev/null is a file, so creating a directory under it fails.
	f.orch.mu.Lock()
	f.orch.path = "/dev/null/conv.json"
	f.orch.mu.Unlock()

	err := f.handle(t, "/rewind 0")
	var perr *storage.PersistenceError
	require.ErrorAs(t, err, &perr)

	assert.True(t, before.Equal(f.orch.Conversation()),
		"live conversation must be bit-identical after a failed persist")
}

// =============================================================================
// SECRET MODE
// =============================================================================

func TestSecretOneShotLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, "hello"))
	diskBefore, err := os.ReadFile(f.path)
	require.NoError(t, err)

	require.NoError(t, f.handle(t, "/secret tell me a secret"))

	// The exchange happened off the record.
	assert.Equal(t, 2, f.orch.Conversation().Len())
	diskAfter, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, diskBefore, diskAfter)
	assert.Equal(t, session.ModeNormal, f.orch.State().Mode())

	// Committed context was still sent.
	req := f.prov.lastRequest(t)
	assert.Equal(t, "tell me a secret", req.Turns[len(req.Turns)-1].Content)
	assert.Len(t, req.Turns, 3)
}

func TestSecretStickyToggle(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handle(t, "/secret on"))
	require.NoError(t, f.handle(t, "off the record one"))
	require.NoError(t, f.handle(t, "off the record two"))
	assert.Equal(t, 0, f.orch.Conversation().Len())
	assert.Equal(t, session.ModeSecret, f.orch.State().Mode())

	require.NoError(t, f.handle(t, "/secret off"))
	require.NoError(t, f.handle(t, "back on the record"))
	assert.Equal(t, 2, f.orch.Conversation().Len())
}

// =============================================================================
// STRUCTURAL COMMANDS
// =============================================================================

func TestRewindAndPurge(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, "one"))
	require.NoError(t, f.handle(t, "two"))
	require.NoError(t, f.handle(t, "three"))
	require.Equal(t, 6, f.orch.Conversation().Len())

	require.NoError(t, f.handle(t, "/rewind 4"))
	assert.Equal(t, 4, f.orch.Conversation().Len())

	// Unknown ID fails atomically.
	err := f.handle(t, "/purge 0 ff")
	var uiErr *commands.UserInputError
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, 4, f.orch.Conversation().Len())

	// Purge the first pair by ID.
	ids := []string{
		f.orch.Conversation().Messages[0].HexID,
		f.orch.Conversation().Messages[1].HexID,
	}
	require.NoError(t, f.handle(t, "/purge "+ids[0]+" "+ids[1]))
	conv := f.orch.Conversation()
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, "two", conv.Messages[0].Text())
	assert.True(t, conv.Equal(f.reload(t)))
}

func TestSwitchConversation(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, "in the first file"))

	other := filepath.Join(t.TempDir(), "other.json")
	_, err := storage.Create(other)
	require.NoError(t, err)

	require.NoError(t, f.handle(t, "/switch "+other))
	assert.Equal(t, other, f.orch.Path())
	assert.Equal(t, 0, f.orch.Conversation().Len())

	require.NoError(t, f.handle(t, "in the second file"))
	assert.Equal(t, 2, f.orch.Conversation().Len())

	// Relative paths are rejected.
	err = f.handle(t, "/switch other.json")
	require.ErrorIs(t, err, commands.ErrRelativePath)
}

func TestStructuralEditsRejectedWhileRetryStaged(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, "one"))
	require.NoError(t, f.handle(t, "two"))
	require.NoError(t, f.handle(t, "three"))
	require.Equal(t, 6, f.orch.Conversation().Len())

	// Stage a retry anchored at the last user message.
	require.NoError(t, f.handle(t, "/retry 4"))
	require.Equal(t, session.ModeRetry, f.orch.State().Mode())

	// The draft anchors by index; edits that would shift it are refused.
	ids := []string{
		f.orch.Conversation().Messages[0].HexID,
		f.orch.Conversation().Messages[1].HexID,
	}
	var uiErr *commands.UserInputError
	err := f.handle(t, "/purge "+ids[0]+" "+ids[1])
	require.ErrorAs(t, err, &uiErr)
	err = f.handle(t, "/rewind 2")
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, 6, f.orch.Conversation().Len())

	// The draft is still live: an edited prompt reruns cleanly.
	f.prov.reply = "rerun answer"
	require.NoError(t, f.handle(t, "three, revised"))
	req := f.prov.lastRequest(t)
	assert.Equal(t, "three, revised", req.Turns[len(req.Turns)-1].Content)

	require.NoError(t, f.handle(t, "/apply"))
	conv := f.orch.Conversation()
	require.Equal(t, 6, conv.Len())
	assert.Equal(t, "three, revised", conv.Messages[4].Text())
	assert.Equal(t, "rerun answer", conv.Messages[5].Text())

	// Back in normal mode the same edits go through.
	require.NoError(t, f.handle(t, "/rewind 2"))
	assert.Equal(t, 2, f.orch.Conversation().Len())
}

func TestSwitchRejectedOutsideNormalMode(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, "hello"))

	other := filepath.Join(t.TempDir(), "other.json")
	_, err := storage.Create(other)
	require.NoError(t, err)

	// A staged retry must be applied or cancelled first.
	require.NoError(t, f.handle(t, "/retry 0"))
	var uiErr *commands.UserInputError
	err = f.handle(t, "/switch "+other)
	require.ErrorAs(t, err, &uiErr)
	assert.Equal(t, f.path, f.orch.Path())
	require.NoError(t, f.handle(t, "/cancel"))

	// Sticky secret mode likewise pins the conversation.
	require.NoError(t, f.handle(t, "/secret on"))
	err = f.handle(t, "/switch "+other)
	require.ErrorAs(t, err, &uiErr)
	require.NoError(t, f.handle(t, "/secret off"))

	require.NoError(t, f.handle(t, "/switch "+other))
	assert.Equal(t, other, f.orch.Path())
}

// =============================================================================
// METADATA
// =============================================================================

func TestTitleAndSummary(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, "hello"))

	require.NoError(t, f.handle(t, "/title My Conversation"))
	assert.Equal(t, "My Conversation", f.orch.Conversation().Meta.Title)
	assert.Equal(t, "My Conversation", f.reload(t).Meta.Title)

	// Generation goes through the helper backend.
	f.prov.reply = "A Friendly Greeting"
	require.NoError(t, f.handle(t, "/title"))
	assert.Equal(t, "A Friendly Greeting", f.orch.Conversation().Meta.Title)

	f.prov.reply = "User and assistant exchanged greetings."
	require.NoError(t, f.handle(t, "/summary"))
	assert.Equal(t, "User and assistant exchanged greetings.", f.orch.Conversation().Meta.Summary)
	assert.True(t, f.orch.Conversation().Equal(f.reload(t)))
}

// =============================================================================
// SESSION CONTROL COMMANDS
// =============================================================================

func TestBackendModelTimeoutCommands(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handle(t, "/model custom:7b"))
	assert.Equal(t, "custom:7b", f.orch.State().Model())

	require.NoError(t, f.handle(t, "/model"))
	assert.Equal(t, "llama3.2:3b", f.orch.State().Model())

	require.NoError(t, f.handle(t, "/timeout 90"))
	assert.Equal(t, 90*time.Second, f.orch.State().Timeout())

	require.NoError(t, f.handle(t, "/timeout 2m"))
	assert.Equal(t, 2*time.Minute, f.orch.State().Timeout())

	require.NoError(t, f.handle(t, "/timeout 0"))
	assert.Equal(t, time.Duration(0), f.orch.State().Timeout())

	err := f.handle(t, "/backend nope")
	var uiErr *commands.UserInputError
	require.ErrorAs(t, err, &uiErr)
}

func TestUnknownCommandNeverSent(t *testing.T) {
	f := newFixture(t)

	err := f.handle(t, "/definitely-not-a-command")
	var uiErr *commands.UserInputError
	require.ErrorAs(t, err, &uiErr)
	assert.Empty(t, f.prov.requests)
	assert.Equal(t, 0, f.orch.Conversation().Len())
}

func TestQuit(t *testing.T) {
	f := newFixture(t)
	quit, err := f.orch.HandleInput(context.Background(), "/quit", f.out)
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestErrorsExcludedFromContext(t *testing.T) {
	f := newFixture(t)

	f.prov.err = provider.NewError(provider.KindTimeout, "slow", nil)
	require.Error(t, f.handle(t, "will fail"))
	f.prov.err = nil

	// Purge the failed pair rather than retrying.
	conv := f.orch.Conversation()
	require.NoError(t, f.handle(t, "/purge "+conv.Messages[0].HexID+" "+conv.Messages[1].HexID))

	require.NoError(t, f.handle(t, "fresh start"))
	req := f.prov.lastRequest(t)
	require.Len(t, req.Turns, 1)
	assert.Equal(t, "fresh start", req.Turns[0].Content)
}

func TestRetryErrorKeepsDraft(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, "hello"))
	require.NoError(t, f.handle(t, "/retry 0"))

	f.prov.err = provider.NewError(provider.KindConnection, "down again", nil)
	err := f.handle(t, "try once more")
	require.Error(t, err)
	require.False(t, errors.As(err, new(*commands.UserInputError)))

	// Still in retry mode with the previous attempt intact.
	assert.Equal(t, session.ModeRetry, f.orch.State().Mode())
	assert.NotNil(t, f.orch.State().Draft().LatestAttempt())

	f.prov.err = nil
	require.NoError(t, f.handle(t, "/apply"))
	assert.Equal(t, session.ModeNormal, f.orch.State().Mode())
}
