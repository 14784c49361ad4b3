package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// scriptTimeout bounds a single reply script run. Scripts that exceed it are
// abandoned and the pipeline moves on.
const scriptTimeout = 500 * time.Millisecond

// scriptModules is the allow-list of stdlib modules exposed to reply scripts.
// No os, no network.
var scriptModules = []string{"text", "math", "times", "rand", "fmt", "json"}

// ScriptRunner executes operator-installed per-room reply scripts. A script
// receives the incoming message in `message` and the room name in `room`, and
// replies by assigning a non-empty string to `reply`.
type ScriptRunner struct {
	logger *slog.Logger

	mu      sync.RWMutex
	sources map[string]string // room -> script source
}

// NewScriptRunner creates an empty runner. Rooms with no installed script are
// skipped by Reply.
func NewScriptRunner() *ScriptRunner {
	return &ScriptRunner{
		logger:  slog.Default().With("service", "bot_script"),
		sources: make(map[string]string),
	}
}

// Install validates that the script compiles and registers it for the room,
// replacing any previous script.
func (r *ScriptRunner) Install(room, source string) error {
	script := newReplyScript(source, room, "")
	if _, err := script.Compile(); err != nil {
		return fmt.Errorf("script does not compile: %w", err)
	}

	r.mu.Lock()
	r.sources[room] = source
	r.mu.Unlock()

	r.logger.Info("Reply script installed", "room", room)
	return nil
}

// Remove uninstalls the room's script.
func (r *ScriptRunner) Remove(room string) {
	r.mu.Lock()
	delete(r.sources, room)
	r.mu.Unlock()
}

// Reply runs the room's script against the message, if one is installed.
// Script errors, timeouts, and panics are logged and reported as no-reply so
// a broken script degrades to the next pipeline stage.
func (r *ScriptRunner) Reply(ctx context.Context, room, text string) (string, bool) {
	r.mu.RLock()
	source, ok := r.sources[room]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}

	compiled, err := newReplyScript(source, room, text).Compile()
	if err != nil {
		r.logger.Error("Reply script failed to compile", "room", room, "error", err)
		return "", false
	}

	execCtx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	// Run in a goroutine so a runaway script hits the timeout instead of
	// blocking the dispatcher.
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("script panic: %v", rec)
			}
		}()
		done <- compiled.RunContext(execCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			r.logger.Error("Reply script failed", "room", room, "error", err)
			return "", false
		}
	case <-execCtx.Done():
		r.logger.Error("Reply script timed out", "room", room, "timeout", scriptTimeout)
		return "", false
	}

	reply := compiled.Get("reply")
	if reply == nil || reply.IsUndefined() {
		return "", false
	}
	s := reply.String()
	if s == "" {
		return "", false
	}
	return s, true
}

func newReplyScript(source, room, message string) *tengo.Script {
	script := tengo.NewScript([]byte(source))
	script.SetImports(stdlib.GetModuleMap(scriptModules...))
	_ = script.Add("room", room)
	_ = script.Add("message", message)
	_ = script.Add("reply", "")
	return script
}
