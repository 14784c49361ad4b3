package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptRunner_ReplyFromScript(t *testing.T) {
	runner := NewScriptRunner()
	require.NoError(t, runner.Install("General", `
		text := import("text")
		if text.contains(message, "dice") {
			reply = "You rolled a 4. Probably."
		}
	`))

	reply, ok := runner.Reply(context.Background(), "General", "roll the dice")
	assert.True(t, ok)
	assert.Equal(t, "You rolled a 4. Probably.", reply)
}

func TestScriptRunner_NoReplyWhenScriptDeclines(t *testing.T) {
	runner := NewScriptRunner()
	require.NoError(t, runner.Install("General", `
		if message == "secret" {
			reply = "found it"
		}
	`))

	_, ok := runner.Reply(context.Background(), "General", "nothing relevant")
	assert.False(t, ok)
}

func TestScriptRunner_NoScriptInstalled(t *testing.T) {
	runner := NewScriptRunner()
	_, ok := runner.Reply(context.Background(), "General", "hello")
	assert.False(t, ok)
}

func TestScriptRunner_InstallRejectsBrokenScript(t *testing.T) {
	runner := NewScriptRunner()
	assert.Error(t, runner.Install("General", `if {`))
}

func TestScriptRunner_RuntimeErrorDegradesToNoReply(t *testing.T) {
	runner := NewScriptRunner()
	require.NoError(t, runner.Install("General", `reply = undefined_fn()`))

	_, ok := runner.Reply(context.Background(), "General", "hello")
	assert.False(t, ok)
}

func TestScriptRunner_TimeoutDegradesToNoReply(t *testing.T) {
	runner := NewScriptRunner()
	require.NoError(t, runner.Install("General", `
		for i := 0; true; i++ {
			reply = "never"
		}
	`))

	_, ok := runner.Reply(context.Background(), "General", "hello")
	assert.False(t, ok)
}

func TestScriptRunner_Remove(t *testing.T) {
	runner := NewScriptRunner()
	require.NoError(t, runner.Install("General", `reply = "hi"`))
	runner.Remove("General")

	_, ok := runner.Reply(context.Background(), "General", "hello")
	assert.False(t, ok)
}
