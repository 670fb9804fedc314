package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContinuationDefault(t *testing.T) {
	assert.Equal(t, DefaultContinuation, Default().Continuation())
}

func TestContinuationOverride(t *testing.T) {
	b, err := NewBuilder(Templates{Continuation: "  Please continue autonomously.  "})
	require.NoError(t, err)
	assert.Equal(t, "Please continue autonomously.", b.Continuation())
}

func TestScheduledMissionInterpolatesContent(t *testing.T) {
	text := Default().ScheduledMission("Build widget X")
	assert.Contains(t, text, "「Build widget X」")
	assert.Contains(t, text, "WAITING")
}

func TestScheduledMissionFallback(t *testing.T) {
	text := Default().ScheduledMission("   ")
	assert.Contains(t, text, "「"+FallbackContent+"」")
}

func TestMissionPrompt(t *testing.T) {
	text := Default().Mission("Pizza Eater")
	assert.Contains(t, text, "本日は「Pizza Eater」を作ります。")
	assert.Contains(t, text, "開発を開始してください。")
}

func TestTemplateOverrides(t *testing.T) {
	b, err := NewBuilder(Templates{
		ScheduledMission: "Start {{.Content}} now",
		Mission:          "Today: {{.Task}}",
	})
	require.NoError(t, err)
	assert.Equal(t, "Start deploy now", b.ScheduledMission("deploy"))
	assert.Equal(t, "Today: Snowball Battle", b.Mission("Snowball Battle"))
}

func TestBadOverrideFailsAtConstruction(t *testing.T) {
	_, err := NewBuilder(Templates{ScheduledMission: "{{.Content"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduled_mission")
}

func TestExecutionErrorFallsBackToBuiltin(t *testing.T) {
	b, err := NewBuilder(Templates{ScheduledMission: "{{.Content.Missing}}"})
	require.NoError(t, err)
	text := b.ScheduledMission("deploy")
	assert.Contains(t, text, "「deploy」")
}
