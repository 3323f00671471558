package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gorm.io/datatypes"
)

func TestLead_TagList(t *testing.T) {
	testCases := []struct {
		name     string
		tags     datatypes.JSON
		expected []string
	}{
		{name: "nil tags", tags: nil, expected: nil},
		{name: "empty array", tags: datatypes.JSON(`[]`), expected: []string{}},
		{name: "single tag", tags: datatypes.JSON(`["DISCONNECT"]`), expected: []string{"DISCONNECT"}},
		{name: "multiple tags keep order", tags: datatypes.JSON(`["vip","DISCONNECT"]`), expected: []string{"vip", "DISCONNECT"}},
		{name: "malformed json yields nil", tags: datatypes.JSON(`{not json`), expected: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lead := &Lead{Tags: tc.tags}
			assert.Equal(t, tc.expected, lead.TagList())
		})
	}
}

func TestLead_HasTag(t *testing.T) {
	lead := &Lead{Tags: datatypes.JSON(`["vip","DISCONNECT"]`)}

	assert.True(t, lead.HasTag(TagDisconnect))
	assert.True(t, lead.HasTag("vip"))
	assert.False(t, lead.HasTag("disconnect")) // tags are case-sensitive
	assert.False(t, lead.HasTag(TagStrategyReviewRequired))
}

func TestLead_AddTag(t *testing.T) {
	lead := &Lead{}

	lead.AddTag("vip")
	lead.AddTag(TagStrategyReviewRequired)
	assert.Equal(t, []string{"vip", TagStrategyReviewRequired}, lead.TagList())

	// Duplicates are skipped.
	lead.AddTag("vip")
	assert.Equal(t, []string{"vip", TagStrategyReviewRequired}, lead.TagList())
}

func TestActiveStages(t *testing.T) {
	stages := ActiveStages()

	assert.Contains(t, stages, StageNew)
	assert.Contains(t, stages, StageContacted)
	assert.Contains(t, stages, StageEngaged)
	assert.Contains(t, stages, StageQualified)
	assert.NotContains(t, stages, StageSuppressed)
	assert.NotContains(t, stages, StageTakeOver)
	assert.NotContains(t, stages, StageClosedWon)
	assert.NotContains(t, stages, StageClosedLost)
}

func TestWorkspace_FollowupBaseHours(t *testing.T) {
	testCases := []struct {
		preset   string
		expected int
	}{
		{preset: PresetGentle, expected: 72},
		{preset: PresetBalanced, expected: 48},
		{preset: PresetAggressive, expected: 24},
		{preset: "", expected: 48},
		{preset: "UNKNOWN", expected: 48},
	}

	for _, tc := range testCases {
		ws := &Workspace{FollowupPreset: tc.preset}
		assert.Equalf(t, tc.expected, ws.FollowupBaseHours(), "preset %q", tc.preset)
	}
}

func TestIsTerminalQueue(t *testing.T) {
	assert.True(t, IsTerminalQueue(QueueStatusSent))
	assert.True(t, IsTerminalQueue(QueueStatusAccepted))
	assert.True(t, IsTerminalQueue(QueueStatusFailed))
	assert.False(t, IsTerminalQueue(QueueStatusQueued))
	assert.False(t, IsTerminalQueue(QueueStatusDispatching))
	assert.False(t, IsTerminalQueue(QueueStatusRetryScheduled))
}

func TestIsTerminalInbound(t *testing.T) {
	assert.True(t, IsTerminalInbound(StatusInboundAIReplied))
	assert.True(t, IsTerminalInbound(StatusInboundHumanTakeover))
	assert.True(t, IsTerminalInbound(StatusInboundError))
	assert.False(t, IsTerminalInbound(StatusReceived))
	assert.False(t, IsTerminalInbound(StatusInboundProcessing))
}
