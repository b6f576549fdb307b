package memory

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/recall/core"
)

func TestJoinDocuments(t *testing.T) {
	assert.Empty(t, JoinDocuments(nil))
	assert.Equal(t, "a\nb", JoinDocuments([]*Record{{Document: "a"}, {Document: "b"}}))
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("My favorite color is blue", "What is my favorite color?")
	assert.Equal(t, []core.Message{
		core.SystemMessage("You are a helpful assistant with memory.\nRELEVANT MEMORIES:\nMy favorite color is blue\n\nAnswer the user's question using these memories."),
		core.UserMessage("What is my favorite color?"),
	}, msgs)

	msgs = BuildMessages("", "Hi")
	assert.Equal(t, GenericInstruction, msgs[0].Content)
}

func TestDisplayContext(t *testing.T) {
	assert.Equal(t, NoMemoryPlaceholder, DisplayContext(""))
	assert.Equal(t, "x", DisplayContext("x"))
}

func TestRecordRoundTripThroughMetadata(t *testing.T) {
	rec := NewRecord("I have two cats", 4)
	back := RecordFromStorage(rec.ID, rec.Document, nil, rec.Metadata())
	assert.Equal(t, rec.Turn, back.Turn)
	assert.Equal(t, rec.CreatedAt.Unix(), back.CreatedAt.Unix())
}

func TestTruncateLog(t *testing.T) {
	assert.Equal(t, "short", truncateLog("short", 50))
	assert.Equal(t, "abc...", truncateLog("abcdef", 3))

	got := truncateLog("café ☕ au lait", 5)
	assert.Equal(t, "café ...", got)
	assert.True(t, utf8.ValidString(truncateLog("☕☕☕☕", 2)))
	assert.Equal(t, "☕☕...", truncateLog("☕☕☕☕", 2))
}
