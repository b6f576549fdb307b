package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall/core"
)

func TestManager_GetCreatesOncePerUser(t *testing.T) {
	m := NewManager(0)

	a := m.Get("alice")
	assert.Same(t, a, m.Get("alice"))
	assert.NotSame(t, a, m.Get("bob"))
	assert.Equal(t, core.DefaultUserID, m.Get("").UserID())
	assert.Equal(t, 3, m.Len())

	_, ok := m.Lookup("carol")
	assert.False(t, ok)
}

func TestSession_NextTurnAndObserve(t *testing.T) {
	s := NewManager(0).Get("alice")

	assert.Equal(t, 1, s.NextTurn())
	assert.Equal(t, 2, s.NextTurn())

	s.Observe(10)
	assert.Equal(t, 11, s.NextTurn())

	s.Observe(3)
	assert.Equal(t, 12, s.NextTurn())
}

func TestSession_AppendKeepsOrderAndCap(t *testing.T) {
	s := NewManager(4).Get("alice")

	s.Append("hi", "hello")
	s.Append("my name is Ada", "nice to meet you")
	s.Append("what is my name?", "Ada")

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, core.Turn{Role: core.RoleUser, Content: "my name is Ada"}, history[0])
	assert.Equal(t, core.Turn{Role: core.RoleAssistant, Content: "Ada"}, history[3])
}

func TestSession_HistoryIsACopy(t *testing.T) {
	s := NewManager(0).Get("alice")
	s.Append("hi", "hello")

	h := s.History()
	h[0].Content = "changed"
	assert.Equal(t, "hi", s.History()[0].Content)
}

func TestSession_ConcurrentNextTurn(t *testing.T) {
	s := NewManager(0).Get("alice")

	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(s.NextTurn(), true)
			assert.False(t, dup)
		}()
	}
	wg.Wait()
	assert.Equal(t, 51, s.NextTurn())
}
