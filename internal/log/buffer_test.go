package log

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func msg(text string) Entry {
	return Entry{Level: LevelInfo, Category: CatForm, Message: text}
}

func messages(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestNewRingBuffer_NormalizesCapacity(t *testing.T) {
	require.Equal(t, 5, NewRingBuffer(5).capacity)
	require.Equal(t, 1, NewRingBuffer(0).capacity)
	require.Equal(t, 1, NewRingBuffer(-5).capacity)
}

func TestRingBuffer_Wraparound(t *testing.T) {
	buf := NewRingBuffer(3)
	for _, s := range []string{"a", "b", "c", "d"} {
		buf.Add(msg(s))
	}

	require.Equal(t, []string{"b", "c", "d"}, messages(buf.GetLast(3)))
	require.Equal(t, 3, buf.Len())
}

func TestRingBuffer_GetLast_PartialBuffer(t *testing.T) {
	buf := NewRingBuffer(10)
	buf.Add(msg("a"))
	buf.Add(msg("b"))

	require.Equal(t, []string{"a", "b"}, messages(buf.GetLast(5)))
	require.Equal(t, []string{"b"}, messages(buf.GetLast(1)))
	require.Nil(t, buf.GetLast(0))
}

func TestRingBuffer_Filter(t *testing.T) {
	buf := NewRingBuffer(10)
	buf.Add(Entry{Level: LevelDebug, Message: "d"})
	buf.Add(Entry{Level: LevelWarn, Message: "w"})
	buf.Add(Entry{Level: LevelError, Message: "e"})
	buf.Add(Entry{Level: LevelInfo, Message: "i"})

	require.Equal(t, []string{"w", "e"}, messages(buf.Filter(LevelWarn)))
	require.Len(t, buf.Filter(LevelDebug), 4)
}

func TestRingBuffer_Clear(t *testing.T) {
	buf := NewRingBuffer(3)
	buf.Add(msg("a"))
	buf.Clear()

	require.Equal(t, 0, buf.Len())
	require.Nil(t, buf.GetLast(3))

	buf.Add(msg("z"))
	require.Equal(t, []string{"z"}, messages(buf.GetLast(3)))
}

func TestRingBuffer_ConcurrentAccess(t *testing.T) {
	buf := NewRingBuffer(100)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				buf.Add(msg("x"))
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				_ = buf.GetLast(10)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 100, buf.Len())
}
