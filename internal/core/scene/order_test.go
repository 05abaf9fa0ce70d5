package scene

import (
	"math/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validLifecycle = regexp.MustCompile(`^cu*d?$`)

var opLetters = map[Op]string{OpCreate: "c", OpChange: "u", OpDispose: "d"}

type step struct {
	op Op
	id ID
}

// firstViolation is the index of the first step whose per-id prefix stops
// matching create, change*, dispose?; -1 when the stream is valid.
func firstViolation(steps []step) int {
	prefixes := make(map[ID]*strings.Builder)
	for i, s := range steps {
		b := prefixes[s.id]
		if b == nil {
			b = &strings.Builder{}
			prefixes[s.id] = b
		}
		b.WriteString(opLetters[s.op])
		if !validLifecycle.MatchString(b.String()) {
			return i
		}
	}
	return -1
}

func checkerRejection(steps []step) int {
	c := NewOrderChecker()
	for i, s := range steps {
		if err := c.Step(s.op, KindNode, s.id); err != nil {
			return i
		}
	}
	return -1
}

func stepsFromBytes(data []byte) []step {
	steps := make([]step, len(data))
	for i, b := range data {
		steps[i] = step{op: Op(b % 3), id: ID([]byte{'a' + (b/3)%4})}
	}
	return steps
}

func TestOrderCheckerMatchesLifecycleGrammar(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 2000; round++ {
		data := make([]byte, rng.Intn(24))
		rng.Read(data)
		steps := stepsFromBytes(data)
		require.Equal(t, firstViolation(steps), checkerRejection(steps), "steps %v", steps)
	}
}

func TestOrderCheckerAcceptsValidInterleavings(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for round := 0; round < 500; round++ {
		var per [][]Op
		for id := 0; id < 4; id++ {
			ops := []Op{OpCreate}
			for n := rng.Intn(4); n > 0; n-- {
				ops = append(ops, OpChange)
			}
			if rng.Intn(2) == 0 {
				ops = append(ops, OpDispose)
			}
			per = append(per, ops)
		}
		var steps []step
		for {
			var open []int
			for i, p := range per {
				if len(p) > 0 {
					open = append(open, i)
				}
			}
			if len(open) == 0 {
				break
			}
			i := open[rng.Intn(len(open))]
			steps = append(steps, step{per[i][0], ID(string(rune('a' + i)))})
			per[i] = per[i][1:]
		}
		assert.Equal(t, -1, checkerRejection(steps), "steps %v", steps)
	}
}

func TestOrderCheckerKeysByKind(t *testing.T) {
	c := NewOrderChecker()
	require.NoError(t, c.Check("create_node", DisposeMessage{ID: "x"}))
	require.NoError(t, c.Check("create_mesh", DisposeMessage{ID: "x"}))
	require.NoError(t, c.Check("pointer_down", nil))
	assert.ErrorIs(t, c.Check("change_buffer", DisposeMessage{ID: "x"}), ErrProtocol)
	require.NoError(t, c.Check("dispose_node", DisposeMessage{ID: "x"}))
	assert.ErrorIs(t, c.Check("dispose_node", DisposeMessage{ID: "x"}), ErrProtocol)
}

func FuzzOrderChecker(f *testing.F) {
	f.Add([]byte{0, 1, 1, 2})
	f.Add([]byte{1, 0})
	f.Add([]byte{0, 3, 2, 5, 2})
	f.Fuzz(func(t *testing.T, data []byte) {
		steps := stepsFromBytes(data)
		if got, want := checkerRejection(steps), firstViolation(steps); got != want {
			t.Fatalf("checker rejected at %d, grammar at %d: %v", got, want, steps)
		}
	})
}
