package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Allot/internal/birkhoff"
	"github.com/MikeSquared-Agency/Allot/internal/selector"
)

func ranked(coef float64, perm birkhoff.Permutation, as ...selector.Assignment) Ranked {
	return Ranked{Choice: selector.Choice{Coefficient: coef, Permutation: perm}, Assignments: as}
}

func TestWriteTopK(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTopK(&buf, 5, []Ranked{
		ranked(0.5, birkhoff.Permutation{0, 1},
			selector.Assignment{AgentName: "alice", ItemName: "a", Score: "1"},
			selector.Assignment{AgentName: "bob", ItemName: "b", Score: "1"}),
		ranked(0.5, birkhoff.Permutation{1, 0},
			selector.Assignment{AgentName: "alice", ItemName: "b", Score: "1"},
			selector.Assignment{AgentName: "bob", ItemName: "a", Score: "1"}),
	})
	require.NoError(t, err)

	want := "Top 5 allocations\n" +
		"\nProbability: 0.500\n" +
		"alice is assigned a, which they scored 1\n" +
		"bob is assigned b, which they scored 1\n" +
		"\n" +
		"\nProbability: 0.500\n" +
		"alice is assigned b, which they scored 1\n" +
		"bob is assigned a, which they scored 1\n" +
		"\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteSample(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSample(&buf, ranked(1, birkhoff.Permutation{0},
		selector.Assignment{AgentName: "alice", ItemName: "a", Score: "2"}))
	require.NoError(t, err)
	assert.Equal(t, "Sampled allocation (probability 1.000):\nalice is assigned a, which they scored 2\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, ranked(0.25, birkhoff.Permutation{0})))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 0.25, got["choice"].(map[string]interface{})["coefficient"])
}
