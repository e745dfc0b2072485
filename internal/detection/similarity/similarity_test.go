package similarity

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deedText = "This title deed certifies that the parcel known as Plot 4412 Kabulonga " +
	"Lusaka is held on leasehold for ninety nine years by the registered proprietor."

func TestTextSimilarity(t *testing.T) {
	t.Run("identical non-empty text scores one", func(t *testing.T) {
		assert.InDelta(t, 1.0, TextSimilarity("Plot 12, Kabwata", "Plot 12, Kabwata"), 1e-12)
	})

	t.Run("case is ignored", func(t *testing.T) {
		assert.InDelta(t, 1.0, TextSimilarity("MWANSA PHIRI", "mwansa phiri"), 1e-12)
	})

	t.Run("empty input scores zero", func(t *testing.T) {
		assert.Zero(t, TextSimilarity("", "abc"))
		assert.Zero(t, TextSimilarity("abc", ""))
		assert.Zero(t, TextSimilarity("", ""))
	})

	t.Run("symmetric and bounded", func(t *testing.T) {
		a, b := "Plot 12, Kabwata, Lusaka", "Plot 12, Kabwata EXT"
		ab, ba := TextSimilarity(a, b), TextSimilarity(b, a)
		assert.InDelta(t, ab, ba, 1e-12)
		assert.Greater(t, ab, 0.5)
		assert.Less(t, ab, 1.0)
	})

	t.Run("argument order never changes the score", func(t *testing.T) {
		// Pairs where the two matcher orders pick different blocks.
		pairs := [][2]string{
			{"b ac b    ", "cb"},
			{"bb   a cac", "    bb ca "},
			{"baabaaa a", " a cbbbbbba "},
		}
		rng := rand.New(rand.NewSource(42))
		for range 500 {
			pairs = append(pairs, [2]string{randomText(rng), randomText(rng)})
		}
		for _, p := range pairs {
			ab, ba := TextSimilarity(p[0], p[1]), TextSimilarity(p[1], p[0])
			require.Equal(t, ab, ba, "%q vs %q", p[0], p[1])
			require.GreaterOrEqual(t, ab, 0.0)
			require.LessOrEqual(t, ab, 1.0)
		}
	})

	t.Run("ratio matches 2M over T", func(t *testing.T) {
		// "abcd" vs "bcde": matching block "bcd" gives 2*3/8.
		assert.InDelta(t, 0.75, TextSimilarity("abcd", "bcde"), 1e-12)
	})
}

func randomText(rng *rand.Rand) string {
	const alphabet = "abc "
	b := make([]byte, 1+rng.Intn(14))
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

func TestHashEqual(t *testing.T) {
	assert.True(t, HashEqual("ABCDEF", "abcdef"))
	assert.True(t, HashEqual(" abc ", "abc"))
	assert.False(t, HashEqual("", ""))
	assert.False(t, HashEqual("abc", "abd"))
}

func TestVectorSimilarity(t *testing.T) {
	t.Run("output length equals corpus length", func(t *testing.T) {
		corpus := []string{deedText, "short", "", deedText + " clause"}
		scores := VectorSimilarity(deedText, corpus)
		require.Len(t, scores, len(corpus))
		assert.InDelta(t, 1.0, scores[0], 1e-9)
		assert.Zero(t, scores[1], "short texts are excluded")
		assert.Zero(t, scores[2])
		assert.Greater(t, scores[3], 0.85)
		assert.Less(t, scores[3], 1.0)
	})

	t.Run("short query yields zeros", func(t *testing.T) {
		scores := VectorSimilarity("too short", []string{deedText})
		assert.Equal(t, []float64{0}, scores)
	})

	t.Run("text of exactly the minimum length is excluded", func(t *testing.T) {
		exact := strings.Repeat("x", MinTextLength)
		assert.False(t, LongEnough(exact))
		assert.True(t, LongEnough(exact+"y"))
		assert.Equal(t, []float64{0}, VectorSimilarity(deedText, []string{exact}))
	})

	t.Run("unrelated documents score low", func(t *testing.T) {
		other := "Affidavit sworn before the commissioner for oaths regarding customary " +
			"inheritance of farmland in Chongwe district by surviving relatives."
		scores := VectorSimilarity(deedText, []string{other})
		assert.Less(t, scores[0], 0.2)
	})

	t.Run("deterministic for the same batch", func(t *testing.T) {
		corpus := []string{deedText + " witness one", deedText + " witness two", deedText}
		first := VectorSimilarity(deedText, corpus)
		for range 5 {
			assert.Equal(t, first, VectorSimilarity(deedText, corpus))
		}
	})

	t.Run("stop words alone carry no signal", func(t *testing.T) {
		q := strings.Repeat("the and of which would have been ", 3)
		scores := VectorSimilarity(q, []string{q})
		assert.Equal(t, []float64{0}, scores)
	})
}
