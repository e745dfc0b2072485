package similarity

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// MinTextLength is the length a text must exceed to take part in vector scoring.
const MinTextLength = 50

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// LongEnough reports whether text exceeds MinTextLength characters.
func LongEnough(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > MinTextLength
}

// VectorSimilarity scores query against every corpus entry by cosine similarity
// of TF-IDF vectors fitted on {query} plus the eligible corpus entries only.
// The result always has len(corpus) entries; entries that are too short, and
// every entry when the query is too short, score 0.
func VectorSimilarity(query string, corpus []string) []float64 {
	scores := make([]float64, len(corpus))
	if !LongEnough(query) {
		return scores
	}

	docs := [][]string{tokenize(query)}
	positions := make([]int, 0, len(corpus))
	for i, text := range corpus {
		if !LongEnough(text) {
			continue
		}
		docs = append(docs, tokenize(text))
		positions = append(positions, i)
	}
	if len(positions) == 0 {
		return scores
	}

	vectors := fitTransform(docs)
	q := vectors[0]
	if len(q) == 0 {
		return scores
	}
	for k, pos := range positions {
		scores[pos] = clamp01(dot(q, vectors[k+1]))
	}
	return scores
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := englishStopWords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

type term struct {
	index  int
	weight float64
}

// fitTransform builds L2-normalized tf*idf vectors with smoothed idf
// ln((1+n)/(1+df)) + 1. Vectors are sparse and sorted by term index so
// summation order, and therefore the result, is deterministic.
func fitTransform(docs [][]string) [][]term {
	vocab := make(map[string]int)
	df := make([]int, 0)
	counts := make([]map[int]int, len(docs))
	for i, tokens := range docs {
		counts[i] = make(map[int]int)
		for _, tok := range tokens {
			idx, ok := vocab[tok]
			if !ok {
				idx = len(vocab)
				vocab[tok] = idx
				df = append(df, 0)
			}
			if counts[i][idx] == 0 {
				df[idx]++
			}
			counts[i][idx]++
		}
	}

	n := float64(len(docs))
	idf := make([]float64, len(df))
	for i, d := range df {
		idf[i] = math.Log((1+n)/(1+float64(d))) + 1
	}

	out := make([][]term, len(docs))
	for i, c := range counts {
		vec := make([]term, 0, len(c))
		var norm float64
		for idx, tf := range c {
			w := float64(tf) * idf[idx]
			vec = append(vec, term{index: idx, weight: w})
		}
		sort.Slice(vec, func(a, b int) bool { return vec[a].index < vec[b].index })
		for _, t := range vec {
			norm += t.weight * t.weight
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for k := range vec {
				vec[k].weight /= norm
			}
		}
		out[i] = vec
	}
	return out
}

func dot(a, b []term) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].index == b[j].index:
			sum += a[i].weight * b[j].weight
			i++
			j++
		case a[i].index < b[j].index:
			i++
		default:
			j++
		}
	}
	return sum
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
