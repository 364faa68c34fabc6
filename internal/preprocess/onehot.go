package preprocess

import (
	"sort"

	"golang.org/x/text/unicode/norm"
)

// OneHotEncoder holds the sorted vocabulary of each categorical column.
// Values outside the vocabulary encode as an all-zero block. Values are
// compared in Unicode NFC so composed and decomposed spellings match.
type OneHotEncoder struct {
	Categories [][]string
}

// FitOneHotEncoder learns the distinct values of each column.
func FitOneHotEncoder(columns [][]string) OneHotEncoder {
	e := OneHotEncoder{Categories: make([][]string, len(columns))}
	for j, col := range columns {
		seen := make(map[string]struct{})
		for _, v := range col {
			seen[norm.NFC.String(v)] = struct{}{}
		}
		vocab := make([]string, 0, len(seen))
		for v := range seen {
			vocab = append(vocab, v)
		}
		sort.Strings(vocab)
		e.Categories[j] = vocab
	}
	return e
}

// Width returns the total number of indicator columns.
func (e OneHotEncoder) Width() int {
	w := 0
	for _, c := range e.Categories {
		w += len(c)
	}
	return w
}

// Index returns the position of v within column j's block, or -1 if v was
// not seen at fit time.
func (e OneHotEncoder) Index(j int, v string) int {
	vocab := e.Categories[j]
	v = norm.NFC.String(v)
	i := sort.SearchStrings(vocab, v)
	if i < len(vocab) && vocab[i] == v {
		return i
	}
	return -1
}
