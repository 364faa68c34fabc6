package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rotisserie/eris"
)

// MinClassMembers is the smallest class a stratified split can place in both
// partitions.
const MinClassMembers = 2

// SplitOptions configures StratifiedSplit.
type SplitOptions struct {
	TestSize float64 `mapstructure:"test_size"`
	Seed     int64   `mapstructure:"seed"`
}

// DefaultSplitOptions returns the 70/30 split with seed 42.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{TestSize: 0.3, Seed: 42}
}

// InsufficientDataError reports a label class too small to stratify.
type InsufficientDataError struct {
	Class    string
	Count    int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: class %q has %d member(s), stratified split needs at least %d", e.Class, e.Count, e.Required)
}

// IsInsufficientData returns true if err (or any error in its chain) is an
// InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}

// Split holds row indices of the training and evaluation partitions.
type Split struct {
	Train []int
	Test  []int
}

// StratifiedSplit partitions row indices so that every label keeps its
// source proportion in both partitions, to within one row. The evaluation
// partition size is ceil(TestSize * n). The same labels and seed always yield
// the same split.
func StratifiedSplit(labels []string, opts SplitOptions) (*Split, error) {
	n := len(labels)
	if n == 0 {
		return nil, eris.New("split: no rows")
	}
	if opts.TestSize <= 0 || opts.TestSize >= 1 {
		return nil, eris.Errorf("split: test size %v must be in (0, 1)", opts.TestSize)
	}

	byClass := make(map[string][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	for _, c := range classes {
		if len(byClass[c]) < MinClassMembers {
			return nil, &InsufficientDataError{Class: c, Count: len(byClass[c]), Required: MinClassMembers}
		}
	}

	nTest := int(math.Ceil(opts.TestSize*float64(n) - 1e-9))
	nTrain := n - nTest
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, eris.Errorf("split: %d test / %d train rows cannot hold %d classes", nTest, nTrain, len(classes))
	}

	alloc := allocate(classes, byClass, n, nTest)

	rng := rand.New(rand.NewSource(opts.Seed))
	s := &Split{}
	for _, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		s.Test = append(s.Test, idx[:alloc[c]]...)
		s.Train = append(s.Train, idx[alloc[c]:]...)
	}
	rng.Shuffle(len(s.Train), func(i, j int) { s.Train[i], s.Train[j] = s.Train[j], s.Train[i] })
	rng.Shuffle(len(s.Test), func(i, j int) { s.Test[i], s.Test[j] = s.Test[j], s.Test[i] })
	return s, nil
}

// allocate assigns exactly nTest rows across classes by largest remainder,
// keeping at least one row of every class on each side.
func allocate(classes []string, byClass map[string][]int, n, nTest int) map[string]int {
	type share struct {
		class string
		count int
		rem   int
	}
	alloc := make(map[string]int, len(classes))
	shares := make([]share, 0, len(classes))
	total := 0
	for _, c := range classes {
		count := len(byClass[c])
		alloc[c] = count * nTest / n
		total += alloc[c]
		shares = append(shares, share{class: c, count: count, rem: count * nTest % n})
	}

	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].rem != shares[j].rem {
			return shares[i].rem > shares[j].rem
		}
		return shares[i].count > shares[j].count
	})
	for i := 0; total < nTest && i < len(shares); i++ {
		if alloc[shares[i].class] < shares[i].count-1 {
			alloc[shares[i].class]++
			total++
		}
	}

	total = 0
	for _, c := range classes {
		count := len(byClass[c])
		if alloc[c] < 1 {
			alloc[c] = 1
		}
		if alloc[c] > count-1 {
			alloc[c] = count - 1
		}
		total += alloc[c]
	}

	// Clamping can move the total off nTest. Take rows back from, or give rows
	// to, the class with the most room so the partition size holds.
	for total > nTest {
		best := ""
		for _, c := range classes {
			if alloc[c] > 1 && (best == "" || alloc[c] > alloc[best]) {
				best = c
			}
		}
		if best == "" {
			break
		}
		alloc[best]--
		total--
	}
	for total < nTest {
		best, room := "", 0
		for _, c := range classes {
			if r := len(byClass[c]) - 1 - alloc[c]; r > room {
				best, room = c, r
			}
		}
		if best == "" {
			break
		}
		alloc[best]++
		total++
	}
	return alloc
}

// Partition is a feature table with its row-aligned labels.
type Partition struct {
	Features *Table
	Labels   []string
}

// Len returns the number of rows.
func (p *Partition) Len() int { return len(p.Labels) }

// SplitTable separates the target column from t and returns stratified
// training and evaluation partitions.
func SplitTable(t *Table, target string, opts SplitOptions) (train, test *Partition, err error) {
	labels, err := t.Column(target)
	if err != nil {
		return nil, nil, err
	}
	s, err := StratifiedSplit(labels, opts)
	if err != nil {
		return nil, nil, err
	}
	features := t.Drop(target)
	return partition(features, labels, s.Train), partition(features, labels, s.Test), nil
}

func partition(features *Table, labels []string, idx []int) *Partition {
	y := make([]string, len(idx))
	for i, k := range idx {
		y[i] = labels[k]
	}
	return &Partition{Features: features.Subset(idx), Labels: y}
}
