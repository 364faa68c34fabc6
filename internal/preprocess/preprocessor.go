// Package preprocess builds the column transform that turns raw credit
// records into the numeric matrix the classifier consumes: standardized
// numeric columns, one-hot categorical blocks and passed-through remainder
// columns, in that order.
package preprocess

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/credit-risk-cli/internal/dataset"
	"github.com/sells-group/credit-risk-cli/internal/schema"
)

// StateVersion tags the serialized layout of a fitted Preprocessor.
const StateVersion = 1

// NotFittedError is returned by Transform on a preprocessor that was never fit.
type NotFittedError struct{}

func (e *NotFittedError) Error() string {
	return "preprocess: transform called before fit"
}

// IsNotFitted returns true if err (or any error in its chain) is a NotFittedError.
func IsNotFitted(err error) bool {
	var ne *NotFittedError
	return errors.As(err, &ne)
}

// ErrAlreadyFitted is returned by Fit on a fitted preprocessor. A new fit
// needs a new preprocessor from Build.
var ErrAlreadyFitted = errors.New("preprocess: already fitted")

// Preprocessor is the composite transform. It is mutable only until Fit
// succeeds; afterwards it is read-only and safe for concurrent Transform calls.
type Preprocessor struct {
	schema      schema.Schema
	remainder   []string
	scaler      StandardScaler
	encoder     OneHotEncoder
	fitted      bool
	fingerprint string
}

// Build returns an unfitted preprocessor for the given schema.
func Build(s schema.Schema) (*Preprocessor, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	return &Preprocessor{schema: s}, nil
}

// Fit learns scaler statistics and category vocabularies from the training
// feature table. Columns that are neither declared nor the target become
// remainder columns and must be numeric.
func (p *Preprocessor) Fit(t *dataset.Table) error {
	if p.fitted {
		return ErrAlreadyFitted
	}
	if err := schema.Require(t.Columns, p.schema.Numeric, p.schema.Categorical); err != nil {
		return err
	}
	if t.Len() == 0 {
		return eris.New("preprocess: fit on empty table")
	}

	remainder := p.schema.Remainder(t.Columns)
	numeric, err := numericColumns(t, p.schema.Numeric)
	if err != nil {
		return err
	}
	if _, err := numericColumns(t, remainder); err != nil {
		return eris.Wrap(err, "preprocess: remainder columns pass through unchanged and must be numeric")
	}
	categorical := make([][]string, len(p.schema.Categorical))
	for j, name := range p.schema.Categorical {
		categorical[j], _ = t.Column(name)
	}

	p.remainder = remainder
	p.scaler = FitStandardScaler(numeric)
	p.encoder = FitOneHotEncoder(categorical)
	p.fitted = true
	p.fingerprint = p.computeFingerprint()
	return nil
}

// Transform encodes t into a matrix of OutputWidth columns. Extra columns in t
// that were not seen at fit time are ignored.
func (p *Preprocessor) Transform(t *dataset.Table) (*mat.Dense, error) {
	if !p.fitted {
		return nil, &NotFittedError{}
	}
	if err := schema.Require(t.Columns, p.schema.Numeric, p.schema.Categorical, p.remainder); err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, eris.New("preprocess: transform of empty table")
	}

	numeric, err := numericColumns(t, p.schema.Numeric)
	if err != nil {
		return nil, err
	}
	remainder, err := numericColumns(t, p.remainder)
	if err != nil {
		return nil, err
	}
	catIdx := make([]int, len(p.schema.Categorical))
	for j, name := range p.schema.Categorical {
		catIdx[j], _ = t.Index(name)
	}

	width := p.OutputWidth()
	data := make([]float64, t.Len()*width)
	for i, row := range t.Rows {
		out := data[i*width : (i+1)*width]
		k := 0
		for j := range numeric {
			out[k] = p.scaler.Apply(j, numeric[j][i])
			k++
		}
		for j, idx := range catIdx {
			if pos := p.encoder.Index(j, row[idx]); pos >= 0 {
				out[k+pos] = 1
			}
			k += len(p.encoder.Categories[j])
		}
		for j := range remainder {
			out[k] = remainder[j][i]
			k++
		}
	}
	return mat.NewDense(t.Len(), width, data), nil
}

// Fitted reports whether Fit has succeeded.
func (p *Preprocessor) Fitted() bool { return p.fitted }

// Schema returns the registry the preprocessor was built from.
func (p *Preprocessor) Schema() schema.Schema { return p.schema }

// InputColumns returns every column Transform requires.
func (p *Preprocessor) InputColumns() []string {
	out := p.schema.Features()
	return append(out, p.remainder...)
}

// Remainder returns the pass-through columns learned at fit time.
func (p *Preprocessor) Remainder() []string {
	return append([]string(nil), p.remainder...)
}

// Means returns a copy of the learned numeric column means.
func (p *Preprocessor) Means() []float64 {
	return append([]float64(nil), p.scaler.Mean...)
}

// Scales returns a copy of the learned numeric column scales.
func (p *Preprocessor) Scales() []float64 {
	return append([]float64(nil), p.scaler.Scale...)
}

// Categories returns a copy of the learned vocabulary of each categorical column.
func (p *Preprocessor) Categories() [][]string {
	out := make([][]string, len(p.encoder.Categories))
	for i, c := range p.encoder.Categories {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// OutputWidth is len(numeric) + Σ vocabulary sizes + len(remainder).
func (p *Preprocessor) OutputWidth() int {
	return len(p.schema.Numeric) + p.encoder.Width() + len(p.remainder)
}

// FeatureNames labels each output column.
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.OutputWidth())
	for _, n := range p.schema.Numeric {
		names = append(names, "num__"+n)
	}
	for j, n := range p.schema.Categorical {
		for _, v := range p.encoder.Categories[j] {
			names = append(names, "cat__"+n+"_"+v)
		}
	}
	for _, n := range p.remainder {
		names = append(names, "remainder__"+n)
	}
	return names
}

// Fingerprint is a content hash of the learned parameters, empty until fit.
// Two preprocessors with equal fingerprints transform identically.
func (p *Preprocessor) Fingerprint() string { return p.fingerprint }

// state is the serialized form of a fitted Preprocessor.
type state struct {
	Version     int           `json:"version"`
	Schema      schema.Schema `json:"schema"`
	Remainder   []string      `json:"remainder"`
	Mean        []float64     `json:"mean"`
	Scale       []float64     `json:"scale"`
	Categories  [][]string    `json:"categories"`
	Fingerprint string        `json:"-"`
}

// snapshot returns the learned parameters with nil slices replaced by empty
// ones, so the fingerprint survives an encode/decode cycle.
func (p *Preprocessor) snapshot() state {
	s := p.schema
	s.Numeric = nonNil(s.Numeric)
	s.Categorical = nonNil(s.Categorical)
	cats := make([][]string, len(p.encoder.Categories))
	for i, c := range p.encoder.Categories {
		cats[i] = nonNil(c)
	}
	return state{
		Version:    StateVersion,
		Schema:     s,
		Remainder:  nonNil(p.remainder),
		Mean:       nonNil(p.scaler.Mean),
		Scale:      nonNil(p.scaler.Scale),
		Categories: cats,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (p *Preprocessor) computeFingerprint() string {
	data, err := json.Marshal(p.snapshot())
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}

// MarshalBinary encodes a fitted preprocessor.
func (p *Preprocessor) MarshalBinary() ([]byte, error) {
	if !p.fitted {
		return nil, &NotFittedError{}
	}
	st := p.snapshot()
	st.Fingerprint = p.fingerprint
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, eris.Wrap(err, "preprocess: encode state")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a preprocessor written by MarshalBinary and
// verifies its parameters against the stored fingerprint.
func (p *Preprocessor) UnmarshalBinary(data []byte) error {
	var st state
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return eris.Wrap(err, "preprocess: decode state")
	}
	if st.Version != StateVersion {
		return eris.Errorf("preprocess: unsupported state version %d", st.Version)
	}
	if len(st.Mean) != len(st.Schema.Numeric) || len(st.Scale) != len(st.Schema.Numeric) {
		return eris.New("preprocess: scaler parameters do not match numeric columns")
	}
	if len(st.Categories) != len(st.Schema.Categorical) {
		return eris.New("preprocess: vocabularies do not match categorical columns")
	}

	restored := Preprocessor{
		schema:    st.Schema,
		remainder: st.Remainder,
		scaler:    StandardScaler{Mean: st.Mean, Scale: st.Scale},
		encoder:   OneHotEncoder{Categories: st.Categories},
		fitted:    true,
	}
	restored.fingerprint = restored.computeFingerprint()
	if restored.fingerprint != st.Fingerprint {
		return eris.Errorf("preprocess: fingerprint mismatch (stored %s, computed %s)", st.Fingerprint, restored.fingerprint)
	}
	*p = restored
	return nil
}

func numericColumns(t *dataset.Table, names []string) ([][]float64, error) {
	out := make([][]float64, len(names))
	for j, name := range names {
		idx, ok := t.Index(name)
		if !ok {
			return nil, &schema.MismatchError{Missing: []string{name}}
		}
		col := make([]float64, t.Len())
		for i, row := range t.Rows {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, eris.Errorf("preprocess: column %q row %d: %q is not a finite number", name, i+1, row[idx])
			}
			col[i] = v
		}
		out[j] = col
	}
	return out, nil
}
