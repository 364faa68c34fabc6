// Package classifier implements L2-regularized logistic regression over the
// preprocessed credit feature matrix.
package classifier

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// StateVersion tags the serialized layout of a fitted model.
const StateVersion = 1

// ErrNotFitted is returned by the prediction methods of an unfitted model.
var ErrNotFitted = errors.New("classifier: predict called before fit")

// Params configures training.
type Params struct {
	MaxIter   int     `yaml:"max_iter" mapstructure:"max_iter"`
	C         float64 `yaml:"c" mapstructure:"c"`                 // inverse L2 strength
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"` // gradient infinity-norm stop
}

// DefaultParams matches a 500-iteration lbfgs logistic regression with C=1.
func DefaultParams() Params {
	return Params{MaxIter: 500, C: 1.0, Tolerance: 1e-4}
}

// Validate rejects non-positive settings.
func (p Params) Validate() error {
	if p.MaxIter <= 0 {
		return eris.Errorf("classifier: max_iter must be > 0, got %d", p.MaxIter)
	}
	if p.C <= 0 {
		return eris.Errorf("classifier: c must be > 0, got %v", p.C)
	}
	if p.Tolerance < 0 {
		return eris.Errorf("classifier: tolerance must be >= 0, got %v", p.Tolerance)
	}
	return nil
}

// Convergence describes how one binary subproblem's optimization ended.
type Convergence struct {
	Positive   string  `json:"positive"`
	Status     string  `json:"status"`
	Iterations int     `json:"iterations"`
	Loss       float64 `json:"loss"`
	Warning    string  `json:"warning,omitempty"`
}

// LogisticRegression is a binary classifier for two labels and one-vs-rest
// for more. The intercept is not penalized.
type LogisticRegression struct {
	params         Params
	classes        []string
	coef           [][]float64
	intercept      []float64
	nFeatures      int
	preprocessorFP string
	convergence    []Convergence
	fitted         bool
}

// New returns an unfitted model.
func New(p Params) *LogisticRegression {
	return &LogisticRegression{params: p}
}

// Fit learns coefficients from X and its row-aligned labels. Classes are
// ordered lexicographically; with two classes the second is the positive one.
func (m *LogisticRegression) Fit(X mat.Matrix, y []string) error {
	if m.fitted {
		return eris.New("classifier: already fitted")
	}
	if err := m.params.Validate(); err != nil {
		return err
	}
	r, c := X.Dims()
	if r != len(y) {
		return eris.Errorf("classifier: X has %d rows, y has %d labels", r, len(y))
	}
	if r == 0 || c == 0 {
		return eris.New("classifier: empty training matrix")
	}

	classes := uniqueSorted(y)
	if len(classes) < 2 {
		return eris.Errorf("classifier: need at least two classes, got %d", len(classes))
	}

	dense := mat.DenseCopyOf(X)
	positives := classes[1:]
	if len(classes) > 2 {
		positives = classes
	}

	coef := make([][]float64, len(positives))
	intercept := make([]float64, len(positives))
	conv := make([]Convergence, len(positives))
	for k, pos := range positives {
		target := make([]float64, r)
		for i, label := range y {
			if label == pos {
				target[i] = 1
			}
		}
		w, b, cv, err := fitBinary(dense, target, m.params)
		if err != nil {
			return eris.Wrapf(err, "classifier: fit %q vs rest", pos)
		}
		cv.Positive = pos
		coef[k], intercept[k], conv[k] = w, b, cv
	}

	m.classes = classes
	m.coef = coef
	m.intercept = intercept
	m.nFeatures = c
	m.convergence = conv
	m.fitted = true
	return nil
}

// fitBinary minimizes mean log-loss plus ||w||²/(2Cn) with LBFGS. The returned
// location is used even when the line search stops early, as long as it is
// finite; the reason is kept in the Convergence warning.
func fitBinary(X *mat.Dense, target []float64, p Params) ([]float64, float64, Convergence, error) {
	n, d := X.Dims()
	nf := float64(n)
	lambda := 1 / (p.C * nf)
	z := make([]float64, n)

	margins := func(x []float64) {
		w, b := x[:d], x[d]
		for i := 0; i < n; i++ {
			z[i] = floats.Dot(w, X.RawRowView(i)) + b
		}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			margins(x)
			loss := 0.0
			for i, zi := range z {
				loss += softplus(zi) - target[i]*zi
			}
			w := x[:d]
			return loss/nf + 0.5*lambda*floats.Dot(w, w)
		},
		Grad: func(grad, x []float64) {
			margins(x)
			for j := range grad {
				grad[j] = 0
			}
			gw := grad[:d]
			for i, zi := range z {
				r := sigmoid(zi) - target[i]
				floats.AddScaled(gw, r, X.RawRowView(i))
				grad[d] += r
			}
			floats.Scale(1/nf, grad)
			floats.AddScaled(gw, lambda, x[:d])
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   p.MaxIter,
		GradientThreshold: p.Tolerance,
	}
	res, err := optimize.Minimize(problem, make([]float64, d+1), settings, &optimize.LBFGS{})
	if res == nil {
		return nil, 0, Convergence{}, eris.Wrap(err, "classifier: minimize")
	}
	for _, v := range res.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, 0, Convergence{}, eris.Errorf("classifier: optimizer diverged (%s)", res.Status)
		}
	}

	cv := Convergence{
		Status:     res.Status.String(),
		Iterations: res.Stats.MajorIterations,
		Loss:       res.F,
	}
	if err != nil {
		cv.Warning = err.Error()
	}
	x := append([]float64(nil), res.X...)
	return x[:d], x[d], cv, nil
}

// DecisionFunction returns one column of margins per binary subproblem.
func (m *LogisticRegression) DecisionFunction(X mat.Matrix) (*mat.Dense, error) {
	if !m.fitted {
		return nil, ErrNotFitted
	}
	r, c := X.Dims()
	if c != m.nFeatures {
		return nil, eris.Errorf("classifier: X has %d features, model expects %d", c, m.nFeatures)
	}
	if r == 0 {
		return nil, eris.New("classifier: empty input matrix")
	}
	dense := mat.DenseCopyOf(X)
	out := mat.NewDense(r, len(m.coef), nil)
	for i := 0; i < r; i++ {
		row := dense.RawRowView(i)
		for k, w := range m.coef {
			out.Set(i, k, floats.Dot(w, row)+m.intercept[k])
		}
	}
	return out, nil
}

// PredictProba returns one column per class, in Classes order. One-vs-rest
// scores are normalized to sum to one per row.
func (m *LogisticRegression) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	dec, err := m.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	r, _ := dec.Dims()
	out := mat.NewDense(r, len(m.classes), nil)
	for i := 0; i < r; i++ {
		if len(m.classes) == 2 {
			p := sigmoid(dec.At(i, 0))
			out.Set(i, 0, 1-p)
			out.Set(i, 1, p)
			continue
		}
		row := out.RawRowView(i)
		for k := range row {
			row[k] = sigmoid(dec.At(i, k))
		}
		if sum := floats.Sum(row); sum > 0 {
			floats.Scale(1/sum, row)
		}
	}
	return out, nil
}

// Predict returns the most likely class label for each row.
func (m *LogisticRegression) Predict(X mat.Matrix) ([]string, error) {
	dec, err := m.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	r, _ := dec.Dims()
	out := make([]string, r)
	for i := 0; i < r; i++ {
		if len(m.classes) == 2 {
			if dec.At(i, 0) > 0 {
				out[i] = m.classes[1]
			} else {
				out[i] = m.classes[0]
			}
			continue
		}
		out[i] = m.classes[floats.MaxIdx(dec.RawRowView(i))]
	}
	return out, nil
}

// Fitted reports whether Fit has succeeded.
func (m *LogisticRegression) Fitted() bool { return m.fitted }

// Classes returns the sorted class labels.
func (m *LogisticRegression) Classes() []string { return append([]string(nil), m.classes...) }

// NumFeatures returns the input width the model was trained on.
func (m *LogisticRegression) NumFeatures() int { return m.nFeatures }

// Params returns the training settings.
func (m *LogisticRegression) Params() Params { return m.params }

// Coefficients returns a copy of the weight vectors, one per subproblem.
func (m *LogisticRegression) Coefficients() [][]float64 {
	out := make([][]float64, len(m.coef))
	for i, w := range m.coef {
		out[i] = append([]float64(nil), w...)
	}
	return out
}

// Intercepts returns a copy of the bias terms.
func (m *LogisticRegression) Intercepts() []float64 { return append([]float64(nil), m.intercept...) }

// Convergence returns how each subproblem's optimization ended.
func (m *LogisticRegression) Convergence() []Convergence {
	return append([]Convergence(nil), m.convergence...)
}

// PairWith records the fingerprint of the preprocessor whose output the model
// was trained on.
func (m *LogisticRegression) PairWith(preprocessorFingerprint string) {
	m.preprocessorFP = preprocessorFingerprint
}

// PreprocessorFingerprint returns the fingerprint recorded by PairWith.
func (m *LogisticRegression) PreprocessorFingerprint() string { return m.preprocessorFP }

type state struct {
	Version        int           `json:"version"`
	Params         Params        `json:"params"`
	Classes        []string      `json:"classes"`
	Coef           [][]float64   `json:"coef"`
	Intercept      []float64     `json:"intercept"`
	NFeatures      int           `json:"n_features"`
	PreprocessorFP string        `json:"preprocessor_fingerprint"`
	Convergence    []Convergence `json:"-"`
}

func (m *LogisticRegression) snapshot() state {
	return state{
		Version:        StateVersion,
		Params:         m.params,
		Classes:        m.classes,
		Coef:           m.coef,
		Intercept:      m.intercept,
		NFeatures:      m.nFeatures,
		PreprocessorFP: m.preprocessorFP,
		Convergence:    m.convergence,
	}
}

// Fingerprint is a content hash of the parameters and the paired
// preprocessor fingerprint. Empty until fit.
func (m *LogisticRegression) Fingerprint() string {
	if !m.fitted {
		return ""
	}
	data, err := json.Marshal(m.snapshot())
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}

// MarshalBinary encodes a fitted model.
func (m *LogisticRegression) MarshalBinary() ([]byte, error) {
	if !m.fitted {
		return nil, eris.New("classifier: cannot encode unfitted model")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m.snapshot()); err != nil {
		return nil, eris.Wrap(err, "classifier: encode state")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a model written by MarshalBinary.
func (m *LogisticRegression) UnmarshalBinary(data []byte) error {
	var st state
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return eris.Wrap(err, "classifier: decode state")
	}
	if st.Version != StateVersion {
		return eris.Errorf("classifier: unsupported state version %d", st.Version)
	}
	if len(st.Coef) != len(st.Intercept) || len(st.Coef) == 0 {
		return eris.New("classifier: coefficient and intercept counts differ")
	}
	for _, w := range st.Coef {
		if len(w) != st.NFeatures {
			return eris.New("classifier: coefficient width does not match feature count")
		}
	}
	*m = LogisticRegression{
		params:         st.Params,
		classes:        st.Classes,
		coef:           st.Coef,
		intercept:      st.Intercept,
		nFeatures:      st.NFeatures,
		preprocessorFP: st.PreprocessorFP,
		convergence:    st.Convergence,
		fitted:         true,
	}
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

func uniqueSorted(labels []string) []string {
	seen := make(map[string]struct{})
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
