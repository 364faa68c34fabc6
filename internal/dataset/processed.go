package dataset

import (
	"crypto/sha256"
	"fmt"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Processed is the numeric bundle handed from the prepare stage to the
// trainer. PreprocessorFingerprint names the fitted transform that produced
// XTrain and XTest.
type Processed struct {
	XTrain                  *mat.Dense
	XTest                   *mat.Dense
	YTrain                  []string
	YTest                   []string
	FeatureNames            []string
	PreprocessorFingerprint string
}

// Validate checks that labels are row-aligned with the matrices and that both
// matrices share the transform's output width.
func (p *Processed) Validate() error {
	if p.XTrain == nil || p.XTest == nil {
		return eris.New("dataset: processed bundle is missing a matrix")
	}
	trainRows, trainCols := p.XTrain.Dims()
	testRows, testCols := p.XTest.Dims()
	if trainRows != len(p.YTrain) {
		return eris.Errorf("dataset: X_train has %d rows, y_train has %d", trainRows, len(p.YTrain))
	}
	if testRows != len(p.YTest) {
		return eris.Errorf("dataset: X_test has %d rows, y_test has %d", testRows, len(p.YTest))
	}
	if trainCols != testCols {
		return eris.Errorf("dataset: X_train has %d columns, X_test has %d", trainCols, testCols)
	}
	if len(p.FeatureNames) != 0 && len(p.FeatureNames) != trainCols {
		return eris.Errorf("dataset: %d feature names for %d columns", len(p.FeatureNames), trainCols)
	}
	return nil
}

// Fingerprint returns a content hash over the matrices, labels and the
// producing preprocessor's fingerprint.
func (p *Processed) Fingerprint() string {
	h := sha256.New()
	for _, m := range []*mat.Dense{p.XTrain, p.XTest} {
		if m == nil {
			continue
		}
		b, err := m.MarshalBinary()
		if err != nil {
			return ""
		}
		h.Write(b)
	}
	for _, group := range [][]string{p.YTrain, p.YTest, p.FeatureNames, {p.PreprocessorFingerprint}} {
		for _, s := range group {
			h.Write([]byte(s))
			h.Write([]byte{0x00})
		}
		h.Write([]byte{0x01})
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}
