// Package metrics scores predicted labels against true labels.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/evaluation"
)

// ClassMetrics holds precision, recall and F1 for one class or average.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// Report is the evaluation summary persisted next to the model.
type Report struct {
	Accuracy float64
	// Classes orders PerClass and the confusion matrix axes.
	Classes  []string
	PerClass []ClassMetrics
	Macro    ClassMetrics
	Weighted ClassMetrics
	// ConfusionMatrix[i][j] counts rows of true class i predicted as class j.
	ConfusionMatrix [][]int
}

// Evaluate compares yPred to yTrue. Classes are the sorted union of both
// label sets. Precision, recall or F1 with a zero denominator is 0.
func Evaluate(yTrue, yPred []string) (*Report, error) {
	if len(yTrue) != len(yPred) {
		return nil, eris.Errorf("metrics: %d true labels, %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return nil, eris.New("metrics: no labels to evaluate")
	}

	ref, err := labelGrid(yTrue)
	if err != nil {
		return nil, err
	}
	gen, err := labelGrid(yPred)
	if err != nil {
		return nil, err
	}
	cm, err := evaluation.GetConfusionMatrix(ref, gen)
	if err != nil {
		return nil, eris.Wrap(err, "metrics: confusion matrix")
	}

	classes := unionSorted(yTrue, yPred)
	r := &Report{
		Accuracy:        evaluation.GetAccuracy(cm),
		Classes:         classes,
		PerClass:        make([]ClassMetrics, len(classes)),
		ConfusionMatrix: make([][]int, len(classes)),
	}
	total := len(yTrue)
	n := float64(len(classes))
	for k, c := range classes {
		row := make([]int, len(classes))
		support := 0
		for j, p := range classes {
			row[j] = cm[c][p]
			support += row[j]
		}
		r.ConfusionMatrix[k] = row

		m := ClassMetrics{
			Precision: orZero(evaluation.GetPrecision(c, cm)),
			Recall:    orZero(evaluation.GetRecall(c, cm)),
			F1:        orZero(evaluation.GetF1Score(c, cm)),
			Support:   support,
		}
		r.PerClass[k] = m

		w := float64(support) / float64(total)
		r.Macro.Precision += m.Precision / n
		r.Macro.Recall += m.Recall / n
		r.Macro.F1 += m.F1 / n
		r.Weighted.Precision += m.Precision * w
		r.Weighted.Recall += m.Recall * w
		r.Weighted.F1 += m.F1 * w
	}
	r.Macro.Support = total
	r.Weighted.Support = total
	return r, nil
}

// labelGrid holds labels as the class attribute of a single-column grid, the
// form golearn's evaluation functions read.
func labelGrid(labels []string) (*base.DenseInstances, error) {
	inst := base.NewDenseInstances()
	attr := base.NewCategoricalAttribute()
	attr.SetName("class")
	spec := inst.AddAttribute(attr)
	if err := inst.AddClassAttribute(attr); err != nil {
		return nil, eris.Wrap(err, "metrics: class attribute")
	}
	if err := inst.Extend(len(labels)); err != nil {
		return nil, eris.Wrap(err, "metrics: allocate rows")
	}
	for i, l := range labels {
		inst.Set(spec, i, attr.GetSysValFromString(l))
	}
	return inst, nil
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{})
	for _, l := range a {
		seen[l] = struct{}{}
	}
	for _, l := range b {
		seen[l] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// orZero maps the NaN golearn returns for a 0/0 ratio to 0.
func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Class returns the metrics for label and whether it was present.
func (r *Report) Class(label string) (ClassMetrics, bool) {
	for i, c := range r.Classes {
		if c == label {
			return r.PerClass[i], true
		}
	}
	return ClassMetrics{}, false
}

const (
	keyAccuracy = "accuracy"
	keyMacro    = "macro avg"
	keyWeighted = "weighted avg"
)

type reportJSON struct {
	Accuracy             float64                    `json:"accuracy"`
	ClassificationReport map[string]json.RawMessage `json:"classification_report"`
	ConfusionMatrix      [][]int                    `json:"confusion_matrix"`
	Labels               []string                   `json:"labels"`
}

// MarshalJSON writes the report with a classification_report keyed by class
// label plus "accuracy", "macro avg" and "weighted avg".
func (r *Report) MarshalJSON() ([]byte, error) {
	cr := make(map[string]json.RawMessage, len(r.Classes)+3)
	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		cr[key] = b
		return nil
	}
	for i, c := range r.Classes {
		if err := put(c, r.PerClass[i]); err != nil {
			return nil, err
		}
	}
	if err := put(keyAccuracy, r.Accuracy); err != nil {
		return nil, err
	}
	if err := put(keyMacro, r.Macro); err != nil {
		return nil, err
	}
	if err := put(keyWeighted, r.Weighted); err != nil {
		return nil, err
	}
	return json.Marshal(reportJSON{
		Accuracy:             r.Accuracy,
		ClassificationReport: cr,
		ConfusionMatrix:      r.ConfusionMatrix,
		Labels:               r.Classes,
	})
}

// UnmarshalJSON reads a report written by MarshalJSON.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw reportJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Report{
		Accuracy:        raw.Accuracy,
		Classes:         raw.Labels,
		PerClass:        make([]ClassMetrics, len(raw.Labels)),
		ConfusionMatrix: raw.ConfusionMatrix,
	}
	for i, c := range raw.Labels {
		b, ok := raw.ClassificationReport[c]
		if !ok {
			return eris.Errorf("metrics: classification report has no entry for %q", c)
		}
		if err := json.Unmarshal(b, &out.PerClass[i]); err != nil {
			return err
		}
	}
	if b, ok := raw.ClassificationReport[keyMacro]; ok {
		if err := json.Unmarshal(b, &out.Macro); err != nil {
			return err
		}
	}
	if b, ok := raw.ClassificationReport[keyWeighted]; ok {
		if err := json.Unmarshal(b, &out.Weighted); err != nil {
			return err
		}
	}
	*r = out
	return nil
}

// WriteText renders the report as an aligned table followed by the
// confusion matrix.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tprecision\trecall\tf1-score\tsupport\t")
	row := func(name string, m ClassMetrics) {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n", name, m.Precision, m.Recall, m.F1, m.Support)
	}
	for i, c := range r.Classes {
		row(c, r.PerClass[i])
	}
	fmt.Fprintf(tw, "%s\t\t\t%.2f\t%d\t\n", keyAccuracy, r.Accuracy, r.Macro.Support)
	row(keyMacro, r.Macro)
	row(keyWeighted, r.Weighted)
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "true \\ pred\t")
	for _, c := range r.Classes {
		fmt.Fprintf(tw, "%s\t", c)
	}
	fmt.Fprintln(tw)
	for i, c := range r.Classes {
		fmt.Fprintf(tw, "%s\t", c)
		for _, n := range r.ConfusionMatrix[i] {
			fmt.Fprintf(tw, "%d\t", n)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
