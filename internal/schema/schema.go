// Package schema declares which input columns the credit risk pipeline treats
// as numeric, categorical and target.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Schema is the static column registry every stage reads from. A Schema is a
// value; callers copy it rather than share it.
type Schema struct {
	Numeric         []string `yaml:"numeric" mapstructure:"numeric"`
	Categorical     []string `yaml:"categorical" mapstructure:"categorical"`
	Target          string   `yaml:"target" mapstructure:"target"`
	TargetCanonical string   `yaml:"target_canonical" mapstructure:"target_canonical"`
}

// Default returns the German credit registry. Job is coded as an integer in
// the raw data but encoded as a category.
func Default() Schema {
	return Schema{
		Numeric:         []string{"Duration", "Credit amount", "Age"},
		Categorical:     []string{"Job", "Housing", "Sex", "Saving accounts", "Checking account", "Purpose"},
		Target:          "Risk",
		TargetCanonical: "target",
	}
}

// Check reports whether the registry is internally consistent: a non-empty
// target, at least one feature column, no blank names and pairwise disjoint
// column sets.
func (s Schema) Check() error {
	if s.Target == "" || s.TargetCanonical == "" {
		return eris.New("schema: target column is required")
	}
	if len(s.Numeric)+len(s.Categorical) == 0 {
		return eris.New("schema: at least one numeric or categorical column is required")
	}

	seen := make(map[string]string)
	add := func(col, set string) error {
		if strings.TrimSpace(col) == "" {
			return eris.Errorf("schema: blank column name in %s set", set)
		}
		if prev, ok := seen[col]; ok {
			return eris.Errorf("schema: column %q declared as both %s and %s", col, prev, set)
		}
		seen[col] = set
		return nil
	}
	for _, c := range s.Numeric {
		if err := add(c, "numeric"); err != nil {
			return err
		}
	}
	for _, c := range s.Categorical {
		if err := add(c, "categorical"); err != nil {
			return err
		}
	}
	if err := add(s.TargetCanonical, "target"); err != nil {
		return err
	}
	if s.Target != s.TargetCanonical {
		if _, ok := seen[s.Target]; ok {
			return eris.Errorf("schema: target %q overlaps a feature column", s.Target)
		}
	}
	return nil
}

// Features returns the declared feature columns, numeric first.
func (s Schema) Features() []string {
	out := make([]string, 0, len(s.Numeric)+len(s.Categorical))
	out = append(out, s.Numeric...)
	return append(out, s.Categorical...)
}

// IsDeclared reports whether col is a numeric, categorical or target column.
func (s Schema) IsDeclared(col string) bool {
	if col == s.Target || col == s.TargetCanonical {
		return true
	}
	for _, c := range s.Numeric {
		if c == col {
			return true
		}
	}
	for _, c := range s.Categorical {
		if c == col {
			return true
		}
	}
	return false
}

// Remainder returns the columns of a table that are not declared, in the
// order they appear in columns.
func (s Schema) Remainder(columns []string) []string {
	var out []string
	for _, c := range columns {
		if !s.IsDeclared(c) {
			out = append(out, c)
		}
	}
	return out
}

// MismatchError reports required columns absent from an input table.
type MismatchError struct {
	Missing []string
}

func (e *MismatchError) Error() string {
	quoted := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		quoted[i] = fmt.Sprintf("%q", m)
	}
	return "schema mismatch: missing column(s) " + strings.Join(quoted, ", ")
}

// IsMismatch returns true if err (or any error in its chain) is a MismatchError.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// Require checks that every column in each required group is present in
// columns. All missing columns are reported at once, in declaration order.
func Require(columns []string, required ...[]string) error {
	have := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		have[c] = struct{}{}
	}
	var missing []string
	for _, group := range required {
		for _, c := range group {
			if _, ok := have[c]; !ok {
				missing = append(missing, c)
			}
		}
	}
	if len(missing) > 0 {
		return &MismatchError{Missing: missing}
	}
	return nil
}
