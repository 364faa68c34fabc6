package artifact

import (
	"errors"
	"fmt"
)

// NotFoundError reports a required artifact missing from disk.
type NotFoundError struct {
	Kind Kind
	Path string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "" {
		return "artifact not found: " + e.Path
	}
	return fmt.Sprintf("%s artifact not found: %s", e.Kind, e.Path)
}

// IsNotFound returns true if err (or any error in its chain) is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// KindError reports a file that holds a different kind of artifact than the
// caller asked for.
type KindError struct {
	Path string
	Want Kind
	Got  Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("artifact %s holds a %s, expected a %s", e.Path, e.Got, e.Want)
}

// IsKind returns true if err (or any error in its chain) is a KindError.
func IsKind(err error) bool {
	var ke *KindError
	return errors.As(err, &ke)
}

// MismatchError reports two artifacts that were not produced by the same run:
// a model or dataset bundle whose recorded preprocessor fingerprint differs
// from the preprocessor on disk.
type MismatchError struct {
	Artifact Kind
	Expected string // fingerprint recorded by Artifact
	Actual   string // fingerprint of the preprocessor found
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("artifact mismatch: %s was produced with preprocessor %s, but the preprocessor on disk is %s; rerun prepare and train",
		e.Artifact, e.Expected, e.Actual)
}

// IsMismatch returns true if err (or any error in its chain) is a MismatchError.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// CheckPairing returns a MismatchError when recorded and actual differ.
func CheckPairing(artifact Kind, recorded, actual string) error {
	if recorded != actual {
		return &MismatchError{Artifact: artifact, Expected: recorded, Actual: actual}
	}
	return nil
}
