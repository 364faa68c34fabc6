// Package artifact persists pipeline outputs (the processed dataset bundle,
// the fitted preprocessor, the trained model and the metrics report) to the
// local filesystem.
package artifact

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Kind names what an artifact file holds.
type Kind string

// Artifact kinds.
const (
	KindDataset      Kind = "dataset"
	KindPreprocessor Kind = "preprocessor"
	KindModel        Kind = "model"
	KindMetrics      Kind = "metrics"
)

// FormatVersion is written into every binary artifact header.
const FormatVersion = 1

// magic prefixes binary artifacts so foreign files fail fast.
var magic = []byte("CRART\x00")

// Header is the envelope written ahead of a binary artifact's payload.
type Header struct {
	Kind          Kind
	FormatVersion int
	CreatedAt     time.Time
	Fingerprint   string
}

// Fingerprinter is implemented by payloads that carry a content hash. The
// hash is recorded in the header and re-checked on load.
type Fingerprinter interface {
	Fingerprint() string
}

// Store saves and loads artifacts. It is stateless apart from its logger and
// clock and is safe for concurrent use.
type Store struct {
	log *zap.Logger
	now func() time.Time
}

// NewStore creates a Store that logs through log.
func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{log: log, now: time.Now}
}

// Save writes v to path atomically. Metrics are written as indented JSON;
// every other kind is a gob stream of a Header followed by v.
func (s *Store) Save(ctx context.Context, kind Kind, path string, v any) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "artifact: save")
	}

	var fingerprint string
	if fp, ok := v.(Fingerprinter); ok {
		fingerprint = fp.Fingerprint()
	}

	err := WriteAtomic(path, func(w io.Writer) error {
		if kind == KindMetrics {
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return eris.Wrap(err, "artifact: marshal metrics")
			}
			_, err = w.Write(append(data, '\n'))
			return err
		}
		if _, err := w.Write(magic); err != nil {
			return err
		}
		enc := gob.NewEncoder(w)
		hdr := Header{
			Kind:          kind,
			FormatVersion: FormatVersion,
			CreatedAt:     s.now().UTC(),
			Fingerprint:   fingerprint,
		}
		if err := enc.Encode(hdr); err != nil {
			return eris.Wrap(err, "artifact: encode header")
		}
		if err := enc.Encode(v); err != nil {
			return eris.Wrapf(err, "artifact: encode %s", kind)
		}
		return nil
	})
	if err != nil {
		return eris.Wrapf(err, "artifact: save %s to %s", kind, path)
	}

	s.log.Info("artifact: saved",
		zap.String("kind", string(kind)),
		zap.String("path", path),
		zap.String("fingerprint", fingerprint),
	)
	return nil
}

// Load reads the artifact at path into v, which must be a pointer. A missing
// file yields a NotFoundError and a file of a different kind a KindError.
func (s *Store) Load(ctx context.Context, kind Kind, path string, v any) (*Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "artifact: load")
	}

	f, err := open(kind, path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	if kind == KindMetrics {
		if err := json.NewDecoder(bufio.NewReader(f)).Decode(v); err != nil {
			return nil, eris.Wrapf(err, "artifact: decode metrics %s", path)
		}
		return &Header{Kind: KindMetrics}, nil
	}

	r := bufio.NewReader(f)
	hdr, dec, err := readHeader(r, path)
	if err != nil {
		return nil, err
	}
	if hdr.Kind != kind {
		return nil, &KindError{Path: path, Want: kind, Got: hdr.Kind}
	}
	if err := dec.Decode(v); err != nil {
		return nil, eris.Wrapf(err, "artifact: decode %s %s", kind, path)
	}
	if fp, ok := v.(Fingerprinter); ok && hdr.Fingerprint != "" {
		if got := fp.Fingerprint(); got != hdr.Fingerprint {
			return nil, eris.Errorf("artifact: %s %s is corrupt: header fingerprint %s, payload %s", kind, path, hdr.Fingerprint, got)
		}
	}

	s.log.Debug("artifact: loaded",
		zap.String("kind", string(kind)),
		zap.String("path", path),
		zap.Time("created_at", hdr.CreatedAt),
	)
	return hdr, nil
}

// Inspect reads only the header of a binary artifact.
func Inspect(path string) (*Header, error) {
	f, err := open("", path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	hdr, _, err := readHeader(bufio.NewReader(f), path)
	return hdr, err
}

func open(kind Kind, path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Kind: kind, Path: path}
		}
		return nil, eris.Wrapf(err, "artifact: open %s", path)
	}
	return f, nil
}

func readHeader(r io.Reader, path string) (*Header, *gob.Decoder, error) {
	prefix := make([]byte, len(magic))
	if _, err := io.ReadFull(r, prefix); err != nil || !bytes.Equal(prefix, magic) {
		return nil, nil, eris.Errorf("artifact: %s is not an artifact file", path)
	}
	dec := gob.NewDecoder(r)
	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return nil, nil, eris.Wrapf(err, "artifact: decode header %s", path)
	}
	if hdr.FormatVersion > FormatVersion || hdr.FormatVersion < 1 {
		return nil, nil, eris.Errorf("artifact: %s has unsupported format version %d", path, hdr.FormatVersion)
	}
	return &hdr, dec, nil
}

// WriteAtomic writes a file through fn so readers never observe a partial
// write: content goes to a temp file in the target directory, which is
// synced and renamed over path. Parent directories are created as needed.
func WriteAtomic(path string, fn func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "artifact: create directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "artifact: create temp file in %s", dir)
	}
	defer func() {
		if err != nil {
			tmp.Close()           //nolint:errcheck
			os.Remove(tmp.Name()) //nolint:errcheck
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = fn(w); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return eris.Wrap(err, "artifact: flush")
	}
	if err = tmp.Sync(); err != nil {
		return eris.Wrap(err, "artifact: sync")
	}
	if err = tmp.Close(); err != nil {
		return eris.Wrap(err, "artifact: close")
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "artifact: rename into %s", path)
	}
	return nil
}
