package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Artifact is an encoded batch ready for delivery.
type Artifact struct {
	Name   string
	Format string
	Data   []byte
	Count  int
}

// ArtifactName builds "tally_export_20240305_110000.xml"-style names.
func ArtifactName(format, ext string, at time.Time) string {
	prefix := "ledger_export"
	if format == (TallyXML{}).Format() {
		prefix = "tally_export"
	}
	return prefix + "_" + at.UTC().Format("20060102_150405") + ext
}

const maxNameAttempts = 100

// Sink hands an artifact to the external system. A nil error means the
// artifact was durably accepted; the returned location is kept on the batch.
type Sink interface {
	Deliver(ctx context.Context, a Artifact) (string, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a Artifact) (string, error)

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, a Artifact) (string, error) { return f(ctx, a) }

// FileSink writes artifacts into a directory. The file appears under its
// final name only once it is fully written and synced.
type FileSink struct {
	Dir string
}

// NewFileSink returns a sink writing into dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Deliver implements Sink.
func (s *FileSink) Deliver(ctx context.Context, a Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return "", fmt.Errorf("export: create %s: %w", s.Dir, err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+a.Name+".*")
	if err != nil {
		return "", fmt.Errorf("export: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // the published link keeps the data

	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return "", fmt.Errorf("export: write %s: %w", a.Name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // sync error takes precedence
		return "", fmt.Errorf("export: sync %s: %w", a.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("export: close %s: %w", a.Name, err)
	}

	// The caller's deadline may have passed while writing. Reporting
	// success after it would let the engine mark a batch it already
	// gave up on.
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return publish(tmp.Name(), s.Dir, a.Name)
}

// publish links src into dir under name, or under name with a numeric
// suffix when a batch delivered in the same second already took it. A link
// never replaces an existing file.
func publish(src, dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 0; i < maxNameAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		dst := filepath.Join(dir, candidate)

		err := os.Link(src, dst)
		if err == nil {
			return dst, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("export: publish %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("export: publish %s: no free name after %d attempts", name, maxNameAttempts)
}

// RetrySink retries a flaky sink with exponential backoff. Context errors
// stop the retry loop immediately.
type RetrySink struct {
	next     Sink
	maxTries uint
	initial  time.Duration
}

// NewRetrySink wraps next, trying at most maxTries times.
func NewRetrySink(next Sink, maxTries uint) *RetrySink {
	if maxTries == 0 {
		maxTries = 3
	}
	return &RetrySink{next: next, maxTries: maxTries, initial: 200 * time.Millisecond}
}

// WithInitialInterval sets the first backoff wait.
func (s *RetrySink) WithInitialInterval(d time.Duration) *RetrySink {
	s.initial = d
	return s
}

// Deliver implements Sink.
func (s *RetrySink) Deliver(ctx context.Context, a Artifact) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initial

	return backoff.Retry(ctx, func() (string, error) {
		loc, err := s.next.Deliver(ctx, a)
		if err != nil && ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		return loc, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.maxTries))
}
