package align

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hyperjump/awase/internal/m2"
	"github.com/hyperjump/awase/internal/models"
)

const defaultErrantCommand = "errant_parallel"

// ErrantAligner shells out to the external ERRANT tool (errant_parallel) to
// align hypotheses against sources. The tool works on parallel files, so the
// natural unit is AlignBatch; Align wraps a single pair. Process spawns are
// rate limited and every call carries a hard timeout.
type ErrantAligner struct {
	command string
	timeout time.Duration
	limiter *rate.Limiter
}

// ErrantOption configures an ErrantAligner.
type ErrantOption func(*ErrantAligner)

// WithCommand overrides the errant_parallel executable name or path.
func WithCommand(command string) ErrantOption {
	return func(a *ErrantAligner) {
		if command != "" {
			a.command = command
		}
	}
}

// WithTimeout sets the hard per-call timeout. Zero disables the bound.
func WithTimeout(d time.Duration) ErrantOption {
	return func(a *ErrantAligner) { a.timeout = d }
}

// WithRateLimit caps tool invocations per second. Zero or negative disables limiting.
func WithRateLimit(perSecond float64) ErrantOption {
	return func(a *ErrantAligner) {
		if perSecond > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewErrantAligner creates an aligner backed by the external ERRANT tool.
func NewErrantAligner(opts ...ErrantOption) *ErrantAligner {
	a := &ErrantAligner{command: defaultErrantCommand}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Align aligns a single sentence pair.
func (a *ErrantAligner) Align(ctx context.Context, source, hypothesis string) ([]models.Edit, error) {
	batches, err := a.AlignBatch(ctx, []string{source}, []string{hypothesis})
	if err != nil {
		return nil, err
	}
	return batches[0], nil
}

// AlignBatch writes sources and hypotheses to temp files, invokes the tool,
// and parses its edit-annotation output. The returned slice has one edit list
// per input pair, in input order.
func (a *ErrantAligner) AlignBatch(ctx context.Context, sources, hypotheses []string) ([][]models.Edit, error) {
	if len(sources) != len(hypotheses) {
		return nil, fmt.Errorf("source count %d does not match hypothesis count %d", len(sources), len(hypotheses))
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp("", "awase-errant-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	origPath := filepath.Join(dir, "orig.txt")
	corPath := filepath.Join(dir, "cor.txt")
	outPath := filepath.Join(dir, "out.m2")
	if err := writeLines(origPath, sources); err != nil {
		return nil, err
	}
	if err := writeLines(corPath, hypotheses); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, a.command, "-orig", origPath, "-cor", corPath, "-out", outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timed out: %w", a.command, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w: %s", a.command, err, strings.TrimSpace(string(out)))
	}

	entries, err := m2.ParseFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse aligner output: %w", err)
	}
	if len(entries) != len(sources) {
		return nil, fmt.Errorf("aligner returned %d entries for %d sentences", len(entries), len(sources))
	}
	edits := make([][]models.Edit, len(entries))
	for i, e := range entries {
		edits[i] = e.Edits
	}
	return edits, nil
}

// Close is a no-op; the tool is spawned per call.
func (a *ErrantAligner) Close() error {
	return nil
}

func writeLines(path string, lines []string) error {
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600)
}
