package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrRendererUnavailable is returned when no image renderer can be run.
var ErrRendererUnavailable = errors.New("image renderer unavailable")

// ImageRenderer turns DOT text into an image.
type ImageRenderer interface {
	Render(ctx context.Context, dot []byte, format string) ([]byte, error)
}

// GraphvizRenderer renders images with the Graphviz dot binary.
type GraphvizRenderer struct {
	// Path is the dot executable. Empty means "dot" looked up on PATH.
	Path string
}

// Render pipes dot into `dot -T<format>` and returns its stdout.
func (g *GraphvizRenderer) Render(ctx context.Context, dot []byte, format string) ([]byte, error) {
	path := g.Path
	if path == "" {
		path = "dot"
	}
	bin, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found (install Graphviz or set graphviz.path): %w", ErrRendererUnavailable, path, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-T"+format)
	cmd.Stdin = bytes.NewReader(dot)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("graphviz failed: %s: %w", msg, err)
		}
		return nil, fmt.Errorf("graphviz failed: %w", err)
	}
	return stdout.Bytes(), nil
}
