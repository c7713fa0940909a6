// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render turns the provenance graph's DOT document into a PNG,
// either with a local Graphviz install or inside a docker or podman
// container.
package render

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/pdiddy/nidm-export/pkg/types"
)

const (
	binDot    = "dot"
	binDocker = "docker"
	binPodman = "podman"

	// DefaultImage is a Graphviz image whose PATH provides dot.
	DefaultImage = "nshine/dot:latest"
)

// dotArgs makes dot read DOT on stdin and write PNG on stdout.
var dotArgs = []string{"-Tpng"}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(ctx context.Context, name string, args ...string) error
	RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error
}

type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func (o *osExecutor) RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	return cmd.Run()
}

var defaultExec executor = &osExecutor{}

// Renderer runs dot, locally or in a container, to produce PNG images.
type Renderer struct {
	bin  string
	args []string
	exec executor
}

// Name returns the program that does the rendering ("dot", "docker" or "podman").
func (r *Renderer) Name() string { return r.bin }

// Render pipes a DOT document through dot and writes the PNG to png.
func (r *Renderer) Render(ctx context.Context, dot io.Reader, png io.Writer) error {
	if err := r.exec.RunPiped(ctx, r.bin, r.args, dot, png); err != nil {
		return fmt.Errorf("rendering graph with %s: %w", r.bin, err)
	}
	return nil
}

// New selects a renderer for cfg. With runtime auto it prefers a local dot
// binary, then docker, then podman.
func New(ctx context.Context, cfg types.RenderConfig) (*Renderer, error) {
	return newRenderer(ctx, cfg, defaultExec)
}

func newRenderer(ctx context.Context, cfg types.RenderConfig, ex executor) (*Renderer, error) {
	image := cfg.Image
	if image == "" {
		image = DefaultImage
	}

	switch cfg.Runtime {
	case types.RenderDot:
		return localDot(ex)
	case types.RenderDocker:
		return containerDot(ctx, ex, binDocker, []string{"image", "inspect"}, image)
	case types.RenderPodman:
		return containerDot(ctx, ex, binPodman, []string{"image", "exists"}, image)
	case types.RenderAuto, "":
		if r, err := localDot(ex); err == nil {
			return r, nil
		}
		if r, err := containerDot(ctx, ex, binDocker, []string{"image", "inspect"}, image); err == nil {
			return r, nil
		}
		if r, err := containerDot(ctx, ex, binPodman, []string{"image", "exists"}, image); err == nil {
			return r, nil
		}
		return nil, fmt.Errorf("no graph renderer available: need %s on PATH or %s/%s with image %s",
			binDot, binDocker, binPodman, image)
	default:
		return nil, fmt.Errorf("unknown render runtime %q", cfg.Runtime)
	}
}

func localDot(ex executor) (*Renderer, error) {
	if _, err := ex.LookPath(binDot); err != nil {
		return nil, fmt.Errorf("%s not found on PATH: %w", binDot, err)
	}
	return &Renderer{bin: binDot, args: dotArgs, exec: ex}, nil
}

// containerDot checks that the runtime answers and that the image exists
// locally before returning a renderer that runs dot inside it.
func containerDot(ctx context.Context, ex executor, bin string, imageCheck []string, image string) (*Renderer, error) {
	if _, err := ex.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%s not found on PATH: %w", bin, err)
	}
	if err := ex.RunSilent(ctx, bin, "info"); err != nil {
		return nil, fmt.Errorf("%s not operational: %w", bin, err)
	}
	check := append(append([]string{}, imageCheck...), image)
	if err := ex.RunSilent(ctx, bin, check...); err != nil {
		return nil, fmt.Errorf("image %s not found in %s: %w", image, bin, err)
	}

	args := append([]string{"run", "--rm", "-i", image, binDot}, dotArgs...)
	return &Renderer{bin: bin, args: args, exec: ex}, nil
}
