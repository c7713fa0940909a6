// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/pdiddy/nidm-export/pkg/types"
)

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	availableBins map[string]bool // binary -> whether LookPath succeeds
	runnableCmds  map[string]bool // "bin arg1 arg2" -> whether RunSilent succeeds
	runPipedFunc  func(name string, args []string, stdin io.Reader, stdout io.Writer) error
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if m.availableBins[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *mockExecutor) RunSilent(_ context.Context, name string, args ...string) error {
	key := name + " " + strings.Join(args, " ")
	if m.runnableCmds[key] {
		return nil
	}
	return errors.New("command failed: " + key)
}

func (m *mockExecutor) RunPiped(_ context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	if m.runPipedFunc != nil {
		return m.runPipedFunc(name, args, stdin, stdout)
	}
	return nil
}

func dockerReady(image string) *mockExecutor {
	return &mockExecutor{
		availableBins: map[string]bool{"docker": true},
		runnableCmds:  map[string]bool{"docker info": true, "docker image inspect " + image: true},
	}
}

func TestNewRenderer(t *testing.T) {
	tests := []struct {
		name     string
		cfg      types.RenderConfig
		exec     *mockExecutor
		wantName string
		wantErr  bool
	}{
		{
			name:     "auto prefers local dot",
			cfg:      types.RenderConfig{Runtime: types.RenderAuto},
			exec:     &mockExecutor{availableBins: map[string]bool{"dot": true, "docker": true}},
			wantName: "dot",
		},
		{
			name:     "auto falls back to docker",
			cfg:      types.RenderConfig{},
			exec:     dockerReady(DefaultImage),
			wantName: "docker",
		},
		{
			name: "auto falls back to podman when docker info fails",
			cfg:  types.RenderConfig{Runtime: types.RenderAuto},
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true, "podman": true},
				runnableCmds:  map[string]bool{"podman info": true, "podman image exists " + DefaultImage: true},
			},
			wantName: "podman",
		},
		{
			name:    "auto with nothing available",
			cfg:     types.RenderConfig{Runtime: types.RenderAuto},
			exec:    &mockExecutor{},
			wantErr: true,
		},
		{
			name:    "explicit dot missing",
			cfg:     types.RenderConfig{Runtime: types.RenderDot},
			exec:    &mockExecutor{availableBins: map[string]bool{"docker": true}},
			wantErr: true,
		},
		{
			name: "docker without image",
			cfg:  types.RenderConfig{Runtime: types.RenderDocker},
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true},
				runnableCmds:  map[string]bool{"docker info": true},
			},
			wantErr: true,
		},
		{
			name:     "docker with custom image",
			cfg:      types.RenderConfig{Runtime: types.RenderDocker, Image: "graphviz:local"},
			exec:     dockerReady("graphviz:local"),
			wantName: "docker",
		},
		{
			name:    "unknown runtime",
			cfg:     types.RenderConfig{Runtime: "lxc"},
			exec:    &mockExecutor{availableBins: map[string]bool{"dot": true}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := newRenderer(context.Background(), tt.cfg, tt.exec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got renderer %s", r.Name())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if r.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", r.Name(), tt.wantName)
			}
		})
	}
}

func TestRenderLocalDot(t *testing.T) {
	var gotName string
	var gotArgs []string
	ex := &mockExecutor{
		availableBins: map[string]bool{"dot": true},
		runPipedFunc: func(name string, args []string, stdin io.Reader, stdout io.Writer) error {
			gotName, gotArgs = name, args
			in, _ := io.ReadAll(stdin)
			if !strings.HasPrefix(string(in), "digraph") {
				t.Errorf("stdin = %q, want a DOT document", in)
			}
			_, err := stdout.Write([]byte("\x89PNG"))
			return err
		},
	}

	r, err := newRenderer(context.Background(), types.RenderConfig{Runtime: types.RenderDot}, ex)
	if err != nil {
		t.Fatal(err)
	}

	var png bytes.Buffer
	if err := r.Render(context.Background(), strings.NewReader("digraph nidm {}"), &png); err != nil {
		t.Fatal(err)
	}
	if gotName != "dot" {
		t.Errorf("ran %q, want dot", gotName)
	}
	if strings.Join(gotArgs, " ") != "-Tpng" {
		t.Errorf("args = %v, want [-Tpng]", gotArgs)
	}
	if png.String() != "\x89PNG" {
		t.Errorf("png = %q", png.String())
	}
}

func TestRenderInContainer(t *testing.T) {
	var gotArgs []string
	ex := dockerReady(DefaultImage)
	ex.runPipedFunc = func(name string, args []string, stdin io.Reader, stdout io.Writer) error {
		gotArgs = args
		return nil
	}

	r, err := newRenderer(context.Background(), types.RenderConfig{Runtime: types.RenderDocker}, ex)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Render(context.Background(), strings.NewReader("digraph {}"), io.Discard); err != nil {
		t.Fatal(err)
	}

	want := "run --rm -i " + DefaultImage + " dot -Tpng"
	if got := strings.Join(gotArgs, " "); got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}

func TestRenderFailure(t *testing.T) {
	ex := &mockExecutor{
		availableBins: map[string]bool{"dot": true},
		runPipedFunc: func(string, []string, io.Reader, io.Writer) error {
			return errors.New("exit status 1")
		},
	}
	r, err := newRenderer(context.Background(), types.RenderConfig{Runtime: types.RenderDot}, ex)
	if err != nil {
		t.Fatal(err)
	}
	err = r.Render(context.Background(), strings.NewReader("digraph {}"), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "rendering graph with dot") {
		t.Errorf("err = %v, want wrapped render error", err)
	}
}
