// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RenderRuntime selects how the graph image is produced.
type RenderRuntime string

const (
	// RenderAuto prefers a local dot binary and falls back to a container.
	RenderAuto   RenderRuntime = "auto"
	RenderDot    RenderRuntime = "dot"
	RenderDocker RenderRuntime = "docker"
	RenderPodman RenderRuntime = "podman"
)

// RenderConfig holds settings for the optional PNG rendering of the graph.
type RenderConfig struct {
	// Enabled turns PNG rendering on. Rendering failures are reported but
	// never abort an export.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Runtime is auto, dot, docker or podman (default auto).
	Runtime RenderRuntime `json:"runtime" yaml:"runtime" mapstructure:"runtime" validate:"omitempty,oneof=auto dot docker podman"`

	// Image is the graphviz container image used by docker or podman.
	Image string `json:"image" yaml:"image" mapstructure:"image"`
}

// ExportConfig holds settings for converting one results directory.
type ExportConfig struct {
	// Layout names the directory naming convention: fsl or fsl-legacy.
	Layout string `json:"layout" yaml:"layout" mapstructure:"layout" validate:"required,oneof=fsl fsl-legacy"`

	// ExportDir is where the graph files are written. Empty means
	// <results dir>/nidm.
	ExportDir string `json:"export_dir" yaml:"export_dir" mapstructure:"export_dir"`

	// Database is the SQLite file recording every run. Empty means
	// <export dir>/nidm.db.
	Database string `json:"database" yaml:"database" mapstructure:"database"`

	// ImageExt overrides the layout's image extension (e.g. ".nii").
	ImageExt string `json:"image_ext,omitempty" yaml:"image_ext,omitempty" mapstructure:"image_ext" validate:"omitempty,startswith=."`

	// AllowIncompleteThresholds lets a status report that matches neither
	// threshold template through with a warning instead of failing.
	AllowIncompleteThresholds bool `json:"allow_incomplete_thresholds" yaml:"allow_incomplete_thresholds" mapstructure:"allow_incomplete_thresholds"`

	Render RenderConfig `json:"render" yaml:"render" mapstructure:"render"`
}
