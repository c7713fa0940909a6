// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/nidm-export/internal/pipeline"
	"github.com/pdiddy/nidm-export/pkg/types"
)

// configFlags maps viper keys to the command flags that override them.
var configFlags = map[string]string{
	"layout":                      "layout",
	"export_dir":                  "export-dir",
	"database":                    "db",
	"image_ext":                   "image-ext",
	"allow_incomplete_thresholds": "allow-incomplete-thresholds",
	"render.enabled":              "render",
	"render.runtime":              "render-runtime",
	"render.image":                "render-image",
}

// setConfigDefaults registers every key so that config files and
// NIDM_EXPORT_* variables reach them.
func setConfigDefaults() {
	d := pipeline.DefaultConfig()
	viper.SetDefault("layout", d.Layout)
	viper.SetDefault("export_dir", d.ExportDir)
	viper.SetDefault("database", d.Database)
	viper.SetDefault("image_ext", d.ImageExt)
	viper.SetDefault("allow_incomplete_thresholds", d.AllowIncompleteThresholds)
	viper.SetDefault("render.enabled", d.Render.Enabled)
	viper.SetDefault("render.runtime", string(d.Render.Runtime))
	viper.SetDefault("render.image", d.Render.Image)
}

// addConfigFlags declares the flags shared by export and inspect.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("layout", "", "results directory layout: fsl or fsl-legacy (default fsl)")
	cmd.Flags().String("image-ext", "", "image file extension (default .nii.gz)")
	cmd.Flags().Bool("allow-incomplete-thresholds", false, "continue with unknown thresholds when the status report is unrecognized")
}

// exportConfig merges config file, environment and the flags the user set,
// then validates the result.
func exportConfig(cmd *cobra.Command) (types.ExportConfig, error) {
	for key, name := range configFlags {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return types.ExportConfig{}, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	var cfg types.ExportConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.ExportConfig{}, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := pipeline.ValidateConfig(cfg); err != nil {
		return types.ExportConfig{}, err
	}
	return cfg, nil
}
