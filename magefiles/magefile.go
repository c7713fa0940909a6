//go:build mage

// Package main contains Mage build targets for nidm-export developer tooling.
package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "nidm-export"
	cmdPkg  = "./cmd/nidm-export"
)

func binPath() string {
	return filepath.Join(binDir, binName)
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	if err := sh.RunV("go", "build", "-o", binPath(), cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", binPath())
	return nil
}

// Test runs the unit tests of every package.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Export builds the CLI and converts the FEAT results directory dir.
func Export(dir string) error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "export", dir)
}

// Inspect builds the CLI and prints what exporting dir would produce.
func Inspect(dir string) error {
	mg.Deps(Build)
	return sh.RunV(binPath(), "inspect", dir)
}

// Stats prints non-blank Go lines per package, production and tests apart.
func Stats() error {
	type count struct{ prod, test int }
	counts := map[string]*count{}

	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || (d.Name() != "." && strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		n := nonBlankLines(data)

		pkg := filepath.Dir(path)
		c := counts[pkg]
		if c == nil {
			c = &count{}
			counts[pkg] = c
		}
		if strings.HasSuffix(path, "_test.go") {
			c.test += n
		} else {
			c.prod += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	pkgs := make([]string, 0, len(counts))
	for p := range counts {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)

	var total count
	fmt.Printf("%-32s  %8s  %8s\n", "Package", "Prod", "Test")
	for _, p := range pkgs {
		c := counts[p]
		fmt.Printf("%-32s  %8d  %8d\n", p, c.prod, c.test)
		total.prod += c.prod
		total.test += c.test
	}
	fmt.Printf("%-32s  %8d  %8d\n", "total", total.prod, total.test)
	return nil
}

func nonBlankLines(data []byte) int {
	n := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n
}
