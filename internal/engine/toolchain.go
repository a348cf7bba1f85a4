package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/qrioso-software/qriosdeploy/internal/config"
	"github.com/qrioso-software/qriosdeploy/internal/util"
)

// Toolchain runs the configured external build and package commands. It
// implements Builder and Packager by delegating everything to the
// toolchain's own exit status: a non-zero exit aborts the workflow and the
// tool's output is streamed to the operator as-is.
type Toolchain struct {
	cfg *config.DeployConfig
}

// NewToolchain wraps the build/package commands from the config.
func NewToolchain(cfg *config.DeployConfig) *Toolchain {
	return &Toolchain{cfg: cfg}
}

// Build invokes the configured build command.
func (t *Toolchain) Build(ctx context.Context) error {
	return runCommand(ctx, "build", t.cfg.Build)
}

// Package invokes the configured package command and verifies that every
// configured artifact actually exists afterwards. A package step that exits
// zero without producing its artifacts is still a failure.
func (t *Toolchain) Package(ctx context.Context) error {
	if err := runCommand(ctx, "package", t.cfg.Package); err != nil {
		return err
	}

	artifacts := []string{t.cfg.Functions.Primary.Artifact}
	if t.cfg.Functions.Authorizer.Enabled {
		artifacts = append(artifacts, t.cfg.Functions.Authorizer.Artifact)
	}

	for _, artifact := range artifacts {
		info, err := os.Stat(artifact)
		if err != nil {
			return fmt.Errorf("package command did not produce artifact %s: %w", artifact, err)
		}
		checksum, err := util.FileSHA256(artifact)
		if err != nil {
			return fmt.Errorf("error hashing artifact %s: %w", artifact, err)
		}
		log.Printf("📦 Packaged %s (%s, sha256 %.12s)", artifact, humanize.Bytes(uint64(info.Size())), checksum)
	}
	return nil
}

func runCommand(ctx context.Context, name string, cc config.CommandConfig) error {
	cmd := exec.CommandContext(ctx, cc.Command[0], cc.Command[1:]...)
	cmd.Dir = cc.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	log.Printf("🔨 Running %s: %s", name, strings.Join(cc.Command, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s command failed: %w", name, err)
	}
	return nil
}
