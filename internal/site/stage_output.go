package site

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
)

// stagePrepareOutput creates an empty staging directory next to the output directory.
func stagePrepareOutput(_ context.Context, bs *BuildState) error {
	stage := bs.builder.outputDir + ".staging"
	if err := os.RemoveAll(stage); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "clear staging directory").
			WithContext("path", stage).Build()
	}
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create staging directory").
			WithContext("path", stage).Build()
	}
	bs.stageDir = stage
	bs.logger.Debug("Initialized staging directory", logfields.Path(stage))
	return nil
}

// stageFinalizeOutput promotes the staging directory: the current output moves to
// "<output>.prev", staging is renamed into place and the backup is removed.
func stageFinalizeOutput(_ context.Context, bs *BuildState) error {
	out := bs.builder.outputDir
	prev := out + ".prev"
	if err := os.RemoveAll(prev); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove previous backup").
			WithContext("path", prev).Build()
	}
	hadOutput := false
	if _, err := os.Stat(out); err == nil {
		if err := os.Rename(out, prev); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "back up previous output").
				WithContext("path", out).Build()
		}
		hadOutput = true
	}
	if err := os.Rename(bs.stageDir, out); err != nil {
		if hadOutput {
			_ = os.Rename(prev, out)
		}
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "promote staging directory").
			WithContext("path", out).Build()
	}
	bs.stageDir = ""
	if err := os.RemoveAll(prev); err != nil {
		bs.logger.Warn("Failed to remove previous backup", logfields.Path(prev), logfields.Error(err))
	}
	bs.logger.Info("Promoted staging directory", logfields.Path(out))
	return nil
}

// abortStaging removes the staging directory of a failed build.
func (bs *BuildState) abortStaging() {
	if bs.stageDir == "" {
		return
	}
	dir := bs.stageDir
	bs.stageDir = ""
	if err := os.RemoveAll(dir); err != nil {
		bs.logger.Warn("Failed to remove staging directory after abort", logfields.Path(dir), logfields.Error(err))
		return
	}
	bs.logger.Debug("Removed staging directory after abort", logfields.Path(dir))
}

// writeOutput writes data to the site-relative path rel inside the staging directory.
func (bs *BuildState) writeOutput(rel string, data []byte) error {
	dst := filepath.Join(bs.stageDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create output directory").
			WithContext("path", rel).Build()
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write output file").
			WithContext("path", rel).Build()
	}
	return nil
}

// copyOutput copies r to the site-relative path rel inside the staging directory.
func (bs *BuildState) copyOutput(rel string, r io.Reader, mode fs.FileMode) error {
	dst := filepath.Join(bs.stageDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create output directory").
			WithContext("path", rel).Build()
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o200)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create output file").
			WithContext("path", rel).Build()
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "copy output file").
			WithContext("path", rel).Build()
	}
	return f.Close()
}
