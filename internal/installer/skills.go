package installer

import (
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/lockfile"
	"github.com/agpm-dev/agpm/internal/manifest"
	"github.com/agpm-dev/agpm/internal/pathutil"
	"github.com/agpm-dev/agpm/internal/sourcecache"
)

// Skill size limits, per spec §4.H step 3.
const (
	skillMaxFiles = 1000
	skillMaxBytes = 100 * 1024 * 1024
)

// installSkill copies a skill's directory tree from its resolved source
// into dest, staging the copy in a sibling temp directory and renaming
// over the final path so a reader never observes a partially-written
// skill, the same rename-for-atomicity idiom atomicfile.Write applies to a
// single file, generalized to a tree.
func installSkill(paths *pathutil.Paths, cache *sourcecache.Cache, m *manifest.Manifest, res *lockfile.LockedResource, dest string) error {
	srcDir, err := skillSourceDir(paths, cache, m, res)
	if err != nil {
		return err
	}

	if err := validateSkillTree(res.Name, srcDir); err != nil {
		return err
	}

	if err := pathutil.EnsureDir(filepath.Dir(dest)); err != nil {
		return agpmerrors.NewWriteError(res.Name, dest, err)
	}

	staging := dest + fmt.Sprintf(".staging-%x", rand.Uint64())
	if err := copyTree(srcDir, staging); err != nil {
		os.RemoveAll(staging)
		return agpmerrors.NewWriteError(res.Name, dest, err)
	}

	// Replace any previously installed version of this skill wholesale;
	// updates never try to reconcile individual files inside the tree.
	if err := os.RemoveAll(dest); err != nil {
		os.RemoveAll(staging)
		return agpmerrors.NewAtomicRenameError(dest, err)
	}
	if err := os.Rename(staging, dest); err != nil {
		os.RemoveAll(staging)
		return agpmerrors.NewAtomicRenameError(dest, err)
	}

	return nil
}

// skillSourceDir resolves the on-disk directory a skill's content should
// be copied from: the project directory for a local dependency, or the
// resolved-commit worktree for a remote one.
func skillSourceDir(paths *pathutil.Paths, cache *sourcecache.Cache, m *manifest.Manifest, res *lockfile.LockedResource) (string, error) {
	if res.Source == "" {
		return filepath.Join(paths.ProjectDir(), filepath.FromSlash(res.Path)), nil
	}

	url, ok := m.Sources[res.Source]
	if !ok {
		return "", agpmerrors.NewSourceNotFoundError(res.Source)
	}

	worktree, err := cache.GetOrCreateWorktreeForSHA(res.Source, url, res.ResolvedCommit, "skill/"+res.Name)
	if err != nil {
		return "", err
	}
	return filepath.Join(worktree, filepath.FromSlash(res.Path)), nil
}

// validateSkillTree rejects a skill directory containing a symlink, or
// exceeding the file-count or total-byte-size cap.
func validateSkillTree(name, srcDir string) error {
	var files int
	var totalBytes int64

	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return agpmerrors.NewSkillSymlinkError(name, p)
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		totalBytes += info.Size()
		return nil
	})
	if err != nil {
		return err
	}

	if files > skillMaxFiles {
		return agpmerrors.NewSkillTooLargeError(name, fmt.Sprintf("%d files exceeds the %d-file cap", files, skillMaxFiles))
	}
	if totalBytes > skillMaxBytes {
		return agpmerrors.NewSkillTooLargeError(name, fmt.Sprintf("%d bytes exceeds the %d-byte cap", totalBytes, skillMaxBytes))
	}
	return nil
}

// copyTree recursively copies srcDir's contents into dstDir (created fresh),
// preserving regular file permissions. Called only after validateSkillTree
// has already rejected symlinks, so every entry walked here is a plain
// file or directory.
func copyTree(srcDir, dstDir string) error {
	return filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dstDir, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(p, target, info.Mode())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
