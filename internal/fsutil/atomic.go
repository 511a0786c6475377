// Package fsutil holds the crash-safe file primitives shared by the file-backed
// counter and its processed-event log.
package fsutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/hpungsan/salawat/internal/errors"
)

// WriteAtomic replaces path with data.
//
// The data goes to a fresh temp file next to path, which is fsynced and then
// renamed over path, so readers see either the previous or the new content and
// an interrupted write leaves the previous content intact. rename is os.Rename
// outside of tests. The caller syncs the directory afterwards.
func WriteAtomic(path string, data []byte, rename func(oldpath, newpath string) error) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := OpenNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return errors.NewPersistenceFailure("create temp file", err)
	}

	// Clean up temp file on failure (previous content is preserved)
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewPersistenceFailure("write temp file", err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewPersistenceFailure("sync temp file", err)
	}
	// Close before rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewPersistenceFailure("close temp file", err)
	}
	file = nil

	// os.Rename would replace a symlink rather than its target; refuse instead.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewPersistenceFailure("replace file", fmt.Errorf("%s is a symlink", path))
	}

	if err := rename(tempPath, path); err != nil {
		return errors.NewPersistenceFailure("replace file", err)
	}
	success = true
	return nil
}
