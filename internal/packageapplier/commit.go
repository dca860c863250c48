package packageapplier

import (
	"fmt"
	"os"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

// CommitError reports that stage 6's commit sequence failed partway
// through. It distinguishes a rename failure whose rollback of
// already-committed files succeeded from one where the rollback also
// failed, the same distinction the teacher's go-update package makes
// with its rollbackErr/RollbackError pair — callers that only check
// for a non-nil error still see a normal error; callers that care can
// type-assert for the RollbackFailed field.
type CommitError struct {
	Cause          error
	RollbackFailed error
}

func (e *CommitError) Error() string {
	if e.RollbackFailed != nil {
		return fmt.Sprintf("commit failed and rollback also failed: %v (rollback: %v)", e.Cause, e.RollbackFailed)
	}
	return fmt.Sprintf("commit failed, rolled back: %v", e.Cause)
}

func (e *CommitError) Unwrap() error { return e.Cause }

// commitStep records one target whose previous contents were backed
// up to commitStep.backupPath (if it existed) before the staged
// replacement was renamed into place.
type commitStep struct {
	targetPath string
	backupPath string
	hadBackup  bool
}

// commit implements §4.6 step 6: renames happen first, in the order
// staged was already sorted to (manifest Files order), each preceded
// by backing up the current target so a later failure can restore it;
// deletions happen last, only after every rename succeeds.
func commit(files []staged, removed []string) error {
	var done []commitStep

	for _, s := range files {
		backup := s.targetPath + ".old"
		hadBackup := false
		if _, err := os.Stat(s.targetPath); err == nil {
			if err := os.Rename(s.targetPath, backup); err != nil {
				return rollbackFrom(done, updateerr.New(updateerr.KindIO, s.targetPath, err))
			}
			hadBackup = true
		}

		if err := os.Rename(s.tmpPath, s.targetPath); err != nil {
			if hadBackup {
				done = append(done, commitStep{targetPath: s.targetPath, backupPath: backup, hadBackup: true})
			}
			return rollbackFrom(done, updateerr.New(updateerr.KindIO, s.targetPath, err))
		}

		done = append(done, commitStep{targetPath: s.targetPath, backupPath: backup, hadBackup: hadBackup})
	}

	// Every rename succeeded: discard backups, then process removals.
	for _, c := range done {
		if c.hadBackup {
			_ = os.Remove(c.backupPath)
		}
	}
	for _, path := range removed {
		_ = os.Remove(path)
	}
	return nil
}

// rollbackFrom restores every already-committed target from its
// backup, in reverse order, and reports a CommitError carrying cause
// plus whatever rollback failure (if any) it encountered along the
// way.
func rollbackFrom(done []commitStep, cause error) error {
	var rollbackErr error
	for i := len(done) - 1; i >= 0; i-- {
		c := done[i]
		if !c.hadBackup {
			_ = os.Remove(c.targetPath)
			continue
		}
		if err := os.Rename(c.backupPath, c.targetPath); err != nil && rollbackErr == nil {
			rollbackErr = err
		}
	}
	return &CommitError{Cause: cause, RollbackFailed: rollbackErr}
}
