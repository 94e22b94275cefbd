package writer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cognisys/memorybank/internal/errs"
)

// MergeStrategy selects how merge() resolves divergent branches (spec
// §4.4).
type MergeStrategy string

const (
	FastForwardOrFail MergeStrategy = "fast_forward_or_fail"
	ThreeWay          MergeStrategy = "three_way"
)

// CheckoutBranch switches conn's active branch via Dolt's CALL
// DOLT_CHECKOUT procedure (spec §4.4).
func CheckoutBranch(ctx context.Context, conn *sql.Conn, branch string) error {
	if _, err := conn.ExecContext(ctx, "CALL DOLT_CHECKOUT(?)", branch); err != nil {
		return errs.Wrap(errs.ConnectionError, fmt.Sprintf("checking out branch %s", branch), err)
	}
	return nil
}

// CreateBranch creates a new branch from `from` (the current branch's
// head if from is empty), per spec §4.4.
func CreateBranch(ctx context.Context, conn *sql.Conn, name, from string) error {
	var err error
	if from == "" {
		_, err = conn.ExecContext(ctx, "CALL DOLT_BRANCH(?)", name)
	} else {
		_, err = conn.ExecContext(ctx, "CALL DOLT_BRANCH(?, ?)", name, from)
	}
	if err != nil {
		if isDuplicateBranch(err) {
			return errs.New(errs.Duplicate, fmt.Sprintf("branch %s already exists", name)).
				WithDetails(map[string]any{"branch": name})
		}
		return errs.Wrap(errs.ConnectionError, fmt.Sprintf("creating branch %s", name), err)
	}
	return nil
}

// CommitResult is the outcome of a commit() call (spec §4.4, §4.7).
type CommitResult struct {
	CommitHash string
	NoChanges  bool
}

// Commit records the staged changes as a backend commit via the
// DOLT_COMMIT procedure and returns its hash; it writes no proof rows
// (the bank facade adds those after a block write). If nothing changed,
// NoChanges is set rather than treating the call as an error (spec
// §4.4: "NoChanges (not an error)").
func Commit(ctx context.Context, conn *sql.Conn, message, author string) (*CommitResult, error) {
	row := conn.QueryRowContext(ctx, "CALL DOLT_COMMIT(?, ?, ?, ?)", "-m", message, "--author", author)
	var hash string
	if err := row.Scan(&hash); err != nil {
		if isNothingToCommit(err) {
			return &CommitResult{NoChanges: true}, nil
		}
		return nil, errs.Wrap(errs.CommitFailed, "committing staged changes", err)
	}
	return &CommitResult{CommitHash: hash}, nil
}

// Merge merges source into target using strategy (spec §4.4). A
// conflict that the backend cannot resolve surfaces as CommitFailed,
// per spec §9 Open Question (b).
func Merge(ctx context.Context, conn *sql.Conn, source, target string, strategy MergeStrategy) (*CommitResult, error) {
	if _, err := conn.ExecContext(ctx, "CALL DOLT_CHECKOUT(?)", target); err != nil {
		return nil, errs.Wrap(errs.ConnectionError, fmt.Sprintf("checking out merge target %s", target), err)
	}

	var args []any
	switch strategy {
	case FastForwardOrFail:
		args = []any{source, "--ff-only"}
	case ThreeWay:
		args = []any{source, "--no-ff"}
	default:
		return nil, errs.New(errs.Validation, fmt.Sprintf("unknown merge strategy %q", strategy))
	}

	row := conn.QueryRowContext(ctx, "CALL DOLT_MERGE(?, ?)", args...)
	var hash string
	if err := row.Scan(&hash); err != nil {
		return nil, errs.Wrap(errs.CommitFailed, fmt.Sprintf("merging %s into %s", source, target), err)
	}
	return &CommitResult{CommitHash: hash}, nil
}

func isDuplicateBranch(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func isNothingToCommit(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "nothing to commit")
}
