package undelete

import (
	"context"
	"fmt"

	"github.com/trashgate/trashgate/pkg/logger"
	"github.com/trashgate/trashgate/pkg/storeclient"
)

// Backend is the slice of the storage backend the trash protocol needs.
type Backend interface {
	CopyObject(ctx context.Context, token, srcPath, destContainer, destObject string, expireAfter int64) (*storeclient.CopyResult, error)
	CreateContainer(ctx context.Context, token, account, container, versionsLocation string) error
}

// CopyError is a copy attempt the backend rejected. The upstream status,
// headers, and body are carried verbatim so the caller can diagnose the
// failure.
type CopyError struct {
	Result *storeclient.CopyResult
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy to trash failed with status %d", e.Result.StatusCode)
}

// FriendlyErrorBody wraps an upstream error body with the explanation clients
// see when a delete is refused because its safety copy failed.
func FriendlyErrorBody(upstream []byte) []byte {
	return append([]byte("Error copying object to trash:\n"), upstream...)
}

// Trash performs the copy-then-provision-then-retry protocol.
type Trash struct {
	cfg     Config
	backend Backend
}

func NewTrash(cfg Config, backend Backend) *Trash {
	return &Trash{cfg: cfg, backend: backend}
}

// SaveCopy copies the object at srcPath into the trash container derived from
// container, creating the trash container (and its versions companion) on
// first use. srcPath is the backend path of the object being deleted.
//
// A nil return means the safety copy is confirmed and the delete may proceed.
// A *CopyError return carries the backend's rejection; any other error is a
// transport or provisioning failure.
//
// The retry budget is exactly one provision-and-retry cycle: a 404 on the
// retried copy is terminal, not provisioned again.
func (t *Trash) SaveCopy(ctx context.Context, token, srcPath, account, container, object string) error {
	trashContainer := t.cfg.TrashContainer(container)

	res, err := t.backend.CopyObject(ctx, token, srcPath, trashContainer, object, t.cfg.TrashLifetime)
	if err != nil {
		return fmt.Errorf("copy to trash: %w", err)
	}

	if res.NotFound() {
		if err := t.provision(ctx, token, account, trashContainer); err != nil {
			return fmt.Errorf("provision trash container: %w", err)
		}
		res, err = t.backend.CopyObject(ctx, token, srcPath, trashContainer, object, t.cfg.TrashLifetime)
		if err != nil {
			return fmt.Errorf("retry copy to trash: %w", err)
		}
	}

	if !res.OK() {
		return &CopyError{Result: res}
	}

	logger.Ctx(ctx).Debug().
		Str("account", account).
		Str("container", container).
		Str("object", object).
		Str("trash_container", trashContainer).
		Msg("object copied to trash")
	return nil
}

// provision creates the trash container and its history-retention companion.
// The companion is created first: the trash container references it via the
// versions location and the backend requires it to exist. Both creations are
// idempotent, so concurrent first deletions racing here converge on the same
// end state without coordination.
func (t *Trash) provision(ctx context.Context, token, account, trashContainer string) error {
	versions := VersionsContainer(trashContainer)

	if err := t.backend.CreateContainer(ctx, token, account, versions, ""); err != nil {
		return err
	}
	if err := t.backend.CreateContainer(ctx, token, account, trashContainer, versions); err != nil {
		return err
	}

	logger.Ctx(ctx).Info().
		Str("account", account).
		Str("trash_container", trashContainer).
		Str("versions_container", versions).
		Msg("trash container provisioned")
	return nil
}
