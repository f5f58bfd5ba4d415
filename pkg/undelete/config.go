// Package undelete implements the copy-before-delete protocol the gateway
// applies to object deletes: policy resolution from scope sysmeta, the
// tri-state control header translation, and the trash copy with lazy
// provisioning of trash containers.
package undelete

import "strings"

const (
	// ClientHeader is the client-visible policy control header.
	ClientHeader = "X-Undelete-Enabled"

	// SysmetaKey is the metadata key the policy flag persists under, at both
	// account and container scope.
	SysmetaKey = "undelete-enabled"
)

// Config is the immutable undelete configuration, fixed at startup.
type Config struct {
	// TrashPrefix is prepended to a container name to form its trash container.
	TrashPrefix string

	// TrashLifetime is how long, in seconds, trashed copies live. 0 = forever.
	TrashLifetime int64

	// BlockTrashDeletes rejects deletes from trash containers for all callers.
	BlockTrashDeletes bool

	// EnableByDefault is the policy when no scope metadata opts in or out.
	EnableByDefault bool
}

// DefaultConfig mirrors the backend's documented defaults: ".trash-" prefix
// and a 90 day lifetime.
func DefaultConfig() Config {
	return Config{
		TrashPrefix:     ".trash-",
		TrashLifetime:   86400 * 90,
		EnableByDefault: true,
	}
}

// IsTrash reports whether a container is a trash container.
func (c Config) IsTrash(container string) bool {
	return strings.HasPrefix(container, c.TrashPrefix)
}

// TrashContainer returns the trash destination for a container.
func (c Config) TrashContainer(container string) string {
	return c.TrashPrefix + container
}

// VersionsContainer returns the history-retention companion for a trash
// container. It must exist before the trash container references it.
func VersionsContainer(trashContainer string) string {
	return trashContainer + "-versions"
}
