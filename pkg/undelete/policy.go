package undelete

import (
	"context"

	"github.com/trashgate/trashgate/pkg/logger"
)

// MetadataSource reads persisted sysmeta for accounts and containers. Keys are
// lowercased with the sysmeta header prefix stripped.
type MetadataSource interface {
	AccountMetadata(ctx context.Context, token, account string) (map[string]string, error)
	ContainerMetadata(ctx context.Context, token, account, container string) (map[string]string, error)
}

// Policy decides whether a delete must be preceded by a trash copy.
type Policy struct {
	cfg  Config
	meta MetadataSource
}

func NewPolicy(cfg Config, meta MetadataSource) *Policy {
	return &Policy{cfg: cfg, meta: meta}
}

// ShouldSaveCopy reports whether the object at account/container must be
// copied to trash before its delete proceeds.
//
// Trash containers are never protected; copying trash into trash would recurse
// without bound when expired trash is cleaned up. Otherwise the container
// flag wins, then the account flag, then the configured default.
//
// A metadata lookup failure resolves to protected: losing the policy read must
// not silently drop delete protection.
func (p *Policy) ShouldSaveCopy(ctx context.Context, token, account, container string) bool {
	if p.cfg.IsTrash(container) {
		return false
	}
	return p.resolve(ctx, token, account, container) == FlagEnabled
}

func (p *Policy) resolve(ctx context.Context, token, account, container string) Flag {
	fallback := FlagDisabled
	if p.cfg.EnableByDefault {
		fallback = FlagEnabled
	}

	containerMeta, err := p.meta.ContainerMetadata(ctx, token, account, container)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("account", account).
			Str("container", container).
			Msg("container metadata lookup failed, treating undelete as enabled")
		return FlagEnabled
	}
	if v, ok := containerMeta[SysmetaKey]; ok && v != "" {
		return ParseSysmetaFlag(v, true)
	}

	accountMeta, err := p.meta.AccountMetadata(ctx, token, account)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("account", account).
			Msg("account metadata lookup failed, treating undelete as enabled")
		return FlagEnabled
	}
	if v, ok := accountMeta[SysmetaKey]; ok && v != "" {
		return ParseSysmetaFlag(v, true)
	}

	return fallback
}
