package pipeline

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
)

// Prepare resolves the local jar of the candidate and downloads it when absent.
// A local jar that does not match the checksum recorded by an earlier
// validation is validated again.
type Prepare struct {
	source           ArtifactSource
	store            Store
	blocklist        Blocklist
	blocklistEnabled bool
}

// NewPrepare creates the prepare stage.
func NewPrepare(deps Dependencies) *Prepare {
	return &Prepare{
		source:           deps.Source,
		store:            deps.Store,
		blocklist:        deps.Blocklist,
		blocklistEnabled: deps.BlocklistEnabled,
	}
}

// Name implements Stage.
func (p *Prepare) Name() string {
	return "prepare"
}

// Apply implements Stage.
func (p *Prepare) Apply(ctx context.Context, app *deploy.Application) Outcome {
	if app == nil || app.Latest == nil || app.Latest.Version == "" {
		return Abort(deploy.NewFault(deploy.ConfigFault, p.Name(), nil, "latest version is not known", nil))
	}

	version := app.Latest.Version

	path, err := p.store.FilePath(version)
	if err != nil {
		return Abort(deploy.NewFault(deploy.ConfigFault, p.Name(), app.Latest, "resolve artifact path", err))
	}

	if p.blocklistEnabled && p.blocklist.IsBlocked(ctx, path) {
		candidate := app.Latest.Clone()
		candidate.File = path

		message := fmt.Sprintf("latest version is blocklisted, remove %s to unblock", p.blocklist.MarkerPath(path))

		return Abort(deploy.NewFault(deploy.VerificationFault, p.Name(), candidate, message, nil))
	}

	next := app.Clone()
	next.MarkedForValidation = false

	switch {
	case !p.store.Exists(path):
		logger.InfoKV(ctx, "Latest version is not present locally and will be downloaded", "version", version)

		if err = p.download(ctx, version, path); err != nil {
			return Abort(deploy.NewFault(deploy.TransportFault, p.Name(), next.Latest, "download latest version", err))
		}

		next.MarkedForValidation = true
	case !p.verified(path, next.Latest.Checksum):
		logger.InfoKV(ctx, "Local artifact does not match a validated checksum and will be validated", "version", version)

		next.MarkedForValidation = true
	}

	next.Latest.File = path

	return Continue(next)
}

// download installs the jar, letting the store refuse content that does
// not match the published SHA-1.
func (p *Prepare) download(ctx context.Context, version, path string) error {
	reference, err := p.source.Checksum(ctx, version, deploy.SHA1)
	if err != nil {
		return fmt.Errorf("fetch %s checksum: %w", deploy.SHA1.Name, err)
	}

	body, err := p.source.Fetch(ctx, version)
	if err != nil {
		return err
	}

	defer func() {
		_ = body.Close()
	}()

	return p.store.Install(ctx, path, body, reference)
}

// verified reports whether the jar at path has the hex SHA-1 recorded by an earlier validation.
func (p *Prepare) verified(path, checksum string) bool {
	if checksum == "" {
		return false
	}

	expected, err := hex.DecodeString(checksum)
	if err != nil {
		return false
	}

	local, err := p.store.Digest(path, deploy.SHA1)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(expected, local) == 1
}
