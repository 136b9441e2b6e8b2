package pipeline

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
)

// Validate checks digests and the signature of a candidate marked by Prepare.
// A checksum mismatch is treated as transport corruption and never
// blocklists; a bad signature blocklists when blocklisting is enabled.
// Every failure removes the jar, so an unverified file is never launched.
type Validate struct {
	source           ArtifactSource
	store            Store
	verifier         Verifier
	trustedKeys      []string
	blocklist        Blocklist
	blocklistEnabled bool
}

// NewValidate creates the validate stage.
func NewValidate(deps Dependencies) *Validate {
	return &Validate{
		source:           deps.Source,
		store:            deps.Store,
		verifier:         deps.Verifier,
		trustedKeys:      deps.TrustedKeys,
		blocklist:        deps.Blocklist,
		blocklistEnabled: deps.BlocklistEnabled,
	}
}

// Name implements Stage.
func (v *Validate) Name() string {
	return "validate"
}

// Apply implements Stage.
func (v *Validate) Apply(ctx context.Context, app *deploy.Application) Outcome {
	if !app.MarkedForValidation {
		logger.Debug(ctx, "Skipping validation, no new artifact was downloaded")

		return Continue(app)
	}

	latest := app.Latest

	var primary []byte

	for _, alg := range deploy.ReferenceAlgorithms() {
		reference, err := v.source.Checksum(ctx, latest.Version, alg)
		if err != nil {
			v.discard(ctx, latest.File)

			return Abort(deploy.NewFault(deploy.TransportFault, v.Name(), latest, "fetch "+alg.Name+" checksum", err))
		}

		local, err := v.store.Digest(latest.File, alg)
		if err != nil {
			v.discard(ctx, latest.File)

			return Abort(deploy.NewFault(deploy.VerificationFault, v.Name(), latest, "compute "+alg.Name+" checksum", err))
		}

		if subtle.ConstantTimeCompare(reference, local) != 1 {
			v.discard(ctx, latest.File)

			message := fmt.Sprintf("%s checksum verification failed", alg.Name)

			return Abort(deploy.NewFault(deploy.VerificationFault, v.Name(), latest, message, nil))
		}

		if primary == nil {
			primary = local
		}
	}

	signature, err := v.source.Signature(ctx, latest.Version)
	if err != nil {
		v.discard(ctx, latest.File)

		return Abort(deploy.NewFault(deploy.TransportFault, v.Name(), latest, "fetch signature", err))
	}

	if !v.verifier.Verify(ctx, latest.File, signature, v.trustedKeys) {
		if v.blocklistEnabled {
			if err = v.blocklist.Add(ctx, latest.File, "invalid artifact signature"); err != nil {
				logger.ErrorKV(ctx, "Failed to blocklist artifact", "file", latest.FileName(), "error", err)
			}
		}

		v.discard(ctx, latest.File)

		return Abort(deploy.NewFault(deploy.VerificationFault, v.Name(), latest, "invalid artifact signature", nil))
	}

	logger.InfoKV(ctx, "Artifact validated", "version", latest.Version)

	next := app.Clone()
	next.Latest.Checksum = hex.EncodeToString(primary)

	return Continue(next)
}

// discard removes a jar that failed verification so a later cycle downloads it again.
func (v *Validate) discard(ctx context.Context, path string) {
	if err := v.store.Remove(ctx, path); err != nil {
		logger.WarnKV(ctx, "Failed to remove unverified artifact", "path", path, "error", err)
	}
}
