package gateway

import (
	"context"
	"fmt"
	"path"
	"strings"

	"lifesync/internal/core"
	"lifesync/internal/log"
	"lifesync/internal/store"
)

// AttachPhoto uploads a prescription photo and stores its URL on the record.
// The upload is removed again when the record write fails. Both steps share
// the step timeout.
func (g *Gateway) AttachPhoto(ctx context.Context, prescriptionID, filename string, data []byte) (string, error) {
	if g.blobs == nil {
		return "", fmt.Errorf("attach photo: no blob store configured")
	}
	if len(data) == 0 {
		return "", g.fail(ctx, log.OpUpload, core.CollectionPrescriptions, prescriptionID,
			core.NewValidationError("photo", "empty file"))
	}
	var url string
	err := g.step(ctx, func(ctx context.Context) error {
		p := g.path(core.CollectionPrescriptions)
		if _, err := g.store.Get(ctx, p, prescriptionID); err != nil {
			return err
		}
		name := path.Join(p, prescriptionID, store.NewID()+path.Ext(strings.ToLower(filename)))
		u, err := g.blobs.Upload(ctx, name, data)
		if err != nil {
			return fmt.Errorf("upload photo: %w", err)
		}
		if err := g.store.Update(ctx, p, prescriptionID, map[string]any{"photoUrl": u, "updatedAt": store.ServerTimestamp}); err != nil {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.stepTimeout)
			defer cancel()
			if derr := g.blobs.Delete(cctx, u); derr != nil {
				g.logger.WarnContext(ctx, "orphaned photo", "url", u, log.FieldError, derr)
			}
			return fmt.Errorf("store photo url: %w", err)
		}
		url = u
		return nil
	})
	if err != nil {
		return "", g.fail(ctx, log.OpUpload, core.CollectionPrescriptions, prescriptionID, err)
	}
	g.announce(ctx, store.Change{Path: g.path(core.CollectionPrescriptions), ID: prescriptionID, Op: store.OpUpdate})
	return url, nil
}
