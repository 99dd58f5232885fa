/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fetch

import (
	"context"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// Prefetch loads the version documents for infos concurrently, at most limit
// at a time, caching each under root/<id>. Results are in input order.
func (c *Client) Prefetch(ctx context.Context, infos []VersionInfo, root string, limit int) ([]*Version, error) {
	if limit <= 0 {
		limit = 1
	}
	clog.FromContext(ctx).Infof("Fetching %d version documents", len(infos))

	out := make([]*Version, len(infos))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for i, info := range infos {
		eg.Go(func() error {
			v, err := c.VersionDocument(ctx, info, filepath.Join(root, info.ID))
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
