package remediation

import (
	"context"
	"fmt"
	"time"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

// ---------------------------------------------------------------------------
// dedupeMediaLinks
// ---------------------------------------------------------------------------

// DedupeMediaLinks deletes every listed link except KeepID. All links must
// attach the same asset to the same person or family.
func (s *Service) DedupeMediaLinks(ctx context.Context, input DedupeMediaLinksInput) (*ActionResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	p := domain.DedupeMediaLinksPayload{
		LinkIDs:  input.LinkIDs,
		KeepID:   input.KeepID,
		IssueIDs: input.IssueIDs,
	}
	return s.apply(ctx, domain.ActionDedupeMediaLinks, p, p.IssueIDs, input.AppliedBy, s.dedupeLinksStep(p))
}

func (s *Service) dedupeLinksStep(p domain.DedupeMediaLinksPayload) forwardFunc {
	return func(ctx context.Context, _ time.Time, res *ActionResult) (any, error) {
		links, err := s.media.GetLinksForUpdate(ctx, p.LinkIDs)
		if err != nil {
			return nil, fmt.Errorf("get media links: %w", err)
		}
		if len(links) != len(p.LinkIDs) {
			return nil, fmt.Errorf("media links %v: %w", missingLinks(p.LinkIDs, links), domain.ErrNotFound)
		}

		var keep *domain.MediaLink
		for i := range links {
			if links[i].ID == p.KeepID {
				keep = &links[i]
			}
		}
		undo := domain.DedupeMediaLinksUndo{Removed: []domain.MediaLink{}}
		for _, l := range links {
			if !sameAttachment(l, *keep) {
				return nil, domain.NewValidationError("link_ids",
					fmt.Sprintf("link %d does not attach the same asset and owner as link %d", l.ID, keep.ID))
			}
			if l.ID == keep.ID {
				continue
			}
			if err := s.media.DeleteLink(ctx, l.ID); err != nil {
				return nil, fmt.Errorf("delete media link %d: %w", l.ID, err)
			}
			undo.Removed = append(undo.Removed, l)
		}

		res.Link = keep
		return undo, nil
	}
}

func (s *Service) revertDedupeLinks(ctx context.Context, d domain.DedupeMediaLinksUndo, _ *ActionResult) error {
	for i := range d.Removed {
		l := d.Removed[i]
		if err := s.media.InsertLink(ctx, &l); err != nil {
			return fmt.Errorf("restore media link %d: %w", l.ID, err)
		}
	}
	return nil
}

func sameAttachment(a, b domain.MediaLink) bool {
	return a.AssetID == b.AssetID && equalID(a.PersonID, b.PersonID) && equalID(a.FamilyID, b.FamilyID)
}

func missingLinks(ids []int64, found []domain.MediaLink) []int64 {
	have := make(map[int64]bool, len(found))
	for _, l := range found {
		have[l.ID] = true
	}
	var out []int64
	for _, id := range ids {
		if !have[id] {
			out = append(out, id)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// mergeMediaAssets
// ---------------------------------------------------------------------------

// MergeMediaAssets moves every link of asset FromID to IntoID and deletes
// the merged asset row. Stored files are not touched.
func (s *Service) MergeMediaAssets(ctx context.Context, input MergeInput) (*ActionResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	p := domain.MergeMediaAssetsPayload{
		FromID:   input.FromID,
		IntoID:   input.IntoID,
		IssueIDs: input.IssueIDs,
	}
	return s.apply(ctx, domain.ActionMergeMediaAssets, p, p.IssueIDs, input.AppliedBy, s.mergeAssetsStep(p))
}

func (s *Service) mergeAssetsStep(p domain.MergeMediaAssetsPayload) forwardFunc {
	return func(ctx context.Context, _ time.Time, res *ActionResult) (any, error) {
		var from, into *domain.MediaAsset
		for _, id := range lockOrder(p.FromID, p.IntoID) {
			a, err := s.media.GetAssetForUpdate(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("get media asset %d: %w", id, err)
			}
			if id == p.FromID {
				from = a
			} else {
				into = a
			}
		}

		refs, err := s.refs.ListRefs(ctx, domain.EntityMediaAsset, from.ID)
		if err != nil {
			return nil, fmt.Errorf("list refs of media asset %d: %w", from.ID, err)
		}
		if err := s.checkRefLimit(len(refs)); err != nil {
			return nil, err
		}

		moved, _, err := s.moveRefs(ctx, refs, into.ID)
		if err != nil {
			return nil, err
		}
		if err := s.media.DeleteAsset(ctx, from.ID); err != nil {
			return nil, fmt.Errorf("delete media asset %d: %w", from.ID, err)
		}

		res.Asset = into
		return domain.MergeMediaAssetsUndo{From: *from, MovedRefs: moved}, nil
	}
}

func (s *Service) revertMergeAssets(ctx context.Context, d domain.MergeMediaAssetsUndo, res *ActionResult) error {
	from := d.From
	if err := s.media.InsertAsset(ctx, &from); err != nil {
		return fmt.Errorf("restore media asset %d: %w", from.ID, err)
	}
	if err := s.restoreRefs(ctx, d.MovedRefs, nil, from.ID); err != nil {
		return err
	}
	res.Asset = &from
	return nil
}
