package detector

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/heartmarshall/treecleaner/internal/domain"
	"github.com/heartmarshall/treecleaner/internal/similarity"
)

const (
	MediaLinkConfidence  = 0.9
	MediaFilenameFloor   = 0.92
	MediaSizeTolerance   = 0.02
	DefaultMediaSizeBump = 0.05
)

// MediaDuplicates flags redundant link rows and look-alike asset files.
type MediaDuplicates struct {
	SizeBump float64
}

func (MediaDuplicates) Name() string { return "duplicate_media" }

func (m MediaDuplicates) Detect(snap *domain.Snapshot) []domain.Candidate {
	out := DuplicateMediaLinks(snap.MediaLinks)
	return append(out, DuplicateMediaAssets(snap.MediaAssets, m.SizeBump)...)
}

type linkTarget struct {
	assetID  int64
	isFamily bool
	targetID int64
}

// DuplicateMediaLinks groups links by (asset, person) and (asset, family).
func DuplicateMediaLinks(links []domain.MediaLink) []domain.Candidate {
	groups := make(map[linkTarget][]int64)
	var order []linkTarget
	add := func(k linkTarget, id int64) {
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], id)
	}
	for _, l := range links {
		if l.PersonID != nil {
			add(linkTarget{assetID: l.AssetID, targetID: *l.PersonID}, l.ID)
		}
		if l.FamilyID != nil {
			add(linkTarget{assetID: l.AssetID, isFamily: true, targetID: *l.FamilyID}, l.ID)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.assetID != b.assetID {
			return a.assetID < b.assetID
		}
		if a.isFamily != b.isFamily {
			return !a.isFamily
		}
		return a.targetID < b.targetID
	})

	var out []domain.Candidate
	for _, k := range order {
		ids := sortedIDs(groups[k])
		if len(ids) < 2 {
			continue
		}
		expl := domain.DuplicateMediaLinkExplanation{AssetID: k.assetID, LinkIDs: ids}
		target := "person"
		if k.isFamily {
			target = "family"
			expl.FamilyID = &k.targetID
		} else {
			expl.PersonID = &k.targetID
		}
		out = append(out, domain.Candidate{
			IssueType:   domain.IssueDuplicateMediaLink,
			Severity:    domain.SeverityInfo,
			EntityType:  domain.EntityMediaLink,
			EntityIDs:   ids,
			DedupKey:    fmt.Sprintf("%s:%d:%s:%d", domain.IssueDuplicateMediaLink, k.assetID, target, k.targetID),
			Confidence:  MediaLinkConfidence,
			ImpactScore: float64(len(ids) - 1),
			Explanation: expl,
		})
	}
	return out
}

// extensionFamilies maps alternate spellings of a file type to one
// extension.
var extensionFamilies = map[string]string{
	".jpeg": ".jpg",
	".jpe":  ".jpg",
	".tiff": ".tif",
	".htm":  ".html",
	".mpeg": ".mpg",
}

// comparableName lower-cases name and spells its extension the way its
// family does. It also returns that extension.
func comparableName(name string) (string, string) {
	raw := path.Ext(name)
	ext := strings.ToLower(raw)
	if fam, ok := extensionFamilies[ext]; ok {
		ext = fam
	}
	return strings.ToLower(strings.TrimSuffix(name, raw)) + ext, ext
}

// DuplicateMediaAssets compares filenames of assets of the same file type.
func DuplicateMediaAssets(assets []domain.MediaAsset, sizeBump float64) []domain.Candidate {
	buckets := make(map[string][]*domain.MediaAsset)
	for i := range assets {
		a := &assets[i]
		name := assetFilename(a)
		if name == "" {
			continue
		}
		_, ext := comparableName(name)
		buckets[ext] = append(buckets[ext], a)
	}
	exts := make([]string, 0, len(buckets))
	for e := range buckets {
		exts = append(exts, e)
	}
	sort.Strings(exts)

	var out []domain.Candidate
	for _, ext := range exts {
		bucket := buckets[ext]
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].ID < bucket[j].ID })
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i], bucket[j]
				na, nb := assetFilename(a), assetFilename(b)
				ca, _ := comparableName(na)
				cb, _ := comparableName(nb)
				sim := similarity.EditSimilarity(ca, cb)
				if sim < MediaFilenameFloor {
					continue
				}
				expl := domain.DuplicateMediaAssetExplanation{
					Filenames:          [2]string{na, nb},
					FilenameSimilarity: sim,
					Sizes:              [2]*int64{a.SizeBytes, b.SizeBytes},
				}
				confidence := sim
				if sizesClose(a.SizeBytes, b.SizeBytes) {
					expl.SizeMatch = true
					expl.SizeBump = sizeBump
					confidence += sizeBump
				}
				out = append(out, domain.Candidate{
					IssueType:   domain.IssueDuplicateMediaAsset,
					Severity:    domain.SeverityInfo,
					EntityType:  domain.EntityMediaAsset,
					EntityIDs:   []int64{a.ID, b.ID},
					DedupKey:    domain.PairKey(domain.IssueDuplicateMediaAsset, a.ID, b.ID),
					Confidence:  clamp01(confidence),
					ImpactScore: 1,
					Explanation: expl,
				})
			}
		}
	}
	return out
}

func assetFilename(a *domain.MediaAsset) string {
	name := a.OriginalFilename
	if name == "" {
		name = path.Base(strings.ReplaceAll(a.Path, `\`, "/"))
		if name == "." || name == "/" {
			return ""
		}
	}
	return strings.ToLower(strings.TrimSpace(name))
}

func sizesClose(a, b *int64) bool {
	if a == nil || b == nil || *a <= 0 || *b <= 0 {
		return false
	}
	lo, hi := *a, *b
	if lo > hi {
		lo, hi = hi, lo
	}
	return float64(hi-lo) <= MediaSizeTolerance*float64(hi)
}
