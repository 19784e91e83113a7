package detector

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/ocrsam/internal/utils"
)

// NonMaxSuppression keeps the most confident of any pair of regions whose
// boxes overlap by more than iouThreshold. Output is sorted by confidence.
func NonMaxSuppression(regions []Region, iouThreshold float64) []Region {
	if len(regions) <= 1 {
		return regions
	}
	order := make([]int, len(regions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return regions[order[i]].Confidence > regions[order[j]].Confidence
	})

	suppressed := make([]bool, len(regions))
	kept := make([]Region, 0, len(regions))
	for oi, a := range order {
		if suppressed[a] {
			continue
		}
		kept = append(kept, regions[a])
		for _, b := range order[oi+1:] {
			if !suppressed[b] && ComputeRegionIoU(regions[a].Box, regions[b].Box) > iouThreshold {
				suppressed[b] = true
			}
		}
	}
	return kept
}

// ComputeRegionIoU returns intersection over union of two boxes.
func ComputeRegionIoU(a, b utils.Box) float64 {
	left, top := math.Max(a.MinX, b.MinX), math.Max(a.MinY, b.MinY)
	right, bottom := math.Min(a.MaxX, b.MaxX), math.Min(a.MaxY, b.MaxY)
	if left >= right || top >= bottom {
		return 0
	}
	inter := (right - left) * (bottom - top)
	union := a.Width()*a.Height() + b.Width()*b.Height() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
