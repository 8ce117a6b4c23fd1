package association

// CostModel turns tracks and detections into a cost matrix. The variant is
// chosen once when a tracker is built.
type CostModel interface {
	Cost(tracks, dets []Candidate) [][]float64
	Name() string
}

// GeometryOnly scores pairs by IoU distance alone.
type GeometryOnly struct {
	FuseScore bool
}

// Name implements CostModel.
func (GeometryOnly) Name() string { return "iou" }

// Cost implements CostModel.
func (g GeometryOnly) Cost(tracks, dets []Candidate) [][]float64 {
	c := IoUDistance(tracks, dets)
	if g.FuseScore {
		FuseScore(c, dets)
	}
	return c
}

// FusedGeometryAppearance combines IoU and appearance:
//
//	fused = min(iou, λ·app + (1−λ)·iou)
//
// where app is forced to 1 above AppearanceThresh. A pair where either side
// has no embedding uses the geometry cost. Otherwise a pair whose raw IoU
// distance exceeds ProximityThresh costs 1 regardless of appearance.
type FusedGeometryAppearance struct {
	FuseScore        bool
	ProximityThresh  float64
	AppearanceThresh float64
	AppearanceWeight float64 // λ
}

// Name implements CostModel.
func (FusedGeometryAppearance) Name() string { return "iou+reid" }

// Cost implements CostModel.
func (f FusedGeometryAppearance) Cost(tracks, dets []Candidate) [][]float64 {
	raw := IoUDistance(tracks, dets)
	geo := IoUDistance(tracks, dets)
	if f.FuseScore {
		FuseScore(geo, dets)
	}
	app := EmbeddingDistance(tracks, dets)

	out := newMatrix(len(tracks), len(dets), 0)
	for i := range tracks {
		for j := range dets {
			if len(tracks[i].Embedding) == 0 || len(dets[j].Embedding) == 0 {
				out[i][j] = geo[i][j]
				continue
			}
			if raw[i][j] > f.ProximityThresh {
				out[i][j] = 1
				continue
			}
			a := app[i][j]
			if a > f.AppearanceThresh {
				a = 1
			}
			blend := f.AppearanceWeight*a + (1-f.AppearanceWeight)*geo[i][j]
			out[i][j] = min(geo[i][j], blend)
		}
	}
	return out
}
