package tasks

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/voltasks/volume"
)

var (
	defaultMip        = volume.Point3d{8, 8, 40}
	defaultResolution = volume.Point3d{4, 4, 40}
)

func orDefault(p, def volume.Point3d) volume.Point3d {
	if p == (volume.Point3d{}) {
		return def
	}
	return p
}

func orOne(n int) int {
	if n == 0 {
		return 1
	}
	return n
}

func requireRef(stage Stage, param string, ref volume.StorageRef) error {
	if ref == "" {
		return configErr(stage, param, "missing storage reference")
	}
	return nil
}

type namedRef struct {
	param string
	ref   volume.StorageRef
}

// requireRefs reports the first missing reference in the order given.
func requireRefs(stage Stage, refs []namedRef) error {
	for _, r := range refs {
		if err := requireRef(stage, r.param, r.ref); err != nil {
			return err
		}
	}
	return nil
}

func requirePositive(stage Stage, param string, n int) error {
	if n < 1 {
		return configErr(stage, param, "must be at least 1, got %d", n)
	}
	return nil
}

// InitDB returns the single task that prepares the metadata store.
func (p Planner) InitDB(storage volume.StorageRef) (BucketIterator, error) {
	if err := requireRef(StageInitDB, "storagestr", storage); err != nil {
		return BucketIterator{}, err
	}
	return single(StageInitDB, fmt.Sprintf("init_db %s", storage)), nil
}

// ChunkCCsParams configures connected-component labeling of each chunk.
type ChunkCCsParams struct {
	DescPath   volume.StorageRef `toml:"descpath" json:"descpath"`
	SegPath    volume.StorageRef `toml:"segpath" json:"segpath"`
	Storage    volume.StorageRef `toml:"storagestr" json:"storagestr"`
	StorageDir string            `toml:"storagedir" json:"storagedir"`
	CCThresh   float64           `toml:"cc_thresh" json:"cc_thresh"`
	SizeThresh int               `toml:"sz_thresh" json:"sz_thresh"`
	Bounds     volume.Box3d      `toml:"bounds" json:"bounds"`
	Shape      volume.Point3d    `toml:"shape" json:"shape"`

	// Mip is the voxel resolution of the scale read; defaults to (8,8,40).
	Mip      volume.Point3d `toml:"mip" json:"mip"`
	Parallel int            `toml:"parallel" json:"parallel"`
	HashMax  int            `toml:"hashmax" json:"hashmax"`
}

// ChunkCCs returns one task per chunk of the segmentation bounds clamped to
// the segmentation volume at the requested mip.
func (p Planner) ChunkCCs(ctx context.Context, params ChunkCCsParams) (GridIterator, error) {
	const stage = StageChunkCCs
	if err := requireRefs(stage, []namedRef{
		{"descpath", params.DescPath},
		{"segpath", params.SegPath},
		{"storagestr", params.Storage},
	}); err != nil {
		return GridIterator{}, err
	}
	mip := orDefault(params.Mip, defaultMip)
	parallel := orOne(params.Parallel)
	hashmax := orOne(params.HashMax)
	if err := requirePositive(stage, "parallel", parallel); err != nil {
		return GridIterator{}, err
	}
	if err := requirePositive(stage, "hashmax", hashmax); err != nil {
		return GridIterator{}, err
	}
	prefix := fmt.Sprintf("chunk_ccs %s %s %s %s %d", params.DescPath, params.SegPath, params.Storage,
		volume.FormatFloat(params.CCThresh), params.SizeThresh)
	suffix := fmt.Sprintf("--hashmax %d --parallel %d --mip %s --storagedir %s",
		hashmax, parallel, mip.Tuple(), params.StorageDir)
	format := func(chunk volume.Box3d) string {
		return fmt.Sprintf("%s --chunk_begin %s --chunk_end %s %s", prefix, chunk.Min.Tuple(), chunk.Max.Tuple(), suffix)
	}
	return p.gridIterator(ctx, stage, params.SegPath, mip, params.Bounds, params.Shape, format)
}

// MergeCCs returns the single task that merges chunk components across faces.
func (p Planner) MergeCCs(storage volume.StorageRef, sizeThresh int, maxFaceShape volume.Point2d) (BucketIterator, error) {
	const stage = StageMergeCCs
	if err := requireRef(stage, "storagestr", storage); err != nil {
		return BucketIterator{}, err
	}
	if maxFaceShape[0] < 1 || maxFaceShape[1] < 1 {
		return BucketIterator{}, configErr(stage, "max_face_shape", "must be positive, got %s", maxFaceShape)
	}
	cmd := fmt.Sprintf("merge_ccs %s %d --max_face_shape %d %d", storage, sizeThresh, maxFaceShape[0], maxFaceShape[1])
	return single(stage, cmd), nil
}

// MatchContins returns one continuation-matching task per hash bucket.
func (p Planner) MatchContins(storage volume.StorageRef, hashmax int, maxFaceShape volume.Point2d) (BucketIterator, error) {
	const stage = StageMatchContins
	if err := requireRef(stage, "storagestr", storage); err != nil {
		return BucketIterator{}, err
	}
	if err := requirePositive(stage, "hashmax", hashmax); err != nil {
		return BucketIterator{}, err
	}
	if maxFaceShape[0] < 1 || maxFaceShape[1] < 1 {
		return BucketIterator{}, configErr(stage, "max_face_shape", "must be positive, got %s", maxFaceShape)
	}
	faceShape := maxFaceShape.Tuple()
	return NewBucketIterator(stage, hashmax, func(bucket int) string {
		return fmt.Sprintf("match_contins %s %d  --max_face_shape %s", storage, bucket, faceShape)
	}), nil
}

// SegGraphCCs returns the single task that finds components of the segment graph.
func (p Planner) SegGraphCCs(storage volume.StorageRef, hashmax int) (BucketIterator, error) {
	const stage = StageSegGraphCCs
	if err := requireRef(stage, "storagestr", storage); err != nil {
		return BucketIterator{}, err
	}
	if err := requirePositive(stage, "hashmax", hashmax); err != nil {
		return BucketIterator{}, err
	}
	return single(stage, fmt.Sprintf("seg_graph_ccs %s %d", storage, hashmax)), nil
}

// ChunkSegMap returns the single task that builds the chunk to segment map.
func (p Planner) ChunkSegMap(storage volume.StorageRef) (BucketIterator, error) {
	if err := requireRef(StageChunkSegMap, "storagestr", storage); err != nil {
		return BucketIterator{}, err
	}
	return single(StageChunkSegMap, fmt.Sprintf("chunk_seg_map %s", storage)), nil
}

// MergeSegInfoParams configures per-bucket segment info merging.  AuxStorage
// and SizeThresh are optional.
type MergeSegInfoParams struct {
	Storage    volume.StorageRef `toml:"storagestr" json:"storagestr"`
	HashMax    int               `toml:"hashmax" json:"hashmax"`
	AuxStorage volume.StorageRef `toml:"aux_storagestr" json:"aux_storagestr"`
	SizeThresh *int              `toml:"szthresh" json:"szthresh"`
}

// MergeSegInfo returns one segment info merge task per hash bucket.
func (p Planner) MergeSegInfo(params MergeSegInfoParams) (BucketIterator, error) {
	const stage = StageMergeSegInfo
	if err := requireRef(stage, "storagestr", params.Storage); err != nil {
		return BucketIterator{}, err
	}
	if err := requirePositive(stage, "hashmax", params.HashMax); err != nil {
		return BucketIterator{}, err
	}
	var aux string
	if params.AuxStorage != "" {
		aux = fmt.Sprintf("--aux_storagestr %s", params.AuxStorage)
	}
	if params.SizeThresh != nil {
		aux += fmt.Sprintf(" --szthresh %d", *params.SizeThresh)
	}
	storage := params.Storage
	return NewBucketIterator(stage, params.HashMax, func(bucket int) string {
		return fmt.Sprintf("merge_seginfo %s %d %s", storage, bucket, aux)
	}), nil
}

// ChunkEdgesParams configures edge extraction between clefts and segments.
type ChunkEdgesParams struct {
	ImgPath    volume.StorageRef `toml:"imgpath" json:"imgpath"`
	CleftPath  volume.StorageRef `toml:"cleftpath" json:"cleftpath"`
	SegPath    volume.StorageRef `toml:"segpath" json:"segpath"`
	Storage    volume.StorageRef `toml:"storagestr" json:"storagestr"`
	HashMax    int               `toml:"hashmax" json:"hashmax"`
	StorageDir string            `toml:"storagedir" json:"storagedir"`
	Bounds     volume.Box3d      `toml:"bounds" json:"bounds"`
	Shape      volume.Point3d    `toml:"shape" json:"shape"`
	PatchSize  volume.Point3d    `toml:"patchsz" json:"patchsz"`

	// Resolution defaults to (4,4,40).
	Resolution volume.Point3d `toml:"resolution" json:"resolution"`
}

// ChunkEdges returns one edge extraction task per chunk, clamped to the
// segmentation volume at the given resolution.
func (p Planner) ChunkEdges(ctx context.Context, params ChunkEdgesParams) (GridIterator, error) {
	const stage = StageChunkEdges
	if err := requireRefs(stage, []namedRef{
		{"imgpath", params.ImgPath},
		{"cleftpath", params.CleftPath},
		{"segpath", params.SegPath},
		{"storagestr", params.Storage},
	}); err != nil {
		return GridIterator{}, err
	}
	if err := requirePositive(stage, "hashmax", params.HashMax); err != nil {
		return GridIterator{}, err
	}
	if !params.PatchSize.Positive() {
		return GridIterator{}, configErr(stage, "patchsz", "must be positive, got %s", params.PatchSize)
	}
	res := orDefault(params.Resolution, defaultResolution)
	prefix := fmt.Sprintf("chunk_edges %s %s %s %s %d --storagedir %s",
		params.ImgPath, params.CleftPath, params.SegPath, params.Storage, params.HashMax, params.StorageDir)
	suffix := fmt.Sprintf("--patchsz %s --resolution %s", params.PatchSize.Tuple(), res.Tuple())
	format := func(chunk volume.Box3d) string {
		return fmt.Sprintf("%s --chunk_begin %s --chunk_end %s %s", prefix, chunk.Min.Tuple(), chunk.Max.Tuple(), suffix)
	}
	return p.gridIterator(ctx, stage, params.SegPath, res, params.Bounds, params.Shape, format)
}

// PickEdge returns one best-edge selection task per hash bucket.
func (p Planner) PickEdge(storage volume.StorageRef, hashmax int) (BucketIterator, error) {
	const stage = StagePickEdge
	if err := requireRef(stage, "storagestr", storage); err != nil {
		return BucketIterator{}, err
	}
	if err := requirePositive(stage, "hashmax", hashmax); err != nil {
		return BucketIterator{}, err
	}
	return NewBucketIterator(stage, hashmax, func(bucket int) string {
		return fmt.Sprintf("pick_edge %s %d", storage, bucket)
	}), nil
}

// MergeDupsParams configures duplicate merging.  Output defaults to Storage.
type MergeDupsParams struct {
	Storage    volume.StorageRef `toml:"storagestr" json:"storagestr"`
	HashMax    int               `toml:"hashmax" json:"hashmax"`
	DistThresh int               `toml:"dist_thresh" json:"dist_thresh"`
	SizeThresh int               `toml:"size_thresh" json:"size_thresh"`
	Resolution volume.Point3d    `toml:"resolution" json:"resolution"`
	Output     volume.StorageRef `toml:"output_storagestr" json:"output_storagestr"`
}

// MergeDups returns one duplicate merging task per hash bucket.
func (p Planner) MergeDups(params MergeDupsParams) (BucketIterator, error) {
	const stage = StageMergeDups
	if err := requireRef(stage, "storagestr", params.Storage); err != nil {
		return BucketIterator{}, err
	}
	if err := requirePositive(stage, "hashmax", params.HashMax); err != nil {
		return BucketIterator{}, err
	}
	output := params.Output
	if output == "" {
		output = params.Storage
	}
	res := orDefault(params.Resolution, defaultResolution)
	suffix := fmt.Sprintf("--voxel_res %s --fulldf_storagestr %s", res.Tuple(), output)
	return NewBucketIterator(stage, params.HashMax, func(bucket int) string {
		return fmt.Sprintf("merge_dups %s %d %d %d %s",
			params.Storage, bucket, params.DistThresh, params.SizeThresh, suffix)
	}), nil
}

// RemapIDsParams configures cleft id remapping.  DupStorage defaults to Storage
// and Mip to (8,8,40).
type RemapIDsParams struct {
	CleftPath    volume.StorageRef `toml:"cleftpath" json:"cleftpath"`
	CleftOutPath volume.StorageRef `toml:"cleftoutpath" json:"cleftoutpath"`
	Storage      volume.StorageRef `toml:"storagestr" json:"storagestr"`
	Bounds       volume.Box3d      `toml:"bounds" json:"bounds"`
	Shape        volume.Point3d    `toml:"shape" json:"shape"`
	DupStorage   volume.StorageRef `toml:"dup_map_storagestr" json:"dup_map_storagestr"`
	Mip          volume.Point3d    `toml:"mip" json:"mip"`
}

// RemapIDs returns one remapping task per chunk, clamped to the cleft volume.
func (p Planner) RemapIDs(ctx context.Context, params RemapIDsParams) (GridIterator, error) {
	const stage = StageRemapIDs
	if err := requireRefs(stage, []namedRef{
		{"cleftpath", params.CleftPath},
		{"cleftoutpath", params.CleftOutPath},
		{"storagestr", params.Storage},
	}); err != nil {
		return GridIterator{}, err
	}
	dup := params.DupStorage
	if dup == "" {
		dup = params.Storage
	}
	mip := orDefault(params.Mip, defaultMip)
	prefix := fmt.Sprintf("remap_ids %s %s %s", params.CleftPath, params.CleftOutPath, params.Storage)
	suffix := fmt.Sprintf("--dup_map_storagestr %s --mip %s", dup, mip.Tuple())
	format := func(chunk volume.Box3d) string {
		return fmt.Sprintf("%s --chunk_begin %s --chunk_end %s %s", prefix, chunk.Min.Tuple(), chunk.Max.Tuple(), suffix)
	}
	return p.gridIterator(ctx, stage, params.CleftPath, mip, params.Bounds, params.Shape, format)
}

// ChunkOverlapsParams configures overlap counting against a base segmentation.
type ChunkOverlapsParams struct {
	SegPath     volume.StorageRef `toml:"segpath" json:"segpath"`
	BaseSegPath volume.StorageRef `toml:"base_segpath" json:"base_segpath"`
	Storage     volume.StorageRef `toml:"storagestr" json:"storagestr"`
	Bounds      volume.Box3d      `toml:"bounds" json:"bounds"`
	Shape       volume.Point3d    `toml:"shape" json:"shape"`
	Mip         volume.Point3d    `toml:"mip" json:"mip"`
	Parallel    int               `toml:"parallel" json:"parallel"`
}

// ChunkOverlaps returns one overlap task per chunk, clamped to the
// segmentation volume at the requested mip.
func (p Planner) ChunkOverlaps(ctx context.Context, params ChunkOverlapsParams) (GridIterator, error) {
	const stage = StageChunkOverlaps
	if err := requireRefs(stage, []namedRef{
		{"segpath", params.SegPath},
		{"base_segpath", params.BaseSegPath},
		{"storagestr", params.Storage},
	}); err != nil {
		return GridIterator{}, err
	}
	mip := orDefault(params.Mip, defaultMip)
	parallel := orOne(params.Parallel)
	if err := requirePositive(stage, "parallel", parallel); err != nil {
		return GridIterator{}, err
	}
	prefix := fmt.Sprintf("chunk_overlaps %s %s %s", params.SegPath, params.BaseSegPath, params.Storage)
	suffix := fmt.Sprintf("--parallel %d --mip %s", parallel, mip.Tuple())
	format := func(chunk volume.Box3d) string {
		return fmt.Sprintf("%s --chunk_begin %s --chunk_end %s %s", prefix, chunk.Min.Tuple(), chunk.Max.Tuple(), suffix)
	}
	return p.gridIterator(ctx, stage, params.SegPath, mip, params.Bounds, params.Shape, format)
}

// MergeOverlaps returns the single task that merges chunk overlap counts.
func (p Planner) MergeOverlaps(storage volume.StorageRef) (BucketIterator, error) {
	if err := requireRef(StageMergeOverlaps, "storagestr", storage); err != nil {
		return BucketIterator{}, err
	}
	return single(StageMergeOverlaps, fmt.Sprintf("merge_overlaps %s", storage)), nil
}
