package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/janelia-flyem/voltasks/tasks"
	"github.com/janelia-flyem/voltasks/volume"
)

// StageInitVolumes creates output volumes instead of generating tasks.
const StageInitVolumes = tasks.Stage("init_volumes")

// Decoder fills a stage parameter struct from a job's parameter section.
type Decoder func(v interface{}) error

// StorageParams holds the parameters of stages that take only the
// metadata store.
type StorageParams struct {
	Storage volume.StorageRef `toml:"storagestr" json:"storagestr"`
}

// HashParams holds the parameters of stages that take the metadata store and
// the number of hash buckets.
type HashParams struct {
	Storage volume.StorageRef `toml:"storagestr" json:"storagestr"`
	HashMax int               `toml:"hashmax" json:"hashmax"`
}

type MergeCCsParams struct {
	Storage      volume.StorageRef `toml:"storagestr" json:"storagestr"`
	SizeThresh   int               `toml:"size_thresh" json:"size_thresh"`
	MaxFaceShape volume.Point2d    `toml:"max_face_shape" json:"max_face_shape"`
}

type MatchContinsParams struct {
	Storage      volume.StorageRef `toml:"storagestr" json:"storagestr"`
	HashMax      int               `toml:"hashmax" json:"hashmax"`
	MaxFaceShape volume.Point2d    `toml:"max_face_shape" json:"max_face_shape"`
}

type builder func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error)

var builders = map[tasks.Stage]builder{
	tasks.StageInitDB: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params StorageParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.InitDB(params.Storage)
	},
	tasks.StageChunkCCs: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params tasks.ChunkCCsParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.ChunkCCs(ctx, params)
	},
	tasks.StageMergeCCs: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params MergeCCsParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.MergeCCs(params.Storage, params.SizeThresh, params.MaxFaceShape)
	},
	tasks.StageMatchContins: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params MatchContinsParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.MatchContins(params.Storage, params.HashMax, params.MaxFaceShape)
	},
	tasks.StageSegGraphCCs: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params HashParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.SegGraphCCs(params.Storage, params.HashMax)
	},
	tasks.StageChunkSegMap: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params StorageParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.ChunkSegMap(params.Storage)
	},
	tasks.StageMergeSegInfo: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params tasks.MergeSegInfoParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.MergeSegInfo(params)
	},
	tasks.StageChunkEdges: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params tasks.ChunkEdgesParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.ChunkEdges(ctx, params)
	},
	tasks.StagePickEdge: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params HashParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.PickEdge(params.Storage, params.HashMax)
	},
	tasks.StageMergeDups: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params tasks.MergeDupsParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.MergeDups(params)
	},
	tasks.StageRemapIDs: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params tasks.RemapIDsParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.RemapIDs(ctx, params)
	},
	tasks.StageChunkOverlaps: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params tasks.ChunkOverlapsParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.ChunkOverlaps(ctx, params)
	},
	tasks.StageMergeOverlaps: func(ctx context.Context, p tasks.Planner, decode Decoder) (tasks.Iterator, error) {
		var params StorageParams
		if err := decode(&params); err != nil {
			return nil, err
		}
		return p.MergeOverlaps(params.Storage)
	},
}

// StageNames returns the names of all stages that generate tasks, sorted.
func StageNames() []string {
	names := make([]string, 0, len(builders))
	for stage := range builders {
		names = append(names, string(stage))
	}
	sort.Strings(names)
	return names
}

// BuildIterator decodes the parameters for the named stage and returns its
// task iterator.
func BuildIterator(ctx context.Context, p tasks.Planner, stage tasks.Stage, decode Decoder) (tasks.Iterator, error) {
	build, found := builders[stage]
	if !found {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	it, err := build(ctx, p, decode)
	if err != nil {
		return nil, fmt.Errorf("unable to build %s tasks: %w", stage, err)
	}
	return it, nil
}

// SliceLevels restricts it to count levels starting at offset.  A negative
// count takes every level from offset on.
func SliceLevels(it tasks.Iterator, offset, count int) (tasks.Iterator, error) {
	if offset == 0 && count < 0 {
		return it, nil
	}
	if count < 0 {
		count = it.Len() - offset
	}
	return it.Slice(offset, count)
}

// InitVolumes decodes tasks.InitVolumesParams and creates the output volumes.
func InitVolumes(ctx context.Context, p tasks.Planner, decode Decoder) error {
	var params tasks.InitVolumesParams
	if err := decode(&params); err != nil {
		return err
	}
	return p.InitOutputVolumes(ctx, params)
}
