package tasks

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Stage names a pipeline step.  The name is also the first word of every
// command generated for the stage.
type Stage string

const (
	StageInitDB        Stage = "init_db"
	StageChunkCCs      Stage = "chunk_ccs"
	StageMergeCCs      Stage = "merge_ccs"
	StageMatchContins  Stage = "match_contins"
	StageSegGraphCCs   Stage = "seg_graph_ccs"
	StageChunkSegMap   Stage = "chunk_seg_map"
	StageMergeSegInfo  Stage = "merge_seginfo"
	StageChunkEdges    Stage = "chunk_edges"
	StagePickEdge      Stage = "pick_edge"
	StageMergeDups     Stage = "merge_dups"
	StageRemapIDs      Stage = "remap_ids"
	StageChunkOverlaps Stage = "chunk_overlaps"
	StageMergeOverlaps Stage = "merge_overlaps"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageInitDB,
	StageChunkCCs,
	StageMergeCCs,
	StageMatchContins,
	StageSegGraphCCs,
	StageChunkSegMap,
	StageMergeSegInfo,
	StageChunkEdges,
	StagePickEdge,
	StageMergeDups,
	StageRemapIDs,
	StageChunkOverlaps,
	StageMergeOverlaps,
}

// Descriptor is a self-contained unit of work: the stage it belongs to and the
// complete command line a worker runs.  Descriptors hold no reference to the
// iterator that produced them.
type Descriptor struct {
	Stage   Stage  `json:"stage"`
	Command string `json:"command"`
}

func (d Descriptor) String() string {
	return d.Command
}

// Args returns the whitespace-separated words of the command, starting with
// the stage name.
func (d Descriptor) Args() []string {
	return strings.Fields(d.Command)
}

// Key returns a stable identifier derived from the command so that a queue
// can recognize resubmitted work.
func (d Descriptor) Key() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(d.Command))
}
