package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/janelia-flyem/voltasks/tasks"
)

var stageJobs = map[tasks.Stage]string{
	tasks.StageInitDB:        `{"storagestr": "gs://b/proc"}`,
	tasks.StageChunkCCs:      `{"descpath": "gs://b/d", "segpath": "gs://b/s", "storagestr": "gs://b/proc", "storagedir": "/tmp", "cc_thresh": 0.5, "sz_thresh": 10, "bounds": {"min": [0,0,0], "max": [64,64,64]}, "shape": [32,32,32]}`,
	tasks.StageMergeCCs:      `{"storagestr": "gs://b/proc", "size_thresh": 100, "max_face_shape": [1024, 1024]}`,
	tasks.StageMatchContins:  `{"storagestr": "gs://b/proc", "hashmax": 4, "max_face_shape": [512, 512]}`,
	tasks.StageSegGraphCCs:   `{"storagestr": "gs://b/proc", "hashmax": 4}`,
	tasks.StageChunkSegMap:   `{"storagestr": "gs://b/proc"}`,
	tasks.StageMergeSegInfo:  `{"storagestr": "gs://b/proc", "hashmax": 4, "szthresh": 20}`,
	tasks.StageChunkEdges:    `{"imgpath": "gs://b/img", "cleftpath": "gs://b/c", "segpath": "gs://b/s", "storagestr": "gs://b/proc", "hashmax": 4, "storagedir": "/tmp", "bounds": {"min": [0,0,0], "max": [64,64,64]}, "shape": [64,64,32], "patchsz": [80,80,18]}`,
	tasks.StagePickEdge:      `{"storagestr": "gs://b/proc", "hashmax": 4}`,
	tasks.StageMergeDups:     `{"storagestr": "gs://b/proc", "hashmax": 4, "dist_thresh": 700, "size_thresh": 10}`,
	tasks.StageRemapIDs:      `{"cleftpath": "gs://b/c", "cleftoutpath": "gs://b/co", "storagestr": "gs://b/proc", "bounds": {"min": [0,0,0], "max": [64,64,64]}, "shape": [64,64,64]}`,
	tasks.StageChunkOverlaps: `{"segpath": "gs://b/s", "base_segpath": "gs://b/base", "storagestr": "gs://b/proc", "bounds": {"min": [0,0,0], "max": [64,64,64]}, "shape": [64,64,64]}`,
	tasks.StageMergeOverlaps: `{"storagestr": "gs://b/proc"}`,
}

func TestEveryStageFromJSON(t *testing.T) {
	if len(stageJobs) != len(tasks.Stages) || len(StageNames()) != len(tasks.Stages) {
		t.Fatalf("expected %d stages registered\n", len(tasks.Stages))
	}
	ctx := context.Background()
	for _, stage := range tasks.Stages {
		data := `{"stage": "` + string(stage) + `", "params": ` + stageJobs[stage] + `}`
		job, err := ParseJobJSON([]byte(data))
		if err != nil {
			t.Fatalf("stage %s: %v\n", stage, err)
		}
		it, err := BuildIterator(ctx, tasks.Planner{}, job.Stage, job.DecodeParams)
		if err != nil {
			t.Fatalf("stage %s: %v\n", stage, err)
		}
		descs := tasks.Collect(it)
		if len(descs) == 0 {
			t.Fatalf("stage %s: no descriptors\n", stage)
		}
		for _, d := range descs {
			if d.Stage != stage || d.Args()[0] != string(stage) {
				t.Errorf("stage %s: bad descriptor %q\n", stage, d)
			}
		}
	}
}

func TestParseJobJSON(t *testing.T) {
	job, err := ParseJobJSON([]byte(`{"stage": "pick_edge", "params": {"storagestr": "s", "hashmax": 8}, "populate": {"workers": 4, "batch_size": 16}}`))
	if err != nil {
		t.Fatalf("unable to parse job: %v\n", err)
	}
	if job.Populate.Workers != 4 || job.Populate.BatchSize != 16 {
		t.Errorf("bad populate options %+v\n", job.Populate)
	}

	bad := []string{
		`{"stage": "pick_edge"`,
		`{"stage": "pick_edge"}`,
		`{"stage": "paint_it_black", "params": {}}`,
		`{"stage": "pick_edge", "params": {"hashmax": 0}}`,
		`{"stage": "pick_edge", "params": {"hashmax": 2.5}}`,
		`{"stage": "chunk_ccs", "params": {"shape": [1, 2]}}`,
		`{"stage": "pick_edge", "params": {}, "extra": true}`,
		`{"stage": "pick_edge", "params": {}, "populate": {"workers": -1}}`,
	}
	for _, data := range bad {
		if _, err := ParseJobJSON([]byte(data)); err == nil {
			t.Errorf("expected schema error for %s\n", data)
		}
	}

	job, err = ParseJobJSON([]byte(`{"stage": "pick_edge", "params": {"storagestr": "s", "hashmax": 2, "typo": 1}}`))
	if err != nil {
		t.Fatalf("schema should allow unknown params: %v\n", err)
	}
	if _, err := BuildIterator(context.Background(), tasks.Planner{}, job.Stage, job.DecodeParams); err == nil ||
		!strings.Contains(err.Error(), "typo") {
		t.Errorf("expected unknown param error, got %v\n", err)
	}
}

func TestInitVolumesStage(t *testing.T) {
	job, err := ParseJobJSON([]byte(`{"stage": "init_volumes", "params": {"output": "gs://b/out", "resolution": [4,4,40], "size": [100,100,10], "chunk_size": [0,64,8]}}`))
	if err != nil {
		t.Fatalf("unable to parse job: %v\n", err)
	}
	err = InitVolumes(context.Background(), tasks.Planner{}, job.DecodeParams)
	if err == nil {
		t.Errorf("expected error without initializer\n")
	}
}
