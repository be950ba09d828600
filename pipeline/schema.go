package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/janelia-flyem/voltasks/queue"
	"github.com/janelia-flyem/voltasks/tasks"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const jobSchemaTemplate = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "voltasks job",
	"type": "object",
	"required": ["stage", "params"],
	"additionalProperties": false,
	"definitions": {
		"point3d": {
			"type": "array",
			"items": {"type": "integer"},
			"minItems": 3,
			"maxItems": 3
		},
		"box3d": {
			"type": "object",
			"required": ["min", "max"],
			"properties": {
				"min": {"$ref": "#/definitions/point3d"},
				"max": {"$ref": "#/definitions/point3d"}
			}
		}
	},
	"properties": {
		"stage": {"enum": [%s]},
		"params": {
			"type": "object",
			"properties": {
				"storagestr": {"type": "string", "minLength": 1},
				"hashmax": {"type": "integer", "minimum": 1},
				"parallel": {"type": "integer", "minimum": 1},
				"bounds": {"$ref": "#/definitions/box3d"},
				"shape": {"$ref": "#/definitions/point3d"},
				"mip": {"$ref": "#/definitions/point3d"},
				"resolution": {"$ref": "#/definitions/point3d"},
				"patchsz": {"$ref": "#/definitions/point3d"},
				"max_face_shape": {
					"type": "array",
					"items": {"type": "integer", "minimum": 1},
					"minItems": 2,
					"maxItems": 2
				}
			}
		},
		"populate": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"workers": {"type": "integer", "minimum": 0},
				"slices": {"type": "integer", "minimum": 0},
				"batch_size": {"type": "integer", "minimum": 0},
				"run_id": {"type": "string"}
			}
		}
	}
}`

var jobSchema *jsonschema.Schema

func init() {
	names := append(StageNames(), string(StageInitVolumes))
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	jobSchema = jsonschema.MustCompileString("job.json", fmt.Sprintf(jobSchemaTemplate, strings.Join(quoted, ", ")))
}

// JobRequest is a job submitted as JSON, e.g.,
//
//	{"stage": "pick_edge", "params": {"storagestr": "gs://bucket/proc", "hashmax": 64}}
type JobRequest struct {
	Stage    tasks.Stage     `json:"stage"`
	Params   json.RawMessage `json:"params"`
	Populate queue.Options   `json:"populate"`
}

// ParseJobJSON validates a JSON job against the job schema and decodes it.
func ParseJobJSON(data []byte) (*JobRequest, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("job is not valid JSON: %v", err)
	}
	if err := jobSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("job does not match schema: %v", err)
	}
	var job JobRequest
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// DecodeParams decodes the job's params into v, rejecting unknown keys.
func (job *JobRequest) DecodeParams(v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(job.Params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bad params for stage %s: %w", job.Stage, err)
	}
	return nil
}
