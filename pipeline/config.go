package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/janelia-flyem/voltasks/queue"
	"github.com/janelia-flyem/voltasks/storage"
	"github.com/janelia-flyem/voltasks/storage/ngprecomputed"
	"github.com/janelia-flyem/voltasks/tasks"
	"github.com/janelia-flyem/voltasks/volume"
)

// Config is a job described by a TOML file, e.g.,
//
//	[logging]
//	logfile = "voltasks.log"
//	max_log_size = 500  # MB
//	max_log_age = 30    # days
//
//	[job]
//	stage = "chunk_ccs"
//
//	[params]
//	descpath = "gs://bucket/clefts"
//	segpath = "gs://bucket/seg"
//	storagestr = "gs://bucket/proc"
//	storagedir = "/tmp/proc"
//	cc_thresh = 0.5
//	sz_thresh = 100
//	shape = [1024, 1024, 128]
//	bounds = { min = [0, 0, 0], max = [8192, 8192, 2048] }
//
//	[sink]
//	type = "kafka"       # "stdout", "kafka", or "blob"
//
//	[kafka]
//	servers = ["kafka1:9092"]
//	topic = "chunk-tasks"
//
//	[populate]
//	workers = 8
type Config struct {
	Logging  volume.LogConfig
	Job      JobConfig
	Params   toml.Primitive
	Volumes  VolumesConfig
	Sink     SinkConfig
	Kafka    queue.KafkaConfig
	Populate queue.Options

	md       toml.MetaData
	location string
}

type JobConfig struct {
	Stage tasks.Stage
}

// VolumesConfig controls how volume metadata is looked up for clamping.
type VolumesConfig struct {
	// NoClamp uses requested bounds as given without reading volume metadata.
	NoClamp     bool `toml:"no_clamp"`
	CacheBytes  int  `toml:"cache_bytes"`
	CacheExpire int  `toml:"cache_expire"` // seconds
}

// SinkConfig selects where descriptors go.
type SinkConfig struct {
	Type        string            // "stdout" (default), "kafka", or "blob"
	Ref         volume.StorageRef // bucket reference for blob sinks
	Prefix      string
	Compression string
}

// LoadConfig decodes a TOML job file.  Relative paths in the file are taken
// relative to the file's directory.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no job TOML configuration file provided")
	}
	var c Config
	md, err := toml.DecodeFile(filename, &c)
	if err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	c.md = md
	c.location = filename
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	if c.Job.Stage == "" {
		return nil, fmt.Errorf("no stage given in [job] section of %s", filename)
	}
	return &c, nil
}

// DecodeConfig decodes a TOML job from a reader.  Relative paths are left as is.
func DecodeConfig(r io.Reader) (*Config, error) {
	var c Config
	md, err := toml.NewDecoder(r).Decode(&c)
	if err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	c.md = md
	if c.Job.Stage == "" {
		return nil, fmt.Errorf("no stage given in [job] section")
	}
	return &c, nil
}

func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir := filepath.Dir(configPath)
	var err error
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = volume.ConvertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path: %v", err)
		}
	}
	return nil
}

// Location returns the file the config was loaded from, if any.
func (c *Config) Location() string {
	return c.location
}

// DecodeParams decodes the [params] section into v.  Keys that v does not use
// are logged.
func (c *Config) DecodeParams(v interface{}) error {
	if !c.md.IsDefined("params") {
		return fmt.Errorf("no [params] section for stage %s", c.Job.Stage)
	}
	if err := c.md.PrimitiveDecode(c.Params, v); err != nil {
		return fmt.Errorf("bad [params] for stage %s: %w", c.Job.Stage, err)
	}
	var unused []string
	for _, key := range c.md.Undecoded() {
		if len(key) > 1 && key[0] == "params" {
			unused = append(unused, key.String())
		}
	}
	if len(unused) != 0 {
		volume.Warningf("Ignoring unknown params for stage %s: %s\n", c.Job.Stage, strings.Join(unused, ", "))
	}
	return nil
}

// Planner returns a planner that reads volume metadata from precomputed info
// files unless clamping is disabled.
func (c *Config) Planner() tasks.Planner {
	provider := ngprecomputed.NewProvider(nil, c.Volumes.CacheBytes, c.Volumes.CacheExpire)
	p := tasks.Planner{Initializer: provider}
	if !c.Volumes.NoClamp {
		p.Volumes = provider
	}
	return p
}

// Iterator builds the task iterator for the configured stage.
func (c *Config) Iterator(ctx context.Context, p tasks.Planner) (tasks.Iterator, error) {
	return BuildIterator(ctx, p, c.Job.Stage, c.DecodeParams)
}

// OpenSink returns the configured sink.  Stdout sinks write to w.
func (c *Config) OpenSink(ctx context.Context, w io.Writer) (queue.Sink, error) {
	switch c.Sink.Type {
	case "", "stdout":
		return queue.NewWriterSink(w), nil
	case "kafka":
		return queue.NewKafkaSink(c.Kafka)
	case "blob":
		if c.Sink.Ref == "" {
			return nil, fmt.Errorf("blob sink requires a ref")
		}
		bucket, err := storage.OpenBucket(ctx, c.Sink.Ref)
		if err != nil {
			return nil, err
		}
		sink, err := queue.NewBlobSink(bucket, c.Sink.Prefix, c.Sink.Compression)
		if err != nil {
			bucket.Close()
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", c.Sink.Type)
	}
}
