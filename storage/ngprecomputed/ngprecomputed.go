// Package ngprecomputed reads and writes the metadata of Neuroglancer
// precomputed volumes stored in cloud buckets.
package ngprecomputed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/blang/semver"
	"github.com/coocood/freecache"
	"github.com/janelia-flyem/voltasks/storage"
	"github.com/janelia-flyem/voltasks/tasks"
	"github.com/janelia-flyem/voltasks/volume"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// InfoKey is the object holding a volume's metadata.
const InfoKey = "info"

// EngineVersionKey is the info object metadata key holding the version of the
// engine that wrote it.
const EngineVersionKey = "engine-version"

var (
	// ErrNoScale is returned when a volume has no scale at the requested resolution.
	ErrNoScale = errors.New("no scale at requested resolution")

	// ErrIncompatibleVersion is returned for info documents written by an
	// engine this one can't read.
	ErrIncompatibleVersion = errors.New("info written by incompatible engine version")
)

var engine Engine

func init() {
	ver, err := semver.Make("0.2.0")
	if err != nil {
		volume.Errorf("Unable to make semver in ngprecomputed: %v\n", err)
	}
	engine = Engine{"ngprecomputed", "Neuroglancer precomputed volume metadata", ver}
}

// Engine describes this metadata backend.
type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]: %s", e.name, e.semver, e.desc)
}

// checkVersion accepts info written by this engine's major version at the
// same or an older minor version.  Info without a version was written by
// other tools and is accepted.
func (e Engine) checkVersion(written string) error {
	if written == "" {
		return nil
	}
	ver, err := semver.Parse(written)
	if err != nil {
		return fmt.Errorf("bad engine version %q: %w", written, err)
	}
	if ver.Major != e.semver.Major || ver.Minor > e.semver.Minor {
		return fmt.Errorf("version %s, reader %s: %w", ver, e.semver, ErrIncompatibleVersion)
	}
	return nil
}

// GetEngine returns the engine description for this backend.
func GetEngine() Engine {
	return engine
}

// ---- NG Precomputed metadata --------

type Shard struct {
	FormatType    string `json:"@type"` // should be "neuroglancer_uint64_sharded_v1"
	Hash          string `json:"hash"`
	MinishardBits uint8  `json:"minishard_bits"`
	PreshiftBits  uint8  `json:"preshift_bits"`
	ShardBits     uint8  `json:"shard_bits"`
	IndexEncoding string `json:"minishard_index_encoding"` // "raw" or "gzip"
	DataEncoding  string `json:"data_encoding"`            // "raw" or "gzip"
}

type Scale struct {
	ChunkSizes  []volume.Point3d `json:"chunk_sizes"`
	Encoding    string           `json:"encoding"`
	Key         string           `json:"key"`
	Resolution  [3]float64       `json:"resolution"`
	Size        volume.Point3d   `json:"size"`
	VoxelOffset volume.Point3d   `json:"voxel_offset"`
	Sharding    *Shard           `json:"sharding,omitempty"`
}

// Bounds returns [voxel_offset, voxel_offset + size).
func (s Scale) Bounds() volume.Box3d {
	return volume.Box3d{Min: s.VoxelOffset, Max: s.VoxelOffset.Add(s.Size)}
}

// HasResolution returns true if the scale's voxel resolution equals res.
func (s Scale) HasResolution(res volume.Point3d) bool {
	for dim := 0; dim < 3; dim++ {
		if s.Resolution[dim] != float64(res[dim]) {
			return false
		}
	}
	return true
}

type Volume struct {
	StoreType     string  `json:"@type"`     // must be "neuroglancer_multiscale_volume"
	VolumeType    string  `json:"type"`      // "image" or "segmentation"
	DataType      string  `json:"data_type"` // "uint8", ... "float32"
	NumChannels   int     `json:"num_channels"`
	Scales        []Scale `json:"scales"`
	MeshDir       string  `json:"mesh,omitempty"`               // optional if VolumeType == segmentation
	SkelDir       string  `json:"skeletons,omitempty"`          // optional if VolumeType == segmentation
	LabelPropsDir string  `json:"segment_properties,omitempty"` // optional if VolumeType == segmentation
}

func (v *Volume) validate() error {
	if v.StoreType != "neuroglancer_multiscale_volume" {
		return fmt.Errorf("volume type %q != neuroglancer_multiscale_volume", v.StoreType)
	}
	if len(v.Scales) == 0 {
		return fmt.Errorf("volume has no scales")
	}
	for n, scale := range v.Scales {
		if len(scale.ChunkSizes) == 0 {
			return fmt.Errorf("scale %d (%s) has no chunk sizes", n, scale.Key)
		}
		if _, err := volume.BoxFromOffsetSize(scale.VoxelOffset, scale.Size); err != nil {
			return fmt.Errorf("scale %d (%s): %w", n, scale.Key, err)
		}
	}
	return nil
}

// Scale returns the scale whose resolution equals mip, or the base scale if mip
// is the zero point.
func (v *Volume) Scale(mip volume.Point3d) (*Scale, error) {
	if mip == (volume.Point3d{}) {
		return &v.Scales[0], nil
	}
	for n := range v.Scales {
		if v.Scales[n].HasResolution(mip) {
			return &v.Scales[n], nil
		}
	}
	return nil, fmt.Errorf("resolution %s: %w", mip, ErrNoScale)
}

// NewSegVolume returns the metadata for an empty single-scale segmentation.
func NewSegVolume(spec tasks.VolumeSpec) Volume {
	res := spec.Resolution
	return Volume{
		StoreType:   "neuroglancer_multiscale_volume",
		VolumeType:  "segmentation",
		DataType:    "uint32",
		NumChannels: 1,
		Scales: []Scale{
			{
				ChunkSizes:  []volume.Point3d{spec.ChunkSize},
				Encoding:    "raw",
				Key:         fmt.Sprintf("%d_%d_%d", res[0], res[1], res[2]),
				Resolution:  [3]float64{float64(res[0]), float64(res[1]), float64(res[2])},
				Size:        spec.Size,
				VoxelOffset: spec.Offset,
			},
		},
	}
}

// ---- Provider --------

// BucketOpener returns a bucket rooted at a volume's storage reference.
type BucketOpener func(ctx context.Context, ref volume.StorageRef) (*blob.Bucket, error)

// Provider answers bounds and chunk layout queries from precomputed info
// documents and creates new segmentation volumes.  Info documents are cached.
type Provider struct {
	open   BucketOpener
	cache  *freecache.Cache
	expire int // seconds
}

// DefaultCacheBytes is the info cache size used when none is given.
const DefaultCacheBytes = 32 * 1024 * 1024

// NewProvider returns a provider that opens buckets with the given function,
// defaulting to storage.OpenBucket, and caches up to cacheBytes of info
// documents for expireSecs seconds (0 means no expiration).
func NewProvider(open BucketOpener, cacheBytes, expireSecs int) *Provider {
	if open == nil {
		open = storage.OpenBucket
	}
	if cacheBytes <= 0 {
		cacheBytes = DefaultCacheBytes
	}
	return &Provider{
		open:   open,
		cache:  freecache.NewCache(cacheBytes),
		expire: expireSecs,
	}
}

// Info returns the parsed info document of the volume at ref.
func (p *Provider) Info(ctx context.Context, ref volume.StorageRef) (*Volume, error) {
	key := []byte(ref)
	data, err := p.cache.Get(key)
	if err != nil && err != freecache.ErrNotFound {
		return nil, err
	}
	if err == freecache.ErrNotFound {
		data, err = p.readInfo(ctx, ref)
		if err != nil {
			return nil, err
		}
		if err := p.cache.Set(key, data, p.expire); err != nil {
			volume.Warningf("Unable to cache info for %s (%d bytes): %v\n", ref, len(data), err)
		}
	}
	var vol Volume
	if err := json.Unmarshal(data, &vol); err != nil {
		return nil, fmt.Errorf("bad info document for %s: %w", ref, err)
	}
	if err := vol.validate(); err != nil {
		return nil, fmt.Errorf("bad info document for %s: %w", ref, err)
	}
	return &vol, nil
}

func (p *Provider) readInfo(ctx context.Context, ref volume.StorageRef) ([]byte, error) {
	timedLog := volume.NewTimeLog()
	bucket, err := p.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := bucket.Close(); err != nil {
			volume.Errorf("Error on trying to close bucket for %s: %v\n", ref, err)
		}
	}()
	data, err := bucket.ReadAll(ctx, InfoKey)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("no precomputed volume at %s: %w", ref, storage.ErrNotFound)
		}
		return nil, err
	}
	attrs, err := bucket.Attributes(ctx, InfoKey)
	if err != nil {
		return nil, err
	}
	if err := engine.checkVersion(attrs.Metadata[EngineVersionKey]); err != nil {
		return nil, fmt.Errorf("info for %s: %w", ref, err)
	}
	timedLog.Debugf("Read info for %s", ref)
	return data, nil
}

// Bounds returns the voxel bounds of the scale at mip.
func (p *Provider) Bounds(ctx context.Context, ref volume.StorageRef, mip volume.Point3d) (volume.Box3d, error) {
	vol, err := p.Info(ctx, ref)
	if err != nil {
		return volume.Box3d{}, err
	}
	scale, err := vol.Scale(mip)
	if err != nil {
		return volume.Box3d{}, fmt.Errorf("volume %s: %w", ref, err)
	}
	return scale.Bounds(), nil
}

// ChunkLayout returns the first chunk size of the scale at mip.
func (p *Provider) ChunkLayout(ctx context.Context, ref volume.StorageRef, mip volume.Point3d) (volume.Point3d, error) {
	vol, err := p.Info(ctx, ref)
	if err != nil {
		return volume.Point3d{}, err
	}
	scale, err := vol.Scale(mip)
	if err != nil {
		return volume.Point3d{}, fmt.Errorf("volume %s: %w", ref, err)
	}
	return scale.ChunkSizes[0], nil
}

// InitSegVolume writes the info document for an empty segmentation volume,
// replacing any existing one.
func (p *Provider) InitSegVolume(ctx context.Context, ref volume.StorageRef, spec tasks.VolumeSpec) error {
	vol := NewSegVolume(spec)
	data, err := json.Marshal(vol)
	if err != nil {
		return err
	}
	bucket, err := p.open(ctx, ref)
	if err != nil {
		return err
	}
	defer bucket.Close()
	opts := &blob.WriterOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{EngineVersionKey: engine.semver.String()},
	}
	if err := bucket.WriteAll(ctx, InfoKey, data, opts); err != nil {
		return fmt.Errorf("unable to write info for %s: %w", ref, err)
	}
	p.cache.Del([]byte(ref))
	volume.Infof("Initialized %s segmentation volume %s: size %s, offset %s, chunks %s\n",
		engine.name, ref, spec.Size, spec.Offset, spec.ChunkSize)
	return nil
}

var (
	_ tasks.VolumeMetadata    = (*Provider)(nil)
	_ tasks.VolumeInitializer = (*Provider)(nil)
)
