package tasks

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/voltasks/volume"
)

// VolumeMetadata answers questions about stored volumes.  The planner treats
// it as a read-only oracle.
type VolumeMetadata interface {
	// Bounds returns the voxel bounds of the volume at the scale whose
	// resolution equals mip.  A zero mip selects the base scale.
	Bounds(ctx context.Context, ref volume.StorageRef, mip volume.Point3d) (volume.Box3d, error)

	// ChunkLayout returns the storage chunk shape at the given scale.
	ChunkLayout(ctx context.Context, ref volume.StorageRef, mip volume.Point3d) (volume.Point3d, error)
}

// VolumeSpec describes a segmentation volume to be created.
type VolumeSpec struct {
	Resolution volume.Point3d `toml:"resolution" json:"resolution"`
	Size       volume.Point3d `toml:"size" json:"size"`
	Offset     volume.Point3d `toml:"offset" json:"offset"`
	ChunkSize  volume.Point3d `toml:"chunk_size" json:"chunk_size"`
}

// VolumeInitializer creates empty segmentation volumes.
type VolumeInitializer interface {
	InitSegVolume(ctx context.Context, ref volume.StorageRef, spec VolumeSpec) error
}

// Planner builds task iterators for every pipeline stage.  Volumes is used to
// clamp requested bounds for spatial stages; if nil, bounds are used as given.
// Initializer is only needed by InitOutputVolumes.
type Planner struct {
	Volumes     VolumeMetadata
	Initializer VolumeInitializer
}

// clamp restricts bounds to the volume at ref.
func (p Planner) clamp(ctx context.Context, stage Stage, ref volume.StorageRef, mip volume.Point3d, bounds volume.Box3d) (volume.Box3d, error) {
	if p.Volumes == nil {
		return bounds, nil
	}
	volBounds, err := p.Volumes.Bounds(ctx, ref, mip)
	if err != nil {
		return volume.Box3d{}, fmt.Errorf("stage %s: unable to get bounds of %s: %w", stage, ref, err)
	}
	clamped := bounds.Clamp(volBounds)
	if !clamped.Equal(bounds) {
		volume.Debugf("%s: clamped requested bounds %s to %s using volume %s %s\n",
			stage, bounds, clamped, ref, volBounds)
	}
	return clamped, nil
}

// gridIterator validates the chunk shape and bounds, clamps against the volume
// at ref, then returns an iterator over the resulting grid.
func (p Planner) gridIterator(ctx context.Context, stage Stage, ref volume.StorageRef, mip volume.Point3d,
	bounds volume.Box3d, shape volume.Point3d, format ChunkFormatter) (GridIterator, error) {

	if !shape.Positive() {
		return GridIterator{}, &ConfigurationError{
			Stage:  stage,
			Param:  "shape",
			Reason: fmt.Sprintf("got %s", shape),
			Err:    volume.ErrBadChunkShape,
		}
	}
	if _, err := volume.NewBox3d(bounds.Min, bounds.Max); err != nil {
		return GridIterator{}, &ConfigurationError{Stage: stage, Param: "bounds", Reason: "inverted box", Err: err}
	}
	clamped, err := p.clamp(ctx, stage, ref, mip, bounds)
	if err != nil {
		return GridIterator{}, err
	}
	grid, err := volume.NewChunkGrid(clamped, shape)
	if err != nil {
		return GridIterator{}, &ConfigurationError{Stage: stage, Param: "bounds", Reason: "bad grid", Err: err}
	}
	return NewGridIterator(stage, grid, format), nil
}

// InitVolumesParams names the output volumes of a run and their layout.
type InitVolumesParams struct {
	Output     volume.StorageRef `toml:"output" json:"output"`
	TempOutput volume.StorageRef `toml:"temp_output" json:"temp_output"`
	Resolution volume.Point3d    `toml:"resolution" json:"resolution"`
	Size       volume.Point3d    `toml:"size" json:"size"`
	Offset     volume.Point3d    `toml:"offset" json:"offset"`
	ChunkSize  volume.Point3d    `toml:"chunk_size" json:"chunk_size"`
}

// InitOutputVolumes creates the output segmentation volume and, if it is a
// different location, the temporary output volume with the same layout.
func (p Planner) InitOutputVolumes(ctx context.Context, params InitVolumesParams) error {
	const stage = Stage("init_volumes")
	if p.Initializer == nil {
		return configErr(stage, "initializer", "no volume initializer configured")
	}
	if params.Output == "" {
		return configErr(stage, "output", "missing output volume")
	}
	for name, pt := range map[string]volume.Point3d{
		"resolution": params.Resolution,
		"size":       params.Size,
		"chunk_size": params.ChunkSize,
	} {
		if !pt.Positive() {
			return configErr(stage, name, "must be positive, got %s", pt)
		}
	}
	spec := VolumeSpec{
		Resolution: params.Resolution,
		Size:       params.Size,
		Offset:     params.Offset,
		ChunkSize:  params.ChunkSize,
	}
	timedLog := volume.NewTimeLog()
	if err := p.Initializer.InitSegVolume(ctx, params.Output, spec); err != nil {
		return fmt.Errorf("unable to initialize output volume %s: %w", params.Output, err)
	}
	if params.TempOutput != "" && params.TempOutput != params.Output {
		if err := p.Initializer.InitSegVolume(ctx, params.TempOutput, spec); err != nil {
			return fmt.Errorf("unable to initialize temporary output volume %s: %w", params.TempOutput, err)
		}
	}
	timedLog.Infof("Initialized output volumes %s (temp %s)", params.Output, params.TempOutput)
	return nil
}
