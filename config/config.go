// Package config defines the structures to configure a reconstruction.
package config

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/depth2metric/logging"
	"go.viam.com/depth2metric/rimage/transform"
	"go.viam.com/depth2metric/scale"
	"go.viam.com/depth2metric/vision/objectdetection"
	"go.viam.com/depth2metric/vision/segmentation"
)

// Config describes how to turn an image and its relative depth into a metric
// point cloud.
type Config struct {
	ConfigFilePath string `json:"-"`

	Camera     CameraConfig             `json:"camera"`
	Scale      ScaleConfig              `json:"scale"`
	RANSAC     segmentation.PlaneConfig `json:"ransac"`
	PointCloud PointCloudConfig         `json:"pointcloud"`
	LogLevel   logging.Level            `json:"log_level"`
}

// CameraConfig controls how intrinsics are obtained.
type CameraConfig struct {
	// UseMetadata enables focal length estimation from EXIF.
	UseMetadata bool `json:"use_metadata"`
	// IntrinsicsFile, when set, replaces estimation entirely.
	IntrinsicsFile string `json:"intrinsics_file,omitempty"`
}

// ScaleConfig is the scale estimator configuration plus where its class
// height priors come from.
type ScaleConfig struct {
	scale.Config
	// PriorsFile is a JSON prior table. Empty means the built-in COCO table.
	PriorsFile string `json:"priors_file,omitempty"`
}

// PointCloudConfig controls the output cloud.
type PointCloudConfig struct {
	// VoxelSize is the voxel edge length used for downsampling. Zero disables it.
	VoxelSize float64 `json:"voxel_size"`
}

// Default returns a config with every default filled in.
func Default() *Config {
	return &Config{
		Camera:     CameraConfig{UseMetadata: true},
		Scale:      ScaleConfig{Config: scale.DefaultConfig()},
		RANSAC:     segmentation.DefaultPlaneConfig(),
		PointCloud: PointCloudConfig{VoxelSize: 0.7},
		LogLevel:   logging.INFO,
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	var err error
	if verr := c.Scale.Validate(); verr != nil {
		err = multierr.Append(err, errors.Wrap(verr, "scale"))
	}
	if verr := c.RANSAC.CheckValid(); verr != nil {
		err = multierr.Append(err, errors.Wrap(verr, "ransac"))
	}
	if v := c.PointCloud.VoxelSize; v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		err = multierr.Append(err, errors.Errorf("pointcloud: voxel_size must be non-negative, got %v", v))
	}
	return err
}

// ScalePriors loads the configured prior table.
func (c *Config) ScalePriors() (*objectdetection.ScalePriors, error) {
	if c.Scale.PriorsFile == "" {
		return objectdetection.DefaultScalePriors(), nil
	}
	return objectdetection.NewScalePriorsFromJSONFile(c.Scale.PriorsFile)
}

// Intrinsics loads the intrinsics override, if any. A nil result means the
// intrinsics should be estimated.
func (c *Config) Intrinsics() (*transform.PinholeCameraIntrinsics, error) {
	if c.Camera.IntrinsicsFile == "" {
		return nil, nil
	}
	return transform.NewPinholeCameraIntrinsicsFromJSONFile(c.Camera.IntrinsicsFile)
}
