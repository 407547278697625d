package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"

	"go.viam.com/depth2metric/logging"
	"go.viam.com/depth2metric/scale"
	"go.viam.com/depth2metric/vision/segmentation"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.Camera.UseMetadata, test.ShouldBeTrue)
	test.That(t, cfg.Scale.Config, test.ShouldResemble, scale.DefaultConfig())
	test.That(t, cfg.Scale.FallbackScale, test.ShouldEqual, 0.1)
	test.That(t, cfg.Scale.EnableImageBottom, test.ShouldBeFalse)
	test.That(t, cfg.RANSAC, test.ShouldResemble, segmentation.DefaultPlaneConfig())
	test.That(t, cfg.PointCloud.VoxelSize, test.ShouldEqual, 0.7)
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.INFO)

	priors, err := cfg.ScalePriors()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, priors.Len(), test.ShouldBeGreaterThan, 0)

	intrinsics, err := cfg.Intrinsics()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, intrinsics, test.ShouldBeNil)
}

func TestFromReader(t *testing.T) {
	logger := logging.NewTestLogger(t)
	in := `{
		"scale": {"camera_height_cm": 150, "enable_ground_plane": false},
		"ransac": {"iterations": 100},
		"log_level": "debug"
	}`
	cfg, err := FromReader("in.json", strings.NewReader(in), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "in.json")
	test.That(t, cfg.Scale.CameraHeightCM, test.ShouldEqual, 150)
	test.That(t, cfg.Scale.EnableGroundPlane, test.ShouldBeFalse)
	// untouched fields keep their defaults
	test.That(t, cfg.Scale.DetectionConfidence, test.ShouldEqual, 0.5)
	test.That(t, cfg.Scale.MinVerticalAlignment, test.ShouldEqual, 0.75)
	test.That(t, cfg.RANSAC.Iterations, test.ShouldEqual, 100)
	test.That(t, cfg.RANSAC.SampleSize, test.ShouldEqual, 10)
	test.That(t, cfg.Camera.UseMetadata, test.ShouldBeTrue)
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.DEBUG)

	_, err = FromReader("", strings.NewReader(`{"scale": {"fallback_scale": 0}, "pointcloud": {"voxel_size": -1}}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "fallback_scale")
	test.That(t, err.Error(), test.ShouldContainSubstring, "voxel_size")

	_, err = FromReader("", strings.NewReader(`{"scael": {}}`), logger)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode")

	_, err = FromReader("", strings.NewReader(`{"log_level": "loud"}`), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEmptyDocumentIsDefault(t *testing.T) {
	cfg, err := FromReader("empty.json", strings.NewReader(`{}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	expected := Default()
	expected.ConfigFilePath = "empty.json"
	test.That(t, cmp.Diff(expected, cfg), test.ShouldBeEmpty)
}

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	priorsPath := filepath.Join(dir, "priors.json")
	test.That(t, os.WriteFile(priorsPath, []byte(`[{"class_id": 3, "name": "mug", "height_cm": 9.5}]`), 0o600), test.ShouldBeNil)

	t.Setenv("D2M_PRIORS", priorsPath)
	t.Setenv("D2M_HEIGHT", "140")
	cfgPath := filepath.Join(dir, "config.json")
	doc := `{"scale": {"priors_file": "${D2M_PRIORS}", "camera_height_cm": ${D2M_HEIGHT}}}`
	test.That(t, os.WriteFile(cfgPath, []byte(doc), 0o600), test.ShouldBeNil)

	cfg, err := Read(cfgPath, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Scale.PriorsFile, test.ShouldEqual, priorsPath)
	test.That(t, cfg.Scale.CameraHeightCM, test.ShouldEqual, 140)

	priors, err := cfg.ScalePriors()
	test.That(t, err, test.ShouldBeNil)
	mug, ok := priors.Lookup(3)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, mug.HeightCM, test.ShouldEqual, 9.5)

	_, err = Read(filepath.Join(dir, "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}
