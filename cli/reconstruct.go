package cli

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/depth2metric/config"
	"go.viam.com/depth2metric/logging"
	"go.viam.com/depth2metric/pointcloud"
	"go.viam.com/depth2metric/reconstruct"
	"go.viam.com/depth2metric/rimage"
	"go.viam.com/depth2metric/rimage/transform"
	"go.viam.com/depth2metric/vision/objectdetection"
)

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, "Warning: "+format+"\n", a...)
}

// loadConfig reads the --config file, if any, and returns a logger at the
// configured level.
func loadConfig(c *cli.Context) (*config.Config, logging.Logger, error) {
	logger := logging.NewLogger("depth2metric")
	if c.Bool(generalFlagDebug) {
		logger = logging.NewDebugLogger("depth2metric")
	}
	cfg := config.Default()
	if path := c.String(generalFlagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path, logger); err != nil {
			return nil, nil, err
		}
	}
	if !c.Bool(generalFlagDebug) {
		logger.SetLevel(cfg.LogLevel)
	}
	return cfg, logger, nil
}

// readImage reads and decodes an image file along with its camera metadata.
func readImage(path string) (image.Image, rimage.CameraMetadata, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rimage.CameraMetadata{}, err
	}
	img, err := rimage.DecodeImage(data)
	if err != nil {
		return nil, rimage.CameraMetadata{}, errors.Wrapf(err, "cannot use %q", path)
	}
	return img, rimage.ReadCameraMetadata(bytes.NewReader(data)), nil
}

// loadInputs reads the image, depth map, intrinsics and detections named on
// the command line, concurrently.
func loadInputs(c *cli.Context, cfg *config.Config) (reconstruct.Input, objectdetection.Detector, error) {
	var (
		in       reconstruct.Input
		meta     rimage.CameraMetadata
		dets     []objectdetection.Detection
		detector objectdetection.Detector
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		in.Image, meta, err = readImage(c.String(reconstructFlagImage))
		return err
	})
	g.Go(func() error {
		var err error
		in.Depth, err = rimage.NewDepthMapFromFile(c.String(reconstructFlagDepth), c.Float64(reconstructFlagDepthDivisor))
		return err
	})
	if path := c.String(reconstructFlagIntrinsics); path != "" {
		g.Go(func() error {
			var err error
			in.Intrinsics, err = transform.NewPinholeCameraIntrinsicsFromJSONFile(path)
			return err
		})
	}
	if path := c.String(reconstructFlagDetections); path != "" {
		g.Go(func() error {
			priors, err := cfg.ScalePriors()
			if err != nil {
				return err
			}
			dets, err = objectdetection.NewDetectionsFromJSONFile(path, priors)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return reconstruct.Input{}, nil, err
	}
	in.Metadata = &meta

	if c.String(reconstructFlagDetections) != "" {
		var err error
		if detector, err = objectdetection.Build(nil, objectdetection.NewStaticDetector(dets), nil); err != nil {
			return reconstruct.Input{}, nil, err
		}
	}
	return in, detector, nil
}

// ReconstructAction is the corresponding action for 'reconstruct'.
func ReconstructAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(logger.Sync)

	format := c.String(reconstructFlagFormat)
	if format != formatPacked && format != formatPCD {
		return errors.Errorf("unknown output format %q, must be %q or %q", format, formatPacked, formatPCD)
	}
	pcdType, err := pointcloud.PCDTypeFromString(c.String(reconstructFlagPCDType))
	if err != nil {
		return err
	}

	in, detector, err := loadInputs(c, cfg)
	if err != nil {
		return err
	}

	r, err := reconstruct.NewReconstructor(cfg, detector, logger)
	if err != nil {
		return err
	}
	out, err := r.Reconstruct(c.Context, in)
	if err != nil {
		return err
	}

	outPath := c.String(reconstructFlagOut)
	if err := writeOutput(outPath, out, format, pcdType, c.Bool(reconstructFlagGzip)); err != nil {
		return err
	}
	if !out.Scale.Confident() {
		warningf(c.App.ErrWriter, "no scale strategy succeeded, the cloud uses the placeholder scale %g", out.Scale.Scale)
	}
	printf(c.App.Writer, "wrote %d points to %s (%s)", out.NumPoints, outPath, out.Scale)
	return nil
}

func writeOutput(path string, out *reconstruct.Output, format string, pcdType pointcloud.PCDType, compress bool) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	defer func() {
		err = multierr.Combine(err, w.Flush())
	}()

	var dst io.Writer = w
	if compress {
		gz := gzip.NewWriter(w)
		defer func() {
			err = multierr.Combine(err, gz.Close())
		}()
		dst = gz
	}

	if format == formatPCD {
		return pointcloud.ToPCD(out.Cloud, dst, pcdType)
	}
	_, err = dst.Write(out.Buffer)
	return err
}

// IntrinsicsAction is the corresponding action for 'intrinsics'.
func IntrinsicsAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(logger.Sync)

	img, meta, err := readImage(c.String(reconstructFlagImage))
	if err != nil {
		return err
	}
	r, err := reconstruct.NewReconstructor(cfg, nil, logger)
	if err != nil {
		return err
	}
	b := img.Bounds()
	intrinsics, fromMetadata, err := r.Intrinsics(reconstruct.Input{Metadata: &meta}, b.Dx(), b.Dy())
	if err != nil {
		return err
	}
	logger.Debugw("camera metadata", "has_focal_length", meta.HasFocalLength())

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*transform.PinholeCameraIntrinsics
		FromMetadata bool                  `json:"from_metadata"`
		Metadata     rimage.CameraMetadata `json:"metadata"`
	}{intrinsics, fromMetadata, meta})
}
