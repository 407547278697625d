// Package cli contains the depth2metric command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	generalFlagConfig = "config"
	generalFlagDebug  = "debug"

	reconstructFlagImage        = "image"
	reconstructFlagDepth        = "depth"
	reconstructFlagDepthDivisor = "depth-divisor"
	reconstructFlagDetections   = "detections"
	reconstructFlagIntrinsics   = "intrinsics"
	reconstructFlagOut          = "out"
	reconstructFlagGzip         = "gzip"
	reconstructFlagFormat       = "format"
	reconstructFlagPCDType      = "pcd-type"

	formatPacked = "packed"
	formatPCD    = "pcd"
)

var app = &cli.App{
	Name:            "depth2metric",
	Usage:           "turn a photo and its relative depth map into a metric point cloud",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    generalFlagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "reconstruct",
			Usage:     "build a metric point cloud",
			UsageText: "depth2metric reconstruct --image photo.jpg --depth depth.png --out cloud.bin",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     reconstructFlagImage,
					Usage:    "PNG or JPEG `FILE` to reconstruct",
					Required: true,
				},
				&cli.StringFlag{
					Name:     reconstructFlagDepth,
					Usage:    "relative depth `FILE`: grayscale PNG, or raw depth (.gz allowed)",
					Required: true,
				},
				&cli.Float64Flag{
					Name:  reconstructFlagDepthDivisor,
					Usage: "divide depth PNG pixel values by this",
					Value: 1,
				},
				&cli.StringFlag{
					Name:  reconstructFlagDetections,
					Usage: "JSON `FILE` of object detections for the image",
				},
				&cli.StringFlag{
					Name:  reconstructFlagIntrinsics,
					Usage: "JSON `FILE` of camera intrinsics, skipping estimation",
				},
				&cli.StringFlag{
					Name:     reconstructFlagOut,
					Usage:    "output `FILE`",
					Required: true,
				},
				&cli.BoolFlag{
					Name:  reconstructFlagGzip,
					Usage: "gzip the output",
				},
				&cli.StringFlag{
					Name:  reconstructFlagFormat,
					Usage: "output format: packed (15 bytes per point) or pcd",
					Value: formatPacked,
				},
				&cli.StringFlag{
					Name:  reconstructFlagPCDType,
					Usage: "pcd data section: binary or ascii",
					Value: "binary",
				},
			},
			Action: ReconstructAction,
		},
		{
			Name:  "intrinsics",
			Usage: "print the camera intrinsics estimated for an image",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     reconstructFlagImage,
					Usage:    "PNG or JPEG `FILE`",
					Required: true,
				},
			},
			Action: IntrinsicsAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
