package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

// PCDTypeFromString parses "ascii" or "binary".
func PCDTypeFromString(s string) (PCDType, error) {
	switch s {
	case "ascii":
		return PCDAscii, nil
	case "binary":
		return PCDBinary, nil
	default:
		return PCDBinary, errors.Errorf("unknown pcd data type %q", s)
	}
}

func colorToPCDInt(cp ColoredPoints, i int) uint32 {
	r, g, b := cp.RGB255(i)
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// ToPCD writes cp as an unorganized PCD v0.7 cloud with fields x y z rgb.
// Positions are written in the cloud's own units.
func ToPCD(cp ColoredPoints, out io.Writer, outputType PCDType) error {
	if cp.Len() != len(cp.Colors) {
		return errors.Wrapf(ErrLengthMismatch, "%d points, %d colors", cp.Len(), len(cp.Colors))
	}
	w := bufio.NewWriter(out)
	_, err := fmt.Fprintf(w, "VERSION .7\n"+
		"FIELDS x y z rgb\n"+
		"SIZE 4 4 4 4\n"+
		"TYPE F F F I\n"+
		"COUNT 1 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cp.Len(), cp.Len())
	if err != nil {
		return err
	}

	switch outputType {
	case PCDBinary:
		if _, err := fmt.Fprintf(w, "DATA binary\n"); err != nil {
			return err
		}
		buf := make([]byte, 16)
		for i := 0; i < cp.Len(); i++ {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(cp.X[i])))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(cp.Y[i])))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(cp.Z[i])))
			binary.LittleEndian.PutUint32(buf[12:], colorToPCDInt(cp, i))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	case PCDAscii:
		if _, err := fmt.Fprintf(w, "DATA ascii\n"); err != nil {
			return err
		}
		for i := 0; i < cp.Len(); i++ {
			if _, err := fmt.Fprintf(w, "%f %f %f %d\n", cp.X[i], cp.Y[i], cp.Z[i], colorToPCDInt(cp, i)); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unsupported pcd data type %v", outputType)
	}
	return w.Flush()
}
