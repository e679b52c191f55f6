// Package gdalraster reads and writes rasters through GDAL.
package gdalraster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensorable/geobbox"
	"github.com/sensorable/geobbox/log"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

const logTag = "gdalraster:"

func init() {
	// No .aux.xml sidecars next to inputs and outputs.
	setDefaultEnv("GDAL_PAM_ENABLED", "NO")
}

func setDefaultEnv(envVar string, defaultVal string) {
	if _, ok := os.LookupEnv(envVar); !ok {
		os.Setenv(envVar, defaultVal)
	}
}

// Raster is a GDAL dataset opened read-only.
type Raster struct {
	ds gdal.Dataset
}

// Open opens the raster at path. It has the signature of geobbox.OpenFunc.
func Open(path string) (geobbox.Raster, error) {
	ds, err := gdal.Open(path, gdal.ReadOnly)
	if err != nil {
		log.Error(logTag+"open raster failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return &Raster{ds: ds}, nil
}

// BandCount implements geobbox.Raster.
func (r *Raster) BandCount() int {
	return r.ds.RasterCount()
}

// Size implements geobbox.Raster.
func (r *Raster) Size() (int, int) {
	return r.ds.RasterXSize(), r.ds.RasterYSize()
}

// GeoTransform implements geobbox.Raster.
func (r *Raster) GeoTransform() [6]float64 {
	return r.ds.GeoTransform()
}

// ReadBand implements geobbox.Raster. GDAL converts the band's data type to float64.
func (r *Raster) ReadBand(i int) ([]float64, error) {
	if i < 0 || i >= r.ds.RasterCount() {
		return nil, fmt.Errorf("band %d out of range [0, %d)", i, r.ds.RasterCount())
	}
	x, y := r.Size()
	buf := make([]float64, x*y)
	band := r.ds.RasterBand(i + 1)
	if err := band.IO(gdal.Read, 0, 0, x, y, buf, x, y, 0, 0); err != nil {
		log.Error(logTag+"read band failed", zap.Int("band", i), zap.Error(err))
		return nil, err
	}
	return buf, nil
}

// Close implements geobbox.Raster.
func (r *Raster) Close() error {
	r.ds.Close()
	return nil
}

// driverName picks the GDAL driver from the file extension.
func driverName(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return "GTiff", nil
	case ".png":
		return "PNG", nil
	case ".jpg", ".jpeg":
		return "JPEG", nil
	case ".bmp":
		return "BMP", nil
	}
	return "", fmt.Errorf("no raster driver for %q", path)
}

// Save writes the band stack to path as an 8 bit image in the format given by the extension. It
// has the signature of geobbox.SaveFunc.
//
// GeoTIFF is created directly. Other formats only support CreateCopy, so the stack is assembled in
// a MEM dataset first.
func Save(path string, stack *geobbox.BandStack) error {
	name, err := driverName(path)
	if err != nil {
		return err
	}

	createName := name
	if name != "GTiff" {
		createName = "MEM"
	}
	driver, err := gdal.GetDriverByName(createName)
	if err != nil {
		return err
	}
	createPath := path
	if createName == "MEM" {
		createPath = ""
	}

	n := len(stack.Bands)
	ds := driver.Create(createPath, stack.Width, stack.Height, n, gdal.Byte, nil)
	// A failed create leaves a NULL handle, which reports a zero size.
	if ds.RasterXSize() == 0 {
		log.Error(logTag+"create raster failed", zap.String("path", path), zap.String("driver", createName))
		return fmt.Errorf("%s driver could not create %q", createName, path)
	}
	defer ds.Close()

	for i, samples := range stack.Bands {
		band := ds.RasterBand(i + 1)
		if err := band.IO(gdal.Write, 0, 0, stack.Width, stack.Height, samples, stack.Width, stack.Height, 0, 0); err != nil {
			log.Error(logTag+"write band failed", zap.String("path", path), zap.Int("band", i), zap.Error(err))
			return err
		}
	}
	if createName != "MEM" {
		return nil
	}

	outDriver, err := gdal.GetDriverByName(name)
	if err != nil {
		return err
	}
	out := outDriver.CreateCopy(path, ds, 0, nil, nil, nil)
	if out.RasterCount() == 0 {
		log.Error(logTag+"copy raster failed", zap.String("path", path), zap.String("driver", name))
		return fmt.Errorf("%s driver could not write %q", name, path)
	}
	out.Close()
	log.Debug(logTag+"raster saved", zap.String("path", path), zap.String("driver", name), zap.Int("bands", n))
	return nil
}
