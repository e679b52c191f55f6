// Converts GeoJSON rectangle annotations to pixel bounding boxes of a raster, normalises the band
// count of rasters, and writes CSV (and optionally TFRecord) object detection datasets.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sensorable/geobbox"
	"github.com/sensorable/geobbox/gdalraster"
	"github.com/sensorable/geobbox/log"

	"go.uber.org/zap"
)

var (
	configPath string // The YAML job file; replaces the single job flags.
	debug      bool   // Development logging.

	cfg geobbox.Config // The effective configuration.
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  batch:\t\t-config <file>")
		_, _ = fmt.Fprintln(os.Stderr, "  convert:\t-geojson <file> -image <file> -csv <file> [-label]")
		_, _ = fmt.Fprintln(os.Stderr, "  bands:\t-image <file> -bands <n> [-bands-out <file>]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		_, _ = fmt.Fprintln(os.Stderr, msg...)
		flag.Usage()
		os.Exit(1)
	}

	var job geobbox.Job

	flag.StringVar(&configPath, "config", configPath, "The YAML job `file`")
	flag.BoolVar(&debug, "debug", debug, "Enable development logging")

	// Single job arguments.
	flag.StringVar(&job.GeoJSON, "geojson", "", "The GeoJSON annotation `file`")
	flag.StringVar(&job.Image, "image", "", "The georeferenced raster `file`")
	flag.StringVar(&job.CSV, "csv", "", "The CSV dataset `file` to create or merge into")
	flag.StringVar(&job.Label, "label", "", "The label for all converted boxes, e.g. tree")
	flag.StringVar(&job.BandsOut, "bands-out", "",
		"The output `file` of the band normaliser (default: <image>_<n>b.<ext>)")

	// Conversion arguments.
	flag.StringVar(&cfg.IDProperty, "id-property", geobbox.DefaultIDProperty,
		"The feature property holding the annotation identifier")
	flag.StringVar(&cfg.Encoding, "encoding", "", "The character `encoding` of the GeoJSON file")
	flag.StringVar(&cfg.XMaxFormula, "xmax", "mirrored",
		"The xmax pixel formula {mirrored, offset}; mirrored reproduces existing datasets")

	// Band normaliser arguments.
	flag.IntVar(&cfg.Bands.Required, "bands", 0, "The required number of bands (0 disables the check)")
	flag.StringVar(&cfg.Bands.Pad, "pad", "zero", "How missing bands are filled {zero, replicate}")
	flag.StringVar(&cfg.Bands.OutExt, "bands-ext", "png", "The file type of derived -bands-out paths")

	// TFRecord arguments.
	flag.StringVar(&cfg.TFRecord.Path, "tfrecord", "", "The TFRecord output `path` (empty disables)")
	flag.StringVar(&cfg.TFRecord.LabelMap, "tfrecord-label-map", "",
		"The TFRecord label map `path` (default: <tfrecord>.pbtxt)")
	flag.IntVar(&cfg.TFRecord.NumShards, "num-shards", 1, "The number of TFRecord shard files")
	flag.StringVar(&cfg.TFRecord.Encoding, "image-enc", "png", "The image encoding in TFRecords {png, jpg}")
	flag.IntVar(&cfg.TFRecord.JPEGQuality, "jpeg-quality", 90, "The JPEG quality [1, 100]")

	flag.Parse()

	if configPath != "" {
		c, err := geobbox.LoadConfig(configPath)
		if err != nil {
			printUsageAndExit("Invalid config: ", err)
		}
		cfg = *c
		return
	}

	if job.Image != "" {
		cfg.Jobs = []geobbox.Job{job}
	}
	if err := cfg.Validate(); err != nil {
		printUsageAndExit("Invalid arguments: ", err)
	}
}

func main() {
	if err := log.Init(debug); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to set up logging: ", err)
		os.Exit(1)
	}
	defer log.Sync()

	os.Exit(run())
}

// run executes all jobs and returns the exit code: 0 on success, 2 if an input was invalid and
// 1 on any other failure.
func run() int {
	converter, err := cfg.Converter(gdalraster.Open)
	if err != nil {
		log.Error("invalid converter config", zap.Error(err))
		return 1
	}
	normalizer, err := cfg.BandNormalizer(gdalraster.Open, gdalraster.Save)
	if err != nil {
		log.Error("invalid band config", zap.Error(err))
		return 1
	}

	code := 0
	fail := func(err error) {
		if geobbox.IsInputError(err) {
			code = 2
		} else if code == 0 {
			code = 1
		}
	}

	var converted []geobbox.AnnotatedFile
	for i, job := range cfg.Jobs {
		if n := cfg.Bands.Required; n > 0 {
			outPath := job.BandsOut
			if outPath == "" {
				if outPath, err = geobbox.BandsOutPath(job.Image, n, cfg.Bands.OutExt); err != nil {
					log.Error("cannot derive bands output path", zap.Int("job", i), zap.Error(err))
					fail(err)
					continue
				}
			}
			outcome, err := normalizer.Normalize(job.Image, outPath, n)
			if err != nil {
				log.Error("band normalisation failed", zap.Int("job", i), zap.String("image", job.Image), zap.Error(err))
				fail(err)
				continue
			}
			log.Info("band count checked", zap.Int("job", i), zap.String("image", job.Image),
				zap.Stringer("outcome", outcome))
		}

		if job.GeoJSON == "" {
			continue
		}
		data, stats, err := converter.Run(job.GeoJSON, job.Image, job.CSV, job.Label)
		if err != nil {
			log.Error("conversion failed", zap.Int("job", i), zap.String("geojson", job.GeoJSON),
				zap.String("csv", job.CSV), zap.Error(err))
			fail(err)
			continue
		}
		log.Info("job done", zap.Int("job", i), zap.String("csv", job.CSV), zap.Int("boxes", len(data.Annotations)),
			zap.Int("added", stats.Added), zap.Int("duplicates", stats.Duplicates))
		converted = append(converted, data)
	}

	if cfg.TFRecord.Path != "" && len(converted) > 0 {
		w := cfg.TFRecordWriter(gdalraster.Open)
		if err := w.Write(cfg.TFRecord.Path, cfg.TFRecord.LabelMap, converted, cfg.TFRecord.NumShards); err != nil {
			log.Error("tfrecord export failed", zap.String("path", cfg.TFRecord.Path), zap.Error(err))
			fail(err)
		} else {
			log.Info("tfrecord written", zap.String("path", cfg.TFRecord.Path), zap.Int("files", len(converted)))
		}
	}

	log.Info("total number of jobs", zap.Int("jobs", len(cfg.Jobs)), zap.Int("converted", len(converted)))
	return code
}
