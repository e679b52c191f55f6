package geobbox

// Batch configuration.

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// Job is one GeoJSON and raster pair to convert.
type Job struct {
	GeoJSON  string `yaml:"geojson"`
	Image    string `yaml:"image"`
	CSV      string `yaml:"csv"`
	Label    string `yaml:"label"`
	BandsOut string `yaml:"bands_out"` // Output of the band normaliser; derived from Image if empty.
}

// BandsConfig configures the band normaliser. It is disabled if Required is zero.
type BandsConfig struct {
	Required int    `yaml:"required"`
	Pad      string `yaml:"pad"`
	OutExt   string `yaml:"out_ext"`
}

// TFRecordConfig configures the optional TFRecord export. It is disabled if Path is empty.
type TFRecordConfig struct {
	Path        string `yaml:"path"`
	LabelMap    string `yaml:"label_map"`
	NumShards   int    `yaml:"num_shards"`
	Encoding    string `yaml:"image_encoding"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// Config is the batch job file.
type Config struct {
	IDProperty  string         `yaml:"id_property"`
	Encoding    string         `yaml:"geojson_encoding"`
	XMaxFormula string         `yaml:"xmax_formula"`
	Bands       BandsConfig    `yaml:"bands"`
	TFRecord    TFRecordConfig `yaml:"tfrecord"`
	Jobs        []Job          `yaml:"jobs"`
}

// LoadConfig reads and validates the YAML config at path.
func LoadConfig(path string) (*Config, error) {
	enc, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := yaml.UnmarshalStrict(enc, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %v: %w", path, err, ErrInvalidConfig)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	return &c, nil
}

// SetDefaults fills in unset optional values.
func (c *Config) SetDefaults() {
	if c.IDProperty == "" {
		c.IDProperty = DefaultIDProperty
	}
	if c.Bands.OutExt == "" {
		c.Bands.OutExt = "png"
	}
	if c.TFRecord.Path != "" && c.TFRecord.LabelMap == "" {
		c.TFRecord.LabelMap = c.TFRecord.Path + ".pbtxt"
	}
	if c.TFRecord.NumShards <= 0 {
		c.TFRecord.NumShards = 1
	}
	if c.TFRecord.JPEGQuality == 0 {
		c.TFRecord.JPEGQuality = 90
	}
}

// Validate sets the defaults and checks the config for consistency.
func (c *Config) Validate() error {
	c.SetDefaults()

	if _, err := ParseXMaxFormula(c.XMaxFormula); err != nil {
		return err
	}
	if _, err := ParsePadMode(c.Bands.Pad); err != nil {
		return err
	}
	if c.Bands.Required < 0 {
		return fmt.Errorf("bands.required %d: %w", c.Bands.Required, ErrInvalidConfig)
	}
	if _, err := decodingReader(nil, c.Encoding); err != nil {
		return err
	}
	if _, _, err := imageEncoding(c.TFRecord.Encoding); err != nil {
		return err
	}
	if q := c.TFRecord.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("tfrecord.jpeg_quality %d not in [1, 100]: %w", q, ErrInvalidConfig)
	}
	if len(c.Jobs) == 0 {
		return fmt.Errorf("no jobs: %w", ErrInvalidConfig)
	}

	for i, j := range c.Jobs {
		if j.Image == "" {
			return fmt.Errorf("job %d: missing image: %w", i, ErrInvalidConfig)
		}
		if j.GeoJSON == "" && c.Bands.Required == 0 {
			return fmt.Errorf("job %d: nothing to do without geojson or bands.required: %w", i, ErrInvalidConfig)
		}
		if j.GeoJSON != "" && j.CSV == "" {
			return fmt.Errorf("job %d: missing csv: %w", i, ErrInvalidConfig)
		}
		if j.BandsOut != "" && j.BandsOut == j.Image {
			return fmt.Errorf("job %d: bands_out overwrites the image: %w", i, ErrInvalidConfig)
		}
	}

	return nil
}

// Converter builds the converter the config describes.
func (c *Config) Converter(open OpenFunc) (*Converter, error) {
	xmax, err := ParseXMaxFormula(c.XMaxFormula)
	if err != nil {
		return nil, err
	}
	return &Converter{Open: open, IDProperty: c.IDProperty, Encoding: c.Encoding, XMax: xmax}, nil
}

// BandNormalizer builds the band normaliser the config describes.
func (c *Config) BandNormalizer(open OpenFunc, save SaveFunc) (*BandNormalizer, error) {
	pad, err := ParsePadMode(c.Bands.Pad)
	if err != nil {
		return nil, err
	}
	return &BandNormalizer{Open: open, Save: save, Pad: pad}, nil
}

// TFRecordWriter builds the TFRecord writer the config describes.
func (c *Config) TFRecordWriter(open OpenFunc) *TFRecordWriter {
	return &TFRecordWriter{Open: open, Encoding: c.TFRecord.Encoding, JPEGQuality: c.TFRecord.JPEGQuality}
}
