package geobbox

// TFRecord object detection export.

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sensorable/geobbox/log"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	"go.uber.org/zap"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// LabelMap assigns class IDs, starting at 1, to label strings.
type LabelMap struct {
	ids    map[string]int32
	nextID int32
}

// NewLabelMap returns an empty label map.
func NewLabelMap() *LabelMap {
	return &LabelMap{ids: make(map[string]int32), nextID: 1}
}

// ID returns the class ID of label, assigning the next free one if label is new.
func (m *LabelMap) ID(label string) int32 {
	id, ok := m.ids[label]
	if !ok {
		id = m.nextID
		m.ids[label] = id
		m.nextID++
	}
	return id
}

// Len is the number of labels.
func (m *LabelMap) Len() int {
	return len(m.ids)
}

// WriteTo writes the map in the object detection label map text format, ordered by ID.
func (m *LabelMap) WriteTo(w io.Writer) (int64, error) {
	names := make([]string, 0, len(m.ids))
	for k := range m.ids {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return m.ids[names[i]] < m.ids[names[j]] })

	var buf bytes.Buffer
	for _, name := range names {
		fmt.Fprintf(&buf, "item {\n  name: %s\n  id: %d\n}\n", strconv.Quote(name), m.ids[name])
	}
	return buf.WriteTo(w)
}

// Save writes the label map to path.
func (m *LabelMap) Save(path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	if _, err := m.WriteTo(file); err != nil {
		return fmt.Errorf("failed to write the label map %q: %v", path, err)
	}
	return nil
}

// LoadLabelMap loads the label map from path.
//
// If an error occurs because the file does not exist, then os.IsNotExist will return true for the
// error.
func LoadLabelMap(path string) (*LabelMap, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	m, err := ParseLabelMap(file)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", path, err)
	}
	return m, nil
}

// ParseLabelMap parses the label map text format, one field per line.
func ParseLabelMap(r io.Reader) (*LabelMap, error) {
	m := NewLabelMap()

	var (
		inItem bool
		name   string
		id     int64
	)
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		var err error
		switch {
		case text == "" || strings.HasPrefix(text, "#"):
		case text == "item {" && !inItem:
			inItem, name, id = true, "", 0
		case text == "}" && inItem:
			if name == "" || id <= 0 {
				return nil, fmt.Errorf("line %d: invalid entry: %s: %d: %w", line, name, id, ErrInvalidLabelMap)
			}
			m.ids[name] = int32(id)
			if int32(id) >= m.nextID {
				m.nextID = int32(id) + 1
			}
			inItem = false
		case inItem && strings.HasPrefix(text, "name:"):
			name, err = strconv.Unquote(strings.TrimSpace(strings.TrimPrefix(text, "name:")))
		case inItem && strings.HasPrefix(text, "id:"):
			id, err = strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(text, "id:")), 10, 32)
		case inItem && strings.HasPrefix(text, "display_name:"):
		default:
			err = fmt.Errorf("unexpected %q", text)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", line, err, ErrInvalidLabelMap)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if inItem {
		return nil, fmt.Errorf("unterminated item: %w", ErrInvalidLabelMap)
	}

	return m, nil
}

// TFRecordWriter writes annotated rasters as TensorFlow object detection examples.
type TFRecordWriter struct {
	Open        OpenFunc
	Encoding    string // Image encoding inside the records, "png" (default) or "jpeg".
	JPEGQuality int
}

const tfRecordLogTag = "TFRecordWriter:"

// toTFRecord converts the annotations for a single raster to a feature map. The raster is
// re-encoded as a gray image if it has one band, otherwise as RGB from its first three bands.
// Repeated boxes are written once.
func (t *TFRecordWriter) toTFRecord(fileData AnnotatedFile, labels *LabelMap) (TFFeatureMap, error) {
	fileData = fileData.Unique()

	format, formatName, err := imageEncoding(t.Encoding)
	if err != nil {
		return nil, err
	}

	r, err := t.Open(fileData.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrRasterOpen)
	}
	defer r.Close()

	bands := 3
	if r.BandCount() == 1 {
		bands = 1
	}
	stack, _, err := FixBands(r, bands, PadReplicate)
	if err != nil {
		return nil, err
	}
	var imgData bytes.Buffer
	if err := encodeStack(&imgData, stack, format, t.JPEGQuality); err != nil {
		return nil, fmt.Errorf("failed to encode the image: %v", err)
	}

	// Prepare the feature map for the per file data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = stack.Height
	f["image/width"] = stack.Width
	f["image/filename"] = fileData.FilePath
	f["image/source_id"] = fileData.FilePath
	f["image/encoded"] = imgData.Bytes()
	f["image/format"] = formatName

	// Prepare the per label data.
	numLabels := len(fileData.Annotations)
	xmins := make([]float32, numLabels)
	ymins := make([]float32, numLabels)
	xmaxs := make([]float32, numLabels)
	ymaxs := make([]float32, numLabels)
	classes := make([]string, numLabels)
	classIDs := make([]int64, numLabels)
	for i, a := range fileData.Annotations {
		xmins[i] = float32(a.Coords[0]) / float32(stack.Width)
		ymins[i] = float32(a.Coords[1]) / float32(stack.Height)
		xmaxs[i] = float32(a.Coords[2]) / float32(stack.Width)
		ymaxs[i] = float32(a.Coords[3]) / float32(stack.Height)
		classes[i] = a.Label
		classIDs[i] = int64(labels.ID(a.Label))
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// Write converts data to examples and writes them to one or more TFRecord files stored under
// recordFilePath (with suffixes added when numShards>1). The label map at labelMapPath is extended
// with new labels, or created.
func (t *TFRecordWriter) Write(recordFilePath, labelMapPath string, data []AnnotatedFile,
	numShards int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}
	if len(data) > 0 && numShards > len(data) {
		numShards = len(data)
	}

	// Try to load an existing label map. It is not an error if the file does not exist.
	labels, err := LoadLabelMap(labelMapPath)
	if err == nil {
		log.Info(tfRecordLogTag+"label map loaded", zap.String("path", labelMapPath), zap.Int("labels", labels.Len()))
	} else if os.IsNotExist(err) {
		log.Info(tfRecordLogTag+"creating a new label map", zap.String("path", labelMapPath))
		labels = NewLabelMap()
	} else {
		return fmt.Errorf("failed to read the label map from %q: %w", labelMapPath, err)
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()
	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one data element at a time.
	for i, fileData := range data {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					return err
				}
				shardFile = nil
			}

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		features, err := t.toTFRecord(fileData, labels)
		if err != nil {
			log.Error(tfRecordLogTag+"failed to convert", zap.String("image", fileData.FilePath), zap.Error(err))
			continue
		}
		tfExample := example.New(features)

		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return fmt.Errorf("failed to write example for %q: %v", fileData.FilePath, err)
		}
	}

	return labels.Save(labelMapPath)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}
