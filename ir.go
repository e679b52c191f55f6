package geobbox

// The intermediate annotation representation shared by the CSV and TFRecord outputs.

// Annotation is a labelled bounding box in pixel space.
type Annotation struct {
	Coords [4]float64 // Absolute x1, y1, x2, y2 offsets from the top-left corner.
	Label  string
}

// Width is the object width from a.Coords.
func (a Annotation) Width() float64 {
	return a.Coords[2] - a.Coords[0]
}

// Height is the object height from a.Coords.
func (a Annotation) Height() float64 {
	return a.Coords[3] - a.Coords[1]
}

// AnnotatedFile is the set of annotations for one image.
type AnnotatedFile struct {
	Annotations []Annotation
	FilePath    string
}

// Unique returns f without annotations that exactly repeat an earlier one. Order is kept.
func (f AnnotatedFile) Unique() AnnotatedFile {
	seen := make(map[Annotation]struct{}, len(f.Annotations))
	out := AnnotatedFile{Annotations: make([]Annotation, 0, len(f.Annotations)), FilePath: f.FilePath}
	for _, a := range f.Annotations {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out.Annotations = append(out.Annotations, a)
	}
	return out
}

// CSVRows flattens f into one CSV row per annotation.
func (f AnnotatedFile) CSVRows() []CSVRow {
	rows := make([]CSVRow, len(f.Annotations))
	for i, a := range f.Annotations {
		rows[i] = CSVRow{
			ImagePath: f.FilePath,
			XMin:      a.Coords[0],
			YMin:      a.Coords[1],
			XMax:      a.Coords[2],
			YMax:      a.Coords[3],
			Label:     a.Label,
		}
	}
	return rows
}
