package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Records, every stage and destination consumes them.
// A missing value is a nil entry or an absent key; both mean the same.

// Column names of the brand files and of the cleaned output.
const (
	ColModel        = "model"
	ColTransmission = "transmission"
	ColFuelType     = "fuelType"
	ColMileage      = "mileage"
	ColTax          = "tax"
	ColTaxPound     = "tax(£)" // alternate tax column used by some brand files
	ColMPG          = "mpg"
	ColEngineSize   = "engineSize"
	ColYear         = "year"
	ColPrice        = "price"
	ColBrand        = "brand"
	ColCarAge       = "car_age"
)

// Field types.
const (
	TypeText   = "text"
	TypeNumber = "number"
)

// NumericColumns are parsed as float64; every other column stays text.
var NumericColumns = map[string]bool{
	ColMileage:    true,
	ColTax:        true,
	ColTaxPound:   true,
	ColMPG:        true,
	ColEngineSize: true,
	ColYear:       true,
	ColPrice:      true,
	ColCarAge:     true,
}

// RequiredColumns must be present in the reconciled dataset.
var RequiredColumns = []string{
	ColModel, ColTransmission, ColFuelType, ColMileage,
	ColTax, ColMPG, ColEngineSize, ColYear, ColPrice,
}

// OutputColumns is the fixed, ordered schema of the cleaned dataset.
var OutputColumns = []string{
	ColModel, ColTransmission, ColFuelType, ColMileage,
	ColTax, ColMPG, ColEngineSize, ColBrand, ColCarAge, ColPrice,
}

// WorkingColumns are the columns carried from loading to the final select:
// the required columns plus brand.
func WorkingColumns() []string {
	cols := make([]string, 0, len(RequiredColumns)+1)
	cols = append(cols, RequiredColumns...)
	return append(cols, ColBrand)
}

// ColumnType returns the field type used for a column name.
func ColumnType(name string) string {
	if NumericColumns[name] {
		return TypeNumber
	}
	return TypeText
}

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number"
}

// Schema describes the shape of records in a dataset.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether the schema contains the named field.
func (s *Schema) Has(name string) bool {
	return s.Index(name) >= 0
}

// Index returns the position of the named field, or -1.
func (s *Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares nothing with s.
func (s *Schema) Clone() *Schema {
	fields := make([]Field, len(s.Fields))
	copy(fields, s.Fields)
	return &Schema{Fields: fields}
}

// With returns a copy of the schema with name appended, unless already present.
func (s *Schema) With(name string) *Schema {
	out := s.Clone()
	if !out.Has(name) {
		out.Fields = append(out.Fields, Field{Name: name, Type: ColumnType(name)})
	}
	return out
}

// Without returns a copy of the schema with name removed.
func (s *Schema) Without(name string) *Schema {
	out := &Schema{Fields: make([]Field, 0, len(s.Fields))}
	for _, f := range s.Fields {
		if f.Name != name {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

// Record is a single vehicle listing flowing through the pipeline.
type Record struct {
	Data map[string]any `json:"data"`
}

// NewRecord returns an empty record.
func NewRecord() Record {
	return Record{Data: make(map[string]any)}
}

// Get returns the value of a field and whether it is present (non-nil).
func (r Record) Get(name string) (any, bool) {
	v, ok := r.Data[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Number returns the float value of a field. ok is false for missing or
// non-numeric values.
func (r Record) Number(name string) (float64, bool) {
	v, ok := r.Get(name)
	if !ok {
		return 0, false
	}
	return toFloatSafe(v)
}

// Clone copies the record's data map.
func (r Record) Clone() Record {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return Record{Data: data}
}

// Dataset is the full collection of records at a given pipeline stage.
// Stages never mutate their input; each returns a new Dataset.
type Dataset struct {
	Schema  *Schema  `json:"schema"`
	Records []Record `json:"records"`
}

// NewDataset returns an empty dataset with the given field names.
func NewDataset(names ...string) *Dataset {
	schema := &Schema{Fields: make([]Field, 0, len(names))}
	for _, n := range names {
		schema.Fields = append(schema.Fields, Field{Name: n, Type: ColumnType(n)})
	}
	return &Dataset{Schema: schema}
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.Records)
}

// Clone deep-copies the schema and every record.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Schema: d.Schema.Clone(), Records: make([]Record, len(d.Records))}
	for i, r := range d.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// Head returns up to n leading records.
func (d *Dataset) Head(n int) []Record {
	if n > len(d.Records) {
		n = len(d.Records)
	}
	if n < 0 {
		n = 0
	}
	return d.Records[:n]
}

// Append adds records from other, widening the schema with any fields it
// has not seen yet. Field order follows first appearance.
func (d *Dataset) Append(other *Dataset) {
	for _, f := range other.Schema.Fields {
		if !d.Schema.Has(f.Name) {
			d.Schema.Fields = append(d.Schema.Fields, f)
		}
	}
	d.Records = append(d.Records, other.Records...)
}
