package exports

// Table is an append-only log of rows (t, values...).
type Table struct {
	Header []string
	Rows   [][]float64
}

// Column returns the series of a header entry.
func (t *Table) Column(title string) ([]float64, bool) {
	for i, h := range t.Header {
		if h != title {
			continue
		}
		out := make([]float64, len(t.Rows))
		for r, row := range t.Rows {
			out[r] = row[i]
		}
		return out, true
	}
	return nil, false
}

// Last returns the most recent row.
func (t *Table) Last() []float64 {
	if len(t.Rows) == 0 {
		return nil
	}
	return t.Rows[len(t.Rows)-1]
}

// DerivedQuantities computes a set of quantities at due steps.
type DerivedQuantities struct {
	name       string
	cadence    Cadence
	quantities []Quantity
	table      *Table
}

func NewDerivedQuantities(name string, cadence Cadence, quantities ...Quantity) *DerivedQuantities {
	header := []string{"t(s)"}
	for _, q := range quantities {
		header = append(header, q.Title())
	}
	return &DerivedQuantities{
		name:       name,
		cadence:    cadence,
		quantities: quantities,
		table:      &Table{Header: header},
	}
}

func (d *DerivedQuantities) Name() string { return d.name }

func (d *DerivedQuantities) Cadence() Cadence { return d.cadence }

func (d *DerivedQuantities) Table() *Table { return d.table }

func (d *DerivedQuantities) Record(p Probe, w Writer, _ int) error {
	values := make([]float64, len(d.quantities))
	for i, q := range d.quantities {
		v, err := q.Compute(p)
		if err != nil {
			return err
		}
		values[i] = v
	}
	d.table.Rows = append(d.table.Rows, append([]float64{p.Time()}, values...))
	return w.AppendRow(d.name, d.table.Header[1:], p.Time(), values)
}

// FieldSnapshot writes a field profile at due steps.
type FieldSnapshot struct {
	label   string
	field   string
	cadence Cadence
	count   int
}

func NewFieldSnapshot(label, field string, cadence Cadence) *FieldSnapshot {
	return &FieldSnapshot{label: label, field: field, cadence: cadence}
}

func (f *FieldSnapshot) Name() string { return f.label }

func (f *FieldSnapshot) Cadence() Cadence { return f.cadence }

// Count is the number of snapshots written.
func (f *FieldSnapshot) Count() int { return f.count }

func (f *FieldSnapshot) Record(p Probe, w Writer, _ int) error {
	prof, err := p.Profile(f.field)
	if err != nil {
		return err
	}
	f.count++
	return w.WriteSnapshot(f.label, f.field, p.Time(), prof)
}
