package exports

import "fmt"

// linearProbe exposes u = a + b*x on [0, 1] split in two volumes.
type linearProbe struct {
	t    float64
	a, b float64
}

func (p *linearProbe) Time() float64 { return p.t }

func (p *linearProbe) Profile(field string) (Profile, error) {
	if field != "solute" {
		return Profile{}, fmt.Errorf("unknown field %s", field)
	}
	prof := Profile{Field: field}
	for i := 0; i < 4; i++ {
		x0, x1 := float64(i)/4, float64(i+1)/4
		vol := 1
		if i >= 2 {
			vol = 2
		}
		prof.Segments = append(prof.Segments, Segment{
			Volume: vol,
			X:      [2]float64{x0, x1},
			V:      [2]float64{p.a + p.b*x0, p.a + p.b*x1},
		})
	}
	return prof, nil
}

func (p *linearProbe) SurfaceValue(field string, surface int) (float64, error) {
	if surface == 1 {
		return p.a, nil
	}
	return p.a + p.b, nil
}

func (p *linearProbe) SurfaceFlux(field string, surface int) (float64, error) {
	if surface == 1 {
		return p.b, nil
	}
	return -p.b, nil
}
