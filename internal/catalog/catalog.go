// Package catalog loads the vehicle presets players can spawn.
//
// Example presets file:
//
//	vehicles:
//	  - name: Basic Car
//	    type: land
//	    design: basic_car
//	    scale: 1
//	    gravity: 1
//	    bbox: [-1, 0, -2, 1, 1.5, 2]
//	    speed: {forward: 1.2, backward: 0.6, left: 1, right: 1}
//	    seats:
//	      driver: [0, 0.8, 0.4]
//	      passengers:
//	        - [0, 0.8, -0.6]
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/OCAP2/vehicles/internal/vehicle"
)

var (
	ErrDuplicatePreset = errors.New("duplicate preset name")
	ErrInvalidPreset   = errors.New("invalid preset")
)

// File is the on-disk layout of the presets file.
type File struct {
	Vehicles []Preset `yaml:"vehicles"`
}

// Preset is a named template for new vehicles.
type Preset struct {
	Name    string    `yaml:"name"`
	Type    string    `yaml:"type"`
	Design  string    `yaml:"design"`
	Scale   float32   `yaml:"scale"`
	Gravity float64   `yaml:"gravity"`
	BBox    []float32 `yaml:"bbox"`
	Speed   SpeedSpec `yaml:"speed"`
	Seats   SeatsSpec `yaml:"seats"`
}

type SpeedSpec struct {
	Forward  float64 `yaml:"forward"`
	Backward float64 `yaml:"backward"`
	Left     float64 `yaml:"left"`
	Right    float64 `yaml:"right"`
}

type SeatsSpec struct {
	Driver     []float32   `yaml:"driver"`
	Passengers [][]float32 `yaml:"passengers"`
}

func defaultPreset() Preset {
	return Preset{
		Scale:   vehicle.DefaultScale,
		Gravity: 1,
		Speed:   SpeedSpec{Forward: 1, Backward: 1, Left: 1, Right: 1},
	}
}

// UnmarshalYAML starts each preset from the codec defaults, so a key missing
// from the file and a key set to 0 stay distinct.
func (p *Preset) UnmarshalYAML(unmarshal func(any) error) error {
	type plain Preset
	v := plain(defaultPreset())
	if err := unmarshal(&v); err != nil {
		return err
	}
	*p = Preset(v)
	return nil
}

func (p *Preset) normalize() {
	p.Name = strings.TrimSpace(p.Name)
}

func (p *Preset) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPreset)
	}
	if strings.TrimSpace(p.Design) == "" {
		return fmt.Errorf("%w '%s': missing design", ErrInvalidPreset, p.Name)
	}
	if len(p.BBox) != 6 {
		return fmt.Errorf("%w '%s': bbox needs 6 values, got %d", ErrInvalidPreset, p.Name, len(p.BBox))
	}
	if len(p.Seats.Driver) != 3 {
		return fmt.Errorf("%w '%s': driver seat needs 3 values, got %d", ErrInvalidPreset, p.Name, len(p.Seats.Driver))
	}
	for i, s := range p.Seats.Passengers {
		if len(s) != 3 {
			return fmt.Errorf("%w '%s': passenger seat %d needs 3 values, got %d", ErrInvalidPreset, p.Name, i, len(s))
		}
	}
	return nil
}

// NewRecord builds a fresh, unowned vehicle from the preset.
func (p *Preset) NewRecord() *vehicle.Record {
	r := &vehicle.Record{
		UUID:    uuid.New(),
		Version: vehicle.FormatVersion,
		Type:    vehicle.ParseType(p.Type),
		Name:    p.Name,
		Design:  p.Design,
		Gravity: p.Gravity,
		Scale:   p.Scale,
		Speed: vehicle.Speed{
			Forward:  p.Speed.Forward,
			Backward: p.Speed.Backward,
			Left:     p.Speed.Left,
			Right:    p.Speed.Right,
		},
	}
	copy(r.BBox[:], p.BBox)
	copy(r.DriverSeat[:], p.Seats.Driver)
	if len(p.Seats.Passengers) > 0 {
		r.PassengerSeats = make([]vehicle.Vec3, len(p.Seats.Passengers))
		for i, s := range p.Seats.Passengers {
			copy(r.PassengerSeats[i][:], s)
		}
	}
	return r
}

// Catalog is an immutable, ordered set of presets. Lookups ignore case.
type Catalog struct {
	order  []string
	byName map[string]*Preset
}

// New builds a catalog from presets, keeping their order. Fields are taken as
// given; defaults only apply to presets read from YAML.
func New(presets ...Preset) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*Preset, len(presets))}
	for i := range presets {
		p := presets[i]
		p.normalize()
		if err := p.validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(p.Name)
		if _, ok := c.byName[key]; ok {
			return nil, fmt.Errorf("%w: '%s'", ErrDuplicatePreset, p.Name)
		}
		c.byName[key] = &p
		c.order = append(c.order, p.Name)
	}
	return c, nil
}

// Load reads a presets file from disk.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: %q: %w", path, err)
	}
	return c, nil
}

// Read parses presets YAML from r.
func Read(r io.Reader) (*Catalog, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	return New(file.Vehicles...)
}

// Lookup finds a preset by name.
func (c *Catalog) Lookup(name string) (*Preset, bool) {
	p, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names lists preset names in file order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len is the number of presets.
func (c *Catalog) Len() int {
	return len(c.order)
}
