package registry

import (
	"regexp"
	"slices"

	"github.com/pkg/errors"

	"github.com/sahithikokkula/streamsketch/pkg/sketches"
)

// Spec declares a stream: its name, sketch kind and construction parameters.
type Spec struct {
	Name   string              `json:"name" yaml:"name"`
	Kind   sketches.SketchType `json:"kind" yaml:"kind"`
	Params Params              `json:"params" yaml:"params"`
}

// Params are the construction parameters of every kind. Zero fields take the
// kind's default; fields a kind does not use are ignored.
type Params struct {
	Seed       float64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Alpha      float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`             // morris, median_of_means_morris
	Bytes      int     `json:"bytes,omitempty" yaml:"bytes,omitempty"`             // bloom, bloom_group, fm
	Hashes     int     `json:"hashes,omitempty" yaml:"hashes,omitempty"`           // bloom, bloom_group
	Members    int     `json:"members,omitempty" yaml:"members,omitempty"`         // bloom_group, median_of_means_morris
	Groups     int     `json:"groups,omitempty" yaml:"groups,omitempty"`           // median_of_means_morris
	Precision  uint8   `json:"precision,omitempty" yaml:"precision,omitempty"`     // hll
	K          int     `json:"k,omitempty" yaml:"k,omitempty"`                     // misra_gries
	Buckets    int     `json:"buckets,omitempty" yaml:"buckets,omitempty"`         // count_min
	Rows       int     `json:"rows,omitempty" yaml:"rows,omitempty"`               // count_min
	ExpSize    int     `json:"exp_size,omitempty" yaml:"exp_size,omitempty"`       // quantile
	SampleSize int     `json:"sample_size,omitempty" yaml:"sample_size,omitempty"` // quantile
	Stages     int     `json:"stages,omitempty" yaml:"stages,omitempty"`           // kll
	Capacity   int     `json:"capacity,omitempty" yaml:"capacity,omitempty"`       // kll
}

// withDefaults fills every zero field of p from d.
func (p Params) withDefaults(d Params) Params {
	if p.Seed == 0 {
		p.Seed = d.Seed
	}
	if p.Alpha == 0 {
		p.Alpha = d.Alpha
	}
	if p.Bytes == 0 {
		p.Bytes = d.Bytes
	}
	if p.Hashes == 0 {
		p.Hashes = d.Hashes
	}
	if p.Members == 0 {
		p.Members = d.Members
	}
	if p.Groups == 0 {
		p.Groups = d.Groups
	}
	if p.Precision == 0 {
		p.Precision = d.Precision
	}
	if p.K == 0 {
		p.K = d.K
	}
	if p.Buckets == 0 {
		p.Buckets = d.Buckets
	}
	if p.Rows == 0 {
		p.Rows = d.Rows
	}
	if p.ExpSize == 0 {
		p.ExpSize = d.ExpSize
	}
	if p.SampleSize == 0 {
		p.SampleSize = d.SampleSize
	}
	if p.Stages == 0 {
		p.Stages = d.Stages
	}
	if p.Capacity == 0 {
		p.Capacity = d.Capacity
	}
	return p
}

var streamName = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// Validate checks the name and kind of s. Parameter ranges are checked by the
// sketch constructors.
func (s Spec) Validate() error {
	if !streamName.MatchString(s.Name) {
		return errors.Wrapf(ErrBadValue, "invalid stream name %q", s.Name)
	}
	if _, ok := kinds[s.Kind]; !ok {
		return errors.Wrapf(ErrBadValue, "unknown kind %q", s.Kind)
	}
	return nil
}

// Kinds returns the supported sketch kinds in name order.
func Kinds() []sketches.SketchType {
	out := make([]sketches.SketchType, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Defaults returns the default parameters of kind.
func Defaults(kind sketches.SketchType) (Params, bool) {
	k, ok := kinds[kind]
	return k.defaults, ok
}
