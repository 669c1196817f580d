// control/bytesize.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"fmt"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// ByteSize is a byte count written in configuration as "64KiB", "1m" or a
// plain integer. Suffixes are binary.
type ByteSize int64

// ParseByteSize parses a human-readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalYAML accepts integers and size strings.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: byte size must be a number or string", value.Line)
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = parsed
	return nil
}

// MarshalYAML writes the human-readable form when it parses back to the
// same value, the plain integer otherwise.
func (b ByteSize) MarshalYAML() (any, error) {
	s := b.String()
	if back, err := ParseByteSize(s); err == nil && back == b {
		return s, nil
	}
	return int64(b), nil
}

func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

// Int returns the size as an int.
func (b ByteSize) Int() int { return int(b) }
