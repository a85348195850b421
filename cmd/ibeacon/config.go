package main

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nearfield/beacon"
)

// Config is the YAML form of a beacon descriptor.
type Config struct {
	UUID          string `yaml:"uuid"`
	Major         uint16 `yaml:"major"`
	Minor         uint16 `yaml:"minor"`
	MeasuredPower *int8  `yaml:"measured_power"`
}

// LoadConfig reads a descriptor from a YAML file. The measured power is
// optional and defaults like the library does.
func LoadConfig(path string) (beacon.Descriptor, error) {
	in, err := ioutil.ReadFile(path)
	if err != nil {
		return beacon.Descriptor{}, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(in, &cfg); err != nil {
		return beacon.Descriptor{}, errors.Wrap(err, "parse config")
	}

	u, err := beacon.Parse(cfg.UUID)
	if err != nil {
		return beacon.Descriptor{}, errors.Wrap(err, "uuid")
	}

	var opts []beacon.DescriptorOption
	if cfg.MeasuredPower != nil {
		opts = append(opts, beacon.WithMeasuredPower(*cfg.MeasuredPower))
	}
	return beacon.NewDescriptor(u, cfg.Major, cfg.Minor, opts...), nil
}
