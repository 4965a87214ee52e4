package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// address is a physical address that accepts any Go integer literal
// ("0x100000", "1048576", "0o4000000") from flags and YAML alike.
type address struct {
	value uint64
	set   bool
}

// Set implements kingpin.Value.
func (a *address) Set(s string) error {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid address %q", s)
	}

	a.value, a.set = v, true
	return nil
}

func (a *address) String() string {
	return fmt.Sprintf("%#x", a.value)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *address) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: expected an address", node.Line)
	}
	return a.Set(node.Value)
}

// Config describes where the boot information lives inside a memory image.
type Config struct {
	// Image is the path of the raw physical memory image.
	Image string `yaml:"image"`

	// InfoAddr is the physical address of the Multiboot-1 info block.
	InfoAddr address `yaml:"info_addr"`

	// LoaderStart and LoaderEnd delimit the kernel image.
	LoaderStart address `yaml:"loader_start"`
	LoaderEnd   address `yaml:"loader_end"`

	// Base is the physical address of the first byte of the image.
	Base address `yaml:"base"`
}

// loadConfig reads a YAML layout file. Relative image paths are resolved
// against the directory that holds the file.
func loadConfig(path string) (Config, error) {
	var cfg Config

	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err = dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	if cfg.Image != "" && !filepath.IsAbs(cfg.Image) {
		cfg.Image = filepath.Join(filepath.Dir(path), cfg.Image)
	}

	return cfg, nil
}

// override replaces the values of cfg with the ones explicitly set in
// flags.
func (cfg *Config) override(flags Config) {
	if flags.Image != "" {
		cfg.Image = flags.Image
	}

	for _, field := range []struct{ dst, src *address }{
		{&cfg.InfoAddr, &flags.InfoAddr},
		{&cfg.LoaderStart, &flags.LoaderStart},
		{&cfg.LoaderEnd, &flags.LoaderEnd},
		{&cfg.Base, &flags.Base},
	} {
		if field.src.set {
			*field.dst = *field.src
		}
	}
}

func (cfg *Config) validate() error {
	switch {
	case cfg.Image == "":
		return errors.New("no memory image specified")
	case !cfg.InfoAddr.set:
		return errors.New("no info block address specified")
	case cfg.LoaderEnd.value < cfg.LoaderStart.value:
		return errors.Errorf("loader end %s is below loader start %s", cfg.LoaderEnd.String(), cfg.LoaderStart.String())
	}
	return nil
}
