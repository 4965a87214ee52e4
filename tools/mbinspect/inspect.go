package main

import (
	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/dancrossnyc/hypatia/kernel"
	"github.com/dancrossnyc/hypatia/kernel/boot"
	"github.com/dancrossnyc/hypatia/kernel/kfmt"
)

// source holds the flags shared by every command that reads an image.
type source struct {
	configFile string
	flags      Config
}

func addSourceFlags(cmd *kingpin.CmdClause) *source {
	s := new(source)
	cmd.Flag("config", "YAML file describing the image layout.").StringVar(&s.configFile)
	cmd.Flag("image", "Raw physical memory image.").StringVar(&s.flags.Image)
	cmd.Flag("info-addr", "Physical address of the Multiboot-1 info block.").SetValue(&s.flags.InfoAddr)
	cmd.Flag("loader-start", "Physical start address of the kernel image.").SetValue(&s.flags.LoaderStart)
	cmd.Flag("loader-end", "Physical end address of the kernel image.").SetValue(&s.flags.LoaderEnd)
	cmd.Flag("base", "Physical address of the first byte of the image.").SetValue(&s.flags.Base)
	return s
}

func (s *source) config() (Config, error) {
	var (
		cfg Config
		err error
	)

	if s.configFile != "" {
		if cfg, err = loadConfig(s.configFile); err != nil {
			return cfg, err
		}
	}

	cfg.override(s.flags)
	return cfg, cfg.validate()
}

// load maps the image and runs boot memory discovery over it. The caller
// must close the returned image once it is done with the InitInfo.
func (s *source) load() (*memoryImage, *boot.InitInfo, error) {
	cfg, err := s.config()
	if err != nil {
		return nil, nil, err
	}

	img, err := openImage(cfg.Image, cfg.Base.value)
	if err != nil {
		return nil, nil, err
	}

	level.Debug(logger).Log("msg", "mapped memory image", "path", cfg.Image, "size", humanize.IBytes(img.Size()), "base", cfg.Base.String())

	info, err := discover(img, cfg)
	if err != nil {
		_ = img.Close()
		return nil, nil, err
	}

	level.Info(logger).Log("msg", "boot information decoded", "regions", len(info.Regions), "modules", len(info.Modules))
	return img, info, nil
}

func discover(img *memoryImage, cfg Config) (*boot.InitInfo, error) {
	kfmt.Printf("[boot] mbinfo: 0x%8x\n", cfg.InfoAddr.value)

	mb, kerr := boot.New(img, cfg.InfoAddr.value)
	if kerr != nil {
		return nil, wrapKernelError(kerr, "decode info block at %s", cfg.InfoAddr.String())
	}

	info, kerr := mb.Info(boot.LoaderRegion(cfg.LoaderStart.value, cfg.LoaderEnd.value))
	if kerr != nil {
		return nil, wrapKernelError(kerr, "build memory layout")
	}

	return info, nil
}

// kernelError reports a kernel error together with the component that
// raised it.
type kernelError struct {
	err *kernel.Error
}

func (e kernelError) Error() string { return e.err.String() }
func (e kernelError) Unwrap() error { return e.err }

// wrapKernelError converts a kernel error into an error without turning a
// nil pointer into a non-nil interface.
func wrapKernelError(err *kernel.Error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(kernelError{err}, format, args...)
}

// withInitInfo loads the image, calls fn and releases the mapping.
func (s *source) withInitInfo(fn func(*boot.InitInfo) error) error {
	img, info, err := s.load()
	if err != nil {
		return err
	}

	if err = fn(info); err != nil {
		_ = img.Close()
		return err
	}

	return img.Close()
}
