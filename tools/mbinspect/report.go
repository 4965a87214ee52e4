package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dancrossnyc/hypatia/kernel/boot"
	"github.com/dancrossnyc/hypatia/kernel/mm/region"
)

var typeColors = map[region.Type]*color.Color{
	region.RAM:         color.New(color.FgGreen),
	region.Reserved:    color.New(color.FgYellow),
	region.ACPI:        color.New(color.FgCyan),
	region.NonVolatile: color.New(color.FgBlue),
	region.Defective:   color.New(color.FgRed, color.Bold),
	region.Loader:      color.New(color.FgMagenta),
	region.Module:      color.New(color.FgMagenta, color.Bold),
}

func colorFor(typ region.Type) *color.Color {
	if c, ok := typeColors[typ]; ok {
		return c
	}
	return color.New(color.Reset)
}

func writeRegionTable(w io.Writer, title string, regions []region.Region) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintln(w, title)

	for _, r := range regions {
		fmt.Fprintf(w, "\t[0x%010x - 0x%010x) %10s  %s\n", r.Start, r.End, humanize.IBytes(uint64(r.Size())), colorFor(r.Type).Sprint(r.Type.String()))
	}

	fmt.Fprintf(w, "\tRAM: %s, reserved: %s\n",
		humanize.IBytes(uint64(region.Total(regions, region.RAM))),
		humanize.IBytes(uint64(region.Total(regions, region.Reserved))),
	)
}

func writeModuleTable(w io.Writer, info *boot.InitInfo) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Modules: %d\n", len(info.Modules))

	for i := range info.Modules {
		r := info.ModuleRegion(i)
		name, ok := info.Modules[i].Name()
		if !ok {
			name = "-"
		}
		fmt.Fprintf(w, "\t[0x%010x - 0x%010x) %10s  %s\n", r.Start, r.End, humanize.IBytes(uint64(r.Size())), name)
	}
}

type regionEntry struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Size  uint64 `yaml:"size"`
	Type  string `yaml:"type"`
}

type moduleEntry struct {
	Name  string `yaml:"name,omitempty"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Size  uint64 `yaml:"size"`
}

type regionsDoc struct {
	BootLoader string        `yaml:"boot_loader,omitempty"`
	MemoryMap  []regionEntry `yaml:"memory_map"`
	Normalized []regionEntry `yaml:"normalized"`
}

type modulesDoc struct {
	Modules []moduleEntry `yaml:"modules"`
}

func toRegionEntries(regions []region.Region) []regionEntry {
	entries := make([]regionEntry, 0, len(regions))
	for _, r := range regions {
		entries = append(entries, regionEntry{
			Start: fmt.Sprintf("%#x", r.Start),
			End:   fmt.Sprintf("%#x", r.End),
			Size:  uint64(r.Size()),
			Type:  r.Type.String(),
		})
	}
	return entries
}

func regionsDocument(info *boot.InitInfo) regionsDoc {
	return regionsDoc{
		BootLoader: info.BootLoaderName,
		MemoryMap:  toRegionEntries(info.MemoryRegions),
		Normalized: toRegionEntries(info.Regions),
	}
}

func modulesDocument(info *boot.InitInfo) modulesDoc {
	doc := modulesDoc{Modules: make([]moduleEntry, 0, len(info.Modules))}
	for i := range info.Modules {
		r := info.ModuleRegion(i)
		name, _ := info.Modules[i].Name()
		doc.Modules = append(doc.Modules, moduleEntry{
			Name:  name,
			Start: fmt.Sprintf("%#x", r.Start),
			End:   fmt.Sprintf("%#x", r.End),
			Size:  uint64(r.Size()),
		})
	}
	return doc
}

func writeYAML(w io.Writer, doc interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode yaml")
	}
	return errors.Wrap(enc.Close(), "encode yaml")
}
