package main

import (
	"io"

	"github.com/alecthomas/kingpin/v2"

	"github.com/dancrossnyc/hypatia/kernel/boot"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
)

func addFormatFlag(cmd *kingpin.CmdClause) *string {
	format := new(string)
	cmd.Flag("format", "Output format.").Default(formatTable).EnumVar(format, formatTable, formatYAML)
	return format
}

// addRegionsCommand adds the regions command, which prints the firmware
// memory map and the normalized layout.
func addRegionsCommand(app *kingpin.Application, out io.Writer) {
	cmd := app.Command("regions", "Print the firmware memory map and the normalized memory layout.")
	src := addSourceFlags(cmd)
	format := addFormatFlag(cmd)

	cmd.Action(func(_ *kingpin.ParseContext) error {
		return src.withInitInfo(func(info *boot.InitInfo) error {
			if *format == formatYAML {
				return writeYAML(out, regionsDocument(info))
			}
			writeRegionTable(out, "Firmware memory map:", info.MemoryRegions)
			writeRegionTable(out, "Normalized memory map:", info.Regions)
			return nil
		})
	})
}

// addModulesCommand adds the modules command, which lists the modules
// loaded next to the kernel.
func addModulesCommand(app *kingpin.Application, out io.Writer) {
	cmd := app.Command("modules", "List the modules loaded by the boot loader.")
	src := addSourceFlags(cmd)
	format := addFormatFlag(cmd)

	cmd.Action(func(_ *kingpin.ParseContext) error {
		return src.withInitInfo(func(info *boot.InitInfo) error {
			if *format == formatYAML {
				return writeYAML(out, modulesDocument(info))
			}
			writeModuleTable(out, info)
			return nil
		})
	})
}

// addReportCommand adds the report command, which prints the memory layout
// exactly as the kernel reports it at boot.
func addReportCommand(app *kingpin.Application, out io.Writer) {
	cmd := app.Command("report", "Print the memory layout the way the kernel reports it at boot.")
	src := addSourceFlags(cmd)

	cmd.Action(func(_ *kingpin.ParseContext) error {
		return src.withInitInfo(func(info *boot.InitInfo) error {
			boot.PrintInitInfo(out, info)
			return nil
		})
	})
}
