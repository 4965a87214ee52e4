// Command mbinspect runs the kernel's boot memory discovery over a raw
// physical memory image (as produced by qemu's pmemsave) and prints the
// firmware memory map, the loaded modules and the normalized memory layout.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"

	"github.com/dancrossnyc/hypatia/kernel/kfmt"
)

var logger = log.NewNopLogger()

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mbinspect] error: %s\n", err.Error())
	os.Exit(1)
}

// newApp builds the command line application. Command output is written
// to out.
func newApp(out io.Writer) *kingpin.Application {
	var (
		logLevel     string
		kernelOutput bool
	)

	app := kingpin.New("mbinspect", "Inspect the Multiboot-1 boot information held in a physical memory image.")
	app.HelpFlag.Short('h')
	app.Flag("log.level", "Only log messages with the given severity or above.").Default("info").EnumVar(&logLevel, "debug", "info", "warn", "error")
	app.Flag("kernel-output", "Echo kernel diagnostics to stderr.").BoolVar(&kernelOutput)

	app.PreAction(func(_ *kingpin.ParseContext) error {
		logger = newLogger(os.Stderr, logLevel)
		if kernelOutput {
			kfmt.SetOutputSink(os.Stderr)
		}
		return nil
	})

	addRegionsCommand(app, out)
	addModulesCommand(app, out)
	addReportCommand(app, out)

	return app
}

func main() {
	if _, err := newApp(os.Stdout).Parse(os.Args[1:]); err != nil {
		exit(err)
	}
}
