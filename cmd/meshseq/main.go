// meshseq converts a sequence of PLY frames into one animated scene archive.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/meshseq/internal/config"
	"github.com/Faultbox/meshseq/internal/logger"
	"github.com/Faultbox/meshseq/internal/pipeline"
	"github.com/Faultbox/meshseq/pkg/archive"
	"github.com/Faultbox/meshseq/pkg/mesh"
	"github.com/Faultbox/meshseq/pkg/ply"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "convert", "run":
		cmdConvert(args)
	case "combine":
		cmdCombine(args)
	case "info":
		cmdInfo(args)
	case "ply":
		cmdPLY(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`meshseq - PLY frame sequence to animated archive converter

Usage:
  meshseq <command> [options]

Commands:
  convert [flags]                      Convert <base>*.<ext> in the working directory
  combine [flags] <out.msa> <in.msa>.. Combine single-frame archives in the given order
  info <file.msa>                      Show archive contents
  ply <file.ply>                       Show a PLY header and its optional channels

Convert flags:
  -c, -color            Process vertex colors
  -t, -texture          Process texture coordinates
  -n, -np N             Simultaneous frame conversions (default 10)
  -w DIR                Working directory
  -b NAME               Input base file name
  -i ply|msa            Input extension (default ply)
  -o NAME               Output base file name
  -color-encoding TYPE  float32 (default) or uint8
  -skip-missing         Combine the remaining frames when some fail
  -keep-temp            Keep intermediate archives
  -config FILE          Config file (default ./meshseq.yaml)
  -save-config FILE     Write the effective config to FILE ("user" for the user config file)
  -debug, -log-file F   Logging

Examples:
  meshseq convert -b cells_changing_ -c -n 8
  meshseq convert -w /data/sim -b frame -i msa -o testuv
  meshseq combine out.msa TempABCFiles/TempFile_*.msa
  meshseq info _FINAL_from_ply_testuv.msa`)
}

func exitf(format string, args ...any) {
	logger.Sync()
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}

func initLogger(cfg *config.Config) {
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		exitf("Logger error: %v\n", err)
	}
}

func cmdConvert(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	flags := config.NewFlags(fs)
	fs.Parse(args)

	cfg, err := config.Load(flags)
	if err != nil {
		exitf("Config error: %v\n", err)
	}
	initLogger(cfg)
	defer logger.Sync()

	logger.Sugar.Debugf("Config: %+v", cfg)

	if path, err := cfg.SaveFlagged(flags); err != nil {
		exitf("Config error: %v\n", err)
	} else if path != "" {
		logger.Info("config saved", zap.String("path", path))
	}

	res, err := pipeline.Run(cfg)
	if err != nil {
		logger.Error("conversion failed", zap.Error(err))
		exitf("Error: %v\n", err)
	}

	fmt.Printf("Wrote %s (%d samples", res.Output, res.Combine.Samples)
	if len(res.Dropped) > 0 {
		fmt.Printf(", %d frames dropped", len(res.Dropped))
	}
	fmt.Println(")")
}

func cmdCombine(args []string) {
	fs := flag.NewFlagSet("combine", flag.ExitOnError)
	color := fs.Bool("c", false, "Combine vertex colors")
	texture := fs.Bool("t", false, "Combine texture coordinates")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	if fs.NArg() < 2 {
		exitf("Usage: meshseq combine [-c] [-t] <out.msa> <in.msa>...\n")
	}

	level := "info"
	if *debug {
		level = "debug"
	}
	if err := logger.Init(level, ""); err != nil {
		exitf("Logger error: %v\n", err)
	}
	defer logger.Sync()

	opts := pipeline.DefaultOptions()
	opts.IncludeColor = *color
	opts.IncludeUV = *texture

	res, err := pipeline.Combine(fs.Args()[1:], fs.Arg(0), opts)
	if err != nil {
		exitf("Error: %v\n", err)
	}
	fmt.Printf("Wrote %s (%d samples)\n", fs.Arg(0), res.Samples)
}

func cmdInfo(args []string) {
	if len(args) < 1 {
		exitf("Usage: meshseq info <file.msa>\n")
	}

	a, err := archive.Open(args[0])
	if err != nil {
		exitf("Error: %v\n", err)
	}
	defer a.Close()

	fmt.Printf("Archive: %s\n", args[0])
	fmt.Printf("ID:      %s\n", a.ID())
	fmt.Printf("Version: %d\n", a.Version())
	for _, k := range a.MetadataKeys() {
		fmt.Printf("  %s = %s\n", k, a.Metadata(k))
	}

	fmt.Println()
	fmt.Println("Time samplings:")
	for i := 0; i < a.NumTimeSamplings(); i++ {
		ts, _ := a.TimeSampling(i)
		fmt.Printf("  [%d] %.2f fps, %d per cycle, times %v\n", i, ts.FPS(), ts.SamplesPerCycle, ts.Times)
	}

	fmt.Println()
	fmt.Println("Objects:")
	printObject(a.Top(), 1)
}

func printObject(o *archive.Object, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s%s (%s, sampling %d, %d samples)\n", indent, o.Name(), o.Kind(), o.TimeSamplingIndex(), o.NumSamples())

	if o.Kind() == archive.KindPolyMesh {
		printMesh(o, indent+"  ")
	}
	for i := 0; i < o.NumChildren(); i++ {
		printObject(o.Child(i), depth+1)
	}
}

func printMesh(o *archive.Object, indent string) {
	m, err := o.PolyMesh()
	if err != nil {
		fmt.Printf("%s(unreadable: %v)\n", indent, err)
		return
	}

	for _, p := range o.Properties() {
		h := p.Header()
		fmt.Printf("%s%-24s %s x%d %-8s %d samples\n", indent, h.Name, h.POD, h.Extent, h.Scope, p.NumSamples())
	}

	if m.NumSamples() == 0 {
		return
	}
	for _, t := range []int{0, m.NumSamples() - 1} {
		s, err := m.Sample(t)
		if err != nil {
			fmt.Printf("%ssample %d: %v\n", indent, t, err)
			continue
		}
		snap := mesh.Snapshot{Positions: s.Positions}
		lo, hi := snap.Bounds()
		fmt.Printf("%ssample %d: %d vertices, %d faces, bounds %v - %v\n",
			indent, t, len(s.Positions), len(s.FaceCounts), lo, hi)
		if m.NumSamples() == 1 {
			break
		}
	}
}

func cmdPLY(args []string) {
	if len(args) < 1 {
		exitf("Usage: meshseq ply <file.ply>\n")
	}

	h, err := ply.Probe(args[0])
	if err != nil {
		exitf("Error: %v\n", err)
	}

	fmt.Printf("File:    %s\n", args[0])
	fmt.Printf("Format:  %s %s\n", h.Format, h.Version)
	for _, c := range h.Comments {
		fmt.Printf("Comment: %s\n", c)
	}

	fmt.Println()
	for _, el := range h.Elements {
		fmt.Printf("element %s %d\n", el.Name, el.Count)
		for _, p := range el.Properties {
			if p.IsList {
				fmt.Printf("  list %s %s %s\n", p.CountType, p.Type, p.Name)
			} else {
				fmt.Printf("  %s %s\n", p.Type, p.Name)
			}
		}
	}

	ch := h.Channels()
	fmt.Println()
	fmt.Printf("Colors:  %v\n", ch.Color)
	fmt.Printf("UVs:     %v\n", ch.UV)
}
