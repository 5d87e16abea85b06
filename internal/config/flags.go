package config

import "flag"

// Flags holds command-line overrides bound to a flag set.
type Flags struct {
	fs *flag.FlagSet

	ConfigPath    string
	Debug         bool
	LogFile       string
	Color         bool
	Texture       bool
	Workers       int
	WorkingDir    string
	BaseName      string
	Extension     string
	Output        string
	ColorEncoding string
	SkipMissing   bool
	KeepTemp      bool
	SaveConfig    string
}

// NewFlags registers the run flags on fs. Short and long spellings share
// one value.
func NewFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}

	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.LogFile, "log-file", "", "Also write logs to this file (rotated)")

	fs.BoolVar(&f.Color, "c", false, "Process vertex colors (shorthand)")
	fs.BoolVar(&f.Color, "color", false, "Process vertex colors")
	fs.BoolVar(&f.Texture, "t", false, "Process texture coordinates (shorthand)")
	fs.BoolVar(&f.Texture, "texture", false, "Process texture coordinates")
	fs.IntVar(&f.Workers, "n", 0, "Number of simultaneous frame conversions (shorthand)")
	fs.IntVar(&f.Workers, "np", 0, "Number of simultaneous frame conversions")
	fs.StringVar(&f.WorkingDir, "w", "", "Working directory (shorthand)")
	fs.StringVar(&f.WorkingDir, "workingdirectory", "", "Working directory other than the current one")
	fs.StringVar(&f.BaseName, "b", "", "Input base file name (shorthand)")
	fs.StringVar(&f.BaseName, "basefilename", "", "Input base file name, without index or extension")
	fs.StringVar(&f.Extension, "i", "", "Input extension, ply or msa (shorthand)")
	fs.StringVar(&f.Extension, "inputextension", "", "Input extension, ply or msa")
	fs.StringVar(&f.Output, "o", "", "Output base file name (shorthand)")
	fs.StringVar(&f.Output, "output", "", "Output base file name (defaults to the input base name)")
	fs.StringVar(&f.ColorEncoding, "color-encoding", "", "Color element type: float32 or uint8")
	fs.BoolVar(&f.SkipMissing, "skip-missing", false, "Combine the remaining frames when some fail to convert")
	fs.BoolVar(&f.KeepTemp, "keep-temp", false, "Keep intermediate archives after a successful run")
	fs.StringVar(&f.SaveConfig, "save-config", "", "Write the effective config to this file, or \""+UserConfig+"\" for the user config file")

	return f
}

// FlagSet returns the underlying flag set.
func (f *Flags) FlagSet() *flag.FlagSet {
	return f.fs
}

// applyFlags applies explicitly set flags to the config.
func (f *Flags) applyFlags(cfg *Config) {
	set := make(map[string]bool)
	f.fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	given := func(names ...string) bool {
		for _, n := range names {
			if set[n] {
				return true
			}
		}
		return false
	}

	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if given("log-file") {
		cfg.Logging.LogFile = f.LogFile
	}
	if given("c", "color") {
		cfg.Processing.Color = f.Color
	}
	if given("t", "texture") {
		cfg.Processing.Texture = f.Texture
	}
	if given("n", "np") {
		cfg.Processing.Workers = f.Workers
	}
	if given("w", "workingdirectory") {
		cfg.Input.Dir = f.WorkingDir
	}
	if given("b", "basefilename") {
		cfg.Input.BaseName = f.BaseName
	}
	if given("i", "inputextension") {
		cfg.Input.Extension = f.Extension
	}
	if given("o", "output") {
		cfg.Output.Name = f.Output
	}
	if given("color-encoding") {
		cfg.Processing.ColorEncoding = f.ColorEncoding
	}
	if given("skip-missing") {
		cfg.Frames.SkipMissing = f.SkipMissing
	}
	if given("keep-temp") {
		cfg.Frames.KeepTemp = f.KeepTemp
	}
}
