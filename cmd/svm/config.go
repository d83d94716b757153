package main

import (
	"flag"
	"fmt"
	"os"
)

// Config defines program configuration.
type Config struct {
	ROM         string // Path to the ROM image to load.
	Disk        string // Optional path to a backing file for devices/file.
	ScaleFactor int    // Amount by which each pixel is scaled.
	Fullscreen  bool   // Run in fullscreen?
	Debug       bool   // Enable debug mode: single-step, breakpoints honored.
	PrintTrace  bool   // Print instruction trace data?
	Readonly    bool   // Is the disk image write protected?
}

// parseArgs parses command line arguments.
//
// If an error occurred, this exits the program with an appropriate
// message. When version information is requested, it is printed to
// stdout and the program ends cleanly.
func parseArgs() *Config {
	var c Config
	c.ScaleFactor = 2

	flag.Usage = func() {
		fmt.Printf("%s [options] <rom file>\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.BoolVar(&c.Debug, "debug", c.Debug, "Run in debug mode with single-step tracing.")
	flag.StringVar(&c.Disk, "disk", c.Disk, "Path to a backing file for the file device.")
	flag.BoolVar(&c.Readonly, "readonly", c.Readonly, "Is the disk image write protected?")
	flag.IntVar(&c.ScaleFactor, "scale", c.ScaleFactor, "Pixel scale factor for the display.")
	flag.BoolVar(&c.Fullscreen, "fullscreen", c.Fullscreen, "Run the display in fullscreen or windowed mode.")

	version := flag.Bool("version", false, "Display version information.")
	flag.Parse()

	if *version {
		fmt.Println(Version())
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	c.ROM = flag.Arg(0)
	c.PrintTrace = c.Debug
	return &c
}
