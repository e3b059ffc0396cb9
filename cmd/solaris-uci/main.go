package main

import (
	"flag"
	"log"
	"os"
	"runtime/pprof"

	"github.com/rs/zerolog"

	"github.com/okkaok/solaris/internal/engine"
	"github.com/okkaok/solaris/internal/uci"
)

const defaultHashMB = 128

var (
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
	hashMB     = flag.Int("hash", defaultHashMB, "transposition table size in MB")
	verbose    = flag.Bool("v", false, "enable debug-level logging to stderr")
)

func main() {
	flag.Parse()

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	eng := engine.NewEngine(*hashMB, logger)

	protocol := uci.New(eng)
	protocol.Run()
}
