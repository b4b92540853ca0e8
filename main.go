package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ringcam/ringcam/config"
	"github.com/ringcam/ringcam/logging"
	"github.com/ringcam/ringcam/orchestrator"
)

const version = "0.1.0"

func main() {
	envFile := "config.env"
	for _, arg := range os.Args[1:] {
		switch arg {
		case "-version":
			fmt.Println("ringcam " + version)
			return
		default:
			envFile = arg
		}
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ringcam: "+err.Error())
		os.Exit(1)
	}

	if err := cfg.AutoDetectFFmpeg(); err != nil {
		fmt.Fprintln(os.Stderr, "ringcam: "+err.Error())
		os.Exit(1)
	}

	var log zerolog.Logger
	if cfg.LogFile != "" {
		var logFile *logging.RotatingFile
		log, logFile, err = logging.NewWithFile(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ringcam: "+err.Error())
			os.Exit(1)
		}
		defer logFile.Close()
	} else {
		log = logging.New(cfg.LogLevel, cfg.LogFormat)
	}

	sys := orchestrator.New(cfg, log)
	if err := sys.Run(context.Background()); err != nil {
		logging.Error(log, "system_run", err, nil)
		os.Exit(1)
	}
}
