package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/sgdma"
	"github.com/slackhq/sgdma/config"
	"github.com/slackhq/sgdma/util"
)

// A version string that can be set with
//
//	-ldflags "-X main.Build=SOMEVERSION"
//
// at compile-time.
var Build string

func init() {
	if Build == "" {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		Build = strings.TrimPrefix(info.Main.Version, "v")
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to either a file or directory to load configuration from, defaults are used when empty")
	configTest := flag.Bool("test", false, "Test the config and print the end result. Non zero exit indicates a faulty config")
	printVersion := flag.Bool("version", false, "Print version")
	printUsage := flag.Bool("help", false, "Print command line usage")

	flag.Parse()

	if *printVersion {
		fmt.Printf("Version: %s\n", Build)
		return 0
	}

	if *printUsage {
		flag.Usage()
		return 0
	}

	l := logrus.New()
	l.Out = os.Stdout

	c := config.NewC(l)
	if *configPath != "" {
		if err := c.Load(*configPath); err != nil {
			fmt.Printf("failed to load config: %s\n", err)
			return 1
		}
	}

	ctrl, err := sgdma.Main(c, *configTest, Build, l)
	if err != nil {
		util.LogWithContextIfNeeded("Failed to start", err, l)
		return 1
	}
	defer ctrl.Close()

	if *configTest {
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.CatchHUP(ctx)

	if err := ctrl.Start(ctx); err != nil {
		util.LogWithContextIfNeeded("Failed to run tests", err, l)
		return 1
	}
	return 0
}
