package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/rfdlink/cmd/rfdlink/decode"
	"github.com/temoto/rfdlink/cmd/rfdlink/oneshot"
	"github.com/temoto/rfdlink/cmd/rfdlink/run"
	"github.com/temoto/rfdlink/cmd/rfdlink/subcmd"
	"github.com/temoto/rfdlink/log2"
	"github.com/temoto/rfdlink/state"
)

var modules = []subcmd.Mod{
	run.Mod,
	oneshot.Mod,
	decode.Mod,
}

func main() {
	flagConfig := flag.String("config", "", "HCL config file, optional")
	flagDevice := flag.String("device", "", "connection: /dev/ttyUSB0[,BAUD] udpin:HOST:PORT udpout:HOST:PORT tcp:HOST:PORT tcpin:HOST:PORT")
	flagBaud := flag.Int("baud", 0, "serial baud rate (default 57600)")
	flagHz := flag.Float64("hz", 0, "RFD_TEST send rate (default 10)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [%s]\n", os.Args[0], strings.Join(subcmd.Names(modules), "|"))
		flag.PrintDefaults()
	}
	flag.Parse()

	log := log2.NewConsole(log2.LInfo)
	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	}

	command := flag.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		flag.Usage()
		log.Fatal(err)
	}

	config := state.NewConfig()
	if *flagConfig != "" {
		config, err = state.ReadConfig(log, state.NewOsFullReader(""), *flagConfig)
		if err != nil {
			log.Fatal(errors.ErrorStack(err))
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			config.Link.Device = *flagDevice
		case "baud":
			config.Link.Baud = *flagBaud
		case "hz":
			config.Link.Hz = flagHz
		}
	})
	if err = config.Validate(); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	log.SetLevel(config.LogLevel())
	if config.Log.File != "" {
		log = log2.NewFile(os.Stderr, log2.FileOptions{
			Path:       config.Log.File,
			MaxSizeMB:  config.Log.MaxSizeMB,
			MaxBackups: config.Log.MaxBackups,
			MaxAgeDays: config.Log.MaxAgeDays,
		}, config.LogLevel())
	}
	log.Debugf("config=%+v", config)

	a := alive.NewAlive()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigch:
			log.Infof("signal=%v, stopping", sig)
			a.Stop()
		case <-a.StopChan():
		}
		cancel()
	}()

	env := &subcmd.Env{Config: config, Log: log, Alive: a}
	err = mod.Main(ctx, env)
	a.Stop()
	a.Wait()
	if err != nil && errors.Cause(err) != context.Canceled {
		log.Fatal(errors.ErrorStack(err))
	}
}
