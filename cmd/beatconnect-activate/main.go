// Command beatconnect-activate exercises the activation engine from the
// command line: activate a code, release a seat, re-validate the cached
// activation, or inspect local state. Configuration comes from the
// environment (BEATCONNECT_* variables, optionally via a .env file) or
// from a plugin project descriptor.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/beatconnect/sdk-go/activation"
	"github.com/beatconnect/sdk-go/machineid"
)

const usage = `usage: beatconnect-activate [flags] <command> [args]

commands:
  activate <code>   bind the activation code to this machine
  deactivate        release this machine's activation seat
  validate          re-confirm the cached activation with the server
  status            print the cached activation state
  machine-id        print this machine's fingerprint

flags:
`

func main() {
	envFile := flag.String("env", "", "path to a .env file to load before reading configuration")
	projectData := flag.String("project-data", "", "path to a plugin project descriptor (project_data.json) used instead of the environment")
	debug := flag.Bool("debug", false, "enable the per-plugin debug log file")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	// machine-id needs no configuration at all.
	if command == "machine-id" {
		fmt.Println(machineid.Generate())
		return
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			slog.Error("failed to load env file",
				slog.String("path", *envFile),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	cfg, err := loadConfig(*projectData)
	if err != nil {
		slog.Error("configuration error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *debug {
		cfg.Debug = true
	}
	// A CLI run is one-shot; background validation only delays exit.
	cfg.ValidateOnStartup = false
	cfg.RevalidateInterval = 0

	engine, err := activation.New(cfg)
	if err != nil {
		slog.Error("failed to create engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	switch command {
	case "activate":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "activate requires an activation code")
			os.Exit(2)
		}
		report(engine.Activate(ctx, flag.Arg(1)), engine)
	case "deactivate":
		report(engine.Deactivate(ctx), engine)
	case "validate":
		report(engine.Validate(ctx), engine)
	case "status":
		printStatus(engine)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		flag.Usage()
		os.Exit(2)
	}
}

func loadConfig(projectData string) (activation.Config, error) {
	if projectData != "" {
		return activation.ConfigFromProjectData(projectData)
	}
	return activation.ConfigFromEnv()
}

func report(status activation.Status, engine *activation.Engine) {
	fmt.Println(status)
	if path := engine.DebugLogPath(); path != "" {
		fmt.Fprintf(os.Stderr, "debug log: %s\n", path)
	}
	if status != activation.StatusValid && status != activation.StatusAlreadyActive {
		os.Exit(1)
	}
}

func printStatus(engine *activation.Engine) {
	info, ok := engine.ActivationInfo()
	if !ok {
		fmt.Println("not activated")
		fmt.Printf("machine id:  %s\n", engine.MachineID())
		fmt.Printf("state path:  %s\n", engine.StatePath())
		return
	}

	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		slog.Error("failed to render activation info", slog.String("error", err.Error()))
		os.Exit(1)
	}
	fmt.Println(string(out))
	fmt.Printf("activated:   %v\n", engine.IsActivated())
	fmt.Printf("machine id:  %s\n", engine.MachineID())
	fmt.Printf("state path:  %s\n", engine.StatePath())
}
