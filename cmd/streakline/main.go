package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFile = "streaklined.pid"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "config":
		err = cmdConfig(os.Stdout)
	case "migrate":
		err = cmdMigrate(os.Stdout)
	case "curriculum":
		err = cmdCurriculum(os.Stdout, os.Args[2:])
	case "rewards":
		err = cmdRewards(os.Stdout, os.Args[2:])
	case "summary":
		err = cmdSummary(os.Stdout, os.Args[2:])
	case "reconcile":
		err = cmdReconcile(os.Stdout, os.Args[2:])
	case "mcp":
		err = cmdMCP(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("streakline %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Streakline - progress, streaks and rewards for learning apps

Usage:
  streakline <command> [arguments]

Daemon Commands:
  start                      Start the Streakline daemon
  stop                       Stop the Streakline daemon
  status                     Show daemon status
  logs                       View daemon logs

Admin Commands:
  config                     Show the effective configuration
  migrate                    Apply database migrations
  curriculum validate <dir>  Validate curriculum module files
  rewards seed <file>        Create or update rewards from YAML
  rewards list               List reward definitions
  summary <user>             Show a user's progress and XP
  reconcile <user>           Check total points against the XP ledger

Integration Commands:
  mcp [--http <addr>]        Start the MCP server (stdio by default)

Other:
  help                       Show this help message
  version                    Show version information

Environment:
  STREAKLINE_CONFIG          Config file (default ~/.streakline/config.yaml)
  STREAKLINE_DATABASE_URL    Overrides storage.dsn
  STREAKLINE_CASCADE_MODE    sync or async`)
}
