package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// buildRoot creates the root command with all subcommands attached
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	meteodCommand := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(meteodCommand),
		createPauseCommand(meteodCommand),
		createResumeCommand(meteodCommand),
		createCollectCommand(meteodCommand),
		createSettingsCommand(meteodCommand),
		createLocationsCommand(meteodCommand),
		createLiveCommand(meteodCommand),
		createHistoryCommand(meteodCommand),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "meteod",
		Short: "Weather measurement collection daemon",
		Long: `Meteod periodically collects weather measurements for a set of
locations and serves them over a small control API.

Examples:
  meteod serve --config=config.toml           # Start daemon
  meteod status                               # Scheduler status
  meteod locations add --name=Lisbon          # Add a location (geocoded)
  meteod live                                 # Current weather for all locations
  meteod status --api-url=http://remote:8085  # Remote status`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

// addAPIFlags attaches the daemon connection flags shared by all remote
// commands.
func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://localhost:8085)")
	cmd.Flags().StringVar(&flags.APIToken, "api-token", "", "bearer token for mutating endpoints")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

// createStatusCommand creates the status subcommand
func createStatusCommand(meteodCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show scheduler status",
		Long: `Show the collection scheduler state and the next scheduled run.

Examples:
  meteod status
  meteod status --api-url=http://remote:8085`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return meteodCommand.Status(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

// createPauseCommand creates the pause subcommand
func createPauseCommand(meteodCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause scheduled collection",
		Long: `Stop future scheduled collection passes. Reads keep working
and a paused scheduler can be resumed at any time.

Examples:
  meteod pause`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return meteodCommand.Pause(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

// createResumeCommand creates the resume subcommand
func createResumeCommand(meteodCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume scheduled collection",
		Long: `Schedule collection anew, a full period from now. Ticks missed
while paused are not replayed.

Examples:
  meteod resume`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return meteodCommand.Resume(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

// createCollectCommand creates the collect subcommand
func createCollectCommand(meteodCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Trigger a collection pass now",
		Long: `Trigger one collection pass immediately. The trigger is skipped
when a pass is already in flight.

Examples:
  meteod collect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return meteodCommand.Collect(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

// createSettingsCommand creates the settings command with subcommands
func createSettingsCommand(meteodCommand command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or change runtime settings",
		Long: `Read or change the daemon's runtime settings row. Changes apply
immediately, without a restart.

Examples:
  meteod settings get
  meteod settings set --interval-minutes=15
  meteod settings set --freshness-minutes=10 --refresh-seconds=30`,
	}
	cmd.AddCommand(
		createSettingsGetCommand(meteodCommand),
		createSettingsSetCommand(meteodCommand),
	)
	return cmd
}

func createSettingsGetCommand(meteodCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the settings row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return meteodCommand.SettingsGet(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createSettingsSetCommand(meteodCommand command) *cobra.Command {
	flags := &SettingsSetFlags{}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings fields",
		Long: `Change one or more settings fields. Fields not given keep their
stored values; a changed interval reschedules collection from now.

Examples:
  meteod settings set --interval-minutes=15
  meteod settings set --freshness-minutes=0   # Always fetch on read`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.IntervalChanged = cmd.Flag("interval-minutes").Changed
			flags.RefreshChanged = cmd.Flag("refresh-seconds").Changed
			flags.FreshnessChanged = cmd.Flag("freshness-minutes").Changed
			return meteodCommand.SettingsSet(*flags)
		},
	}
	cmd.Flags().IntVar(&flags.IntervalMinutes, "interval-minutes", 0, "collection interval in minutes")
	cmd.Flags().IntVar(&flags.RefreshSeconds, "refresh-seconds", 0, "suggested UI refresh period in seconds")
	cmd.Flags().IntVar(&flags.FreshnessMinutes, "freshness-minutes", 0, "freshness window for cached reads in minutes")
	addAPIFlags(cmd, &flags.API)
	return cmd
}

// createLocationsCommand creates the locations command with subcommands
func createLocationsCommand(meteodCommand command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Manage collected locations",
		Long: `Manage the set of locations measurements are collected for.
A location added by name is forward-geocoded; one added by coordinates
is reverse-geocoded to a name.

Examples:
  meteod locations list
  meteod locations add --name=Lisbon
  meteod locations add --lat=41.15 --lon=-8.61
  meteod locations rm --id=3`,
	}
	cmd.AddCommand(
		createLocationsListCommand(meteodCommand),
		createLocationsAddCommand(meteodCommand),
		createLocationsRemoveCommand(meteodCommand),
	)
	return cmd
}

func createLocationsListCommand(meteodCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return meteodCommand.LocationsList(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createLocationsAddCommand(meteodCommand command) *cobra.Command {
	flags := &LocationAddFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a location",
		Long: `Add a location by name, by coordinates, or both. The daemon
geocodes whichever half is missing.

Examples:
  meteod locations add --name=Lisbon
  meteod locations add --name=Lisbon --lat=38.72 --lon=-9.14
  meteod locations add --lat=41.15 --lon=-8.61`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.LatChanged = cmd.Flag("lat").Changed
			flags.LonChanged = cmd.Flag("lon").Changed
			return meteodCommand.LocationAdd(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "location name")
	cmd.Flags().Float64Var(&flags.Lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&flags.Lon, "lon", 0, "longitude")
	addAPIFlags(cmd, &flags.API)
	return cmd
}

func createLocationsRemoveCommand(meteodCommand command) *cobra.Command {
	flags := &LocationRemoveFlags{}
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove a location",
		Long: `Remove a location by id. Its stored measurements are kept.

Examples:
  meteod locations rm --id=3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return meteodCommand.LocationRemove(*flags)
		},
	}
	cmd.Flags().Int64Var(&flags.ID, "id", 0, "location id (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

// createLiveCommand creates the live subcommand
func createLiveCommand(meteodCommand command) *cobra.Command {
	flags := &LiveFlags{}
	cmd := &cobra.Command{
		Use:   "live [name]",
		Short: "Show current weather",
		Long: `Show the current weather for all locations, or one location
when a name is given. Measurements inside the freshness window are
served from the cache; older ones trigger a fetch.

Examples:
  meteod live
  meteod live Lisbon`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				flags.Name = args[0]
			}
			return meteodCommand.Live(*flags)
		},
	}
	addAPIFlags(cmd, &flags.API)
	return cmd
}

// createHistoryCommand creates the history subcommand
func createHistoryCommand(meteodCommand command) *cobra.Command {
	flags := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored measurements",
		Long: `Show stored measurement rows for the last N hours, or, with
--metric, the per-location MIN/MAX of that metric.

Examples:
  meteod history --location=Lisbon
  meteod history --location=Lisbon --hours=72
  meteod history --metric=temperature`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return meteodCommand.History(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Location, "location", "", "location name (all locations when empty)")
	cmd.Flags().IntVar(&flags.Hours, "hours", 0, "look-back window in hours (default 24)")
	cmd.Flags().StringVar(&flags.Metric, "metric", "", "metric for MIN/MAX summary (temperature, humidity, aqi, rain_probability, rain_mm)")
	addAPIFlags(cmd, &flags.API)
	return cmd
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the meteod daemon",
		Long: `Start the meteod daemon: the collection scheduler plus the HTTP
control surface. Configuration is read from the TOML file and METEOD_*
environment variables.

Examples:
  meteod serve                      # Defaults plus METEOD_* environment
  meteod serve config.toml          # Start with specific config file
  meteod serve --daemonize          # Run as daemon in background`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServe(serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}
