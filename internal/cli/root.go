// Package cli implements the formscan command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/logger"
)

// Build information, set by main.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// App is the state shared by every subcommand once the root command has
// loaded configuration.
type App struct {
	ConfigFile string
	LogLevel   string

	Viper    *viper.Viper
	Settings *config.Settings
	Log      logger.Logger

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// RootCommand creates the formscan root command.
func RootCommand(app *App) *cobra.Command {
	if app.In == nil {
		app.In = os.Stdin
	}
	if app.Out == nil {
		app.Out = os.Stdout
	}
	if app.Err == nil {
		app.Err = os.Stderr
	}

	rootCmd := &cobra.Command{
		Use:           "formscan",
		Short:         "Digitize circled ratings on scanned sensory evaluation forms",
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetIn(app.In)
	rootCmd.SetOut(app.Out)
	rootCmd.SetErr(app.Err)

	rootCmd.PersistentFlags().StringVarP(&app.ConfigFile, "config", "c", "", "Path to formscan.yaml")
	rootCmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		trainCommand(app),
		predictCommand(app),
		inspectCommand(app),
		sessionsCommand(app),
		configCommand(app),
		serveCommand(app),
		mcpCommand(app),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.initialize(cmd)
	}

	return rootCmd
}

// initialize loads configuration and builds the logger. Command flags that
// carry a config key annotation override the file and environment.
func (app *App) initialize(cmd *cobra.Command) error {
	v, err := config.NewViper(app.ConfigFile)
	if err != nil {
		return err
	}
	if app.LogLevel != "" {
		v.Set("logging.level", app.LogLevel)
	}
	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	settings, err := config.FromViper(v)
	if err != nil {
		return err
	}
	app.Viper = v
	app.Settings = settings

	// stdout belongs to the MCP protocol and to command output.
	app.Log = logger.NewWithWriter(app.Err, settings.Logging)
	if settings.Logging.File != "" {
		app.Log = logger.New(settings.Logging)
	}
	if used := config.ConfigUsed(v); used != "" {
		app.Log.Debug("configuration loaded", logger.String("file", used))
	}
	return nil
}

// configKey is the flag annotation naming the viper key a flag overrides.
const configKey = "formscan_config_key"

// bindFlag marks flag name on cmd as an override for key.
func bindFlag(cmd *cobra.Command, name, key string) {
	_ = cmd.Flags().SetAnnotation(name, configKey, []string{key})
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKey]
		if len(keys) == 0 || err != nil {
			return
		}
		err = v.BindPFlag(keys[0], f)
	})
	return err
}

// Execute runs the root command until ctx is cancelled.
func Execute(ctx context.Context, app *App, args []string) error {
	root := RootCommand(app)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
