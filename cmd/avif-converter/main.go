package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"avif-converter-go/internal/config"
	"avif-converter-go/internal/logger"
	"avif-converter-go/internal/web"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var (
	cfgFile      string
	imagePath    string
	directory    string
	reportPath   string
	targetFormat string
	force        bool
	workers      int
	verbose      bool
	quiet        bool
	port         int
	version      = "dev"
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "avif-converter",
	Short: "Convert images to AVIF",
	Long: `avif-converter converts JPEG, PNG, BMP, GIF, TIFF, WEBP and SVG images
into AVIF (or another target format), either a single file with --image or
every qualifying file in a directory with --directory.

Existing outputs are skipped unless --force is given. Failed files are
reported but never abort the rest of the batch.`,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runConvert(cmd)
	},
}

// watchCmd converts new and modified images in a directory as they appear.
var watchCmd = &cobra.Command{
	Use:   "watch <directory>",
	Short: "Convert images as they are added to a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runWatch(cmd, args[0])
	},
}

// serveCmd starts the HTTP API server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP conversion API",
	Long: `Starts an HTTP server exposing the batch converter:

  GET  /api/status        current run and last summary
  POST /api/convert       start a directory run
  POST /api/convert-file  convert one file synchronously
  POST /api/stop          cancel the active run
  GET  /api/directories   browse directories
  GET  /api/statistics    last run report
  GET  /ws                live completion events`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe(cmd)
	},
}

// formatsCmd lists decodable extensions and target formats.
var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported source extensions and target formats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printFormats(cmd.OutOrStdout())
		return nil
	},
}

// probeCmd shows what the converter sees in a single file.
var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Show type, orientation and output path for a file",
	Long: `Decodes the file, reads its EXIF orientation and prints the output path it
would convert to. This is useful for debugging rotated or undecodable images.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runProbe(cmd.OutOrStdout(), cfg, args[0])
	},
}

// versionCmd prints the build version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "avif-converter %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "overwrite existing converted files")
	rootCmd.PersistentFlags().StringVar(&targetFormat, "format", "", "target format (default avif)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "number of parallel conversions (default: one per CPU)")

	rootCmd.Flags().StringVarP(&imagePath, "image", "i", "", "path to a single image file")
	rootCmd.Flags().StringVarP(&directory, "directory", "d", "", "path to a directory of images")
	rootCmd.Flags().StringVar(&reportPath, "report", "", "write a YAML or JSON run report to this path")
	rootCmd.MarkFlagsMutuallyExclusive("image", "directory")
	rootCmd.MarkFlagsOneRequired("image", "directory")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run the API server on")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig loads variables from a .env file, if present, so they reach
// the AVIF_CONVERTER_ environment overrides.
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Ignoring .env: %v\n", err)
	}
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("force") {
		cfg.Overwrite = force
	}
	if flags.Changed("format") {
		cfg.TargetFormat = targetFormat
	}
	if flags.Changed("workers") {
		cfg.Performance.Parallelism = workers
	}
	if flags.Lookup("report") != nil && flags.Changed("report") {
		cfg.Report.Path = reportPath
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// runConvert handles the root command: one file or one directory.
func runConvert(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	osFs := afero.NewOsFs()
	app, err := newApp(osFs, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			log.Warnf("Cleanup failed: %v", cerr)
		}
	}()

	out := cmd.OutOrStdout()
	if imagePath != "" {
		app.convertFile(ctx, out, imagePath)
		return nil
	}
	return app.convertDirectory(ctx, out, directory, !quiet)
}

// runWatch converts images in dir until interrupted.
func runWatch(cmd *cobra.Command, dir string) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(afero.NewOsFs(), cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, app.Close())
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s, press Ctrl+C to stop\n", dir)
	return app.watch(ctx, cmd.OutOrStdout(), dir)
}

// runServe starts the API server and handles graceful shutdown.
func runServe(cmd *cobra.Command) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := setupLogger(cfg)

	osFs := afero.NewOsFs()
	app, err := newApp(osFs, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, app.Close())
	}()

	server := web.NewServer(app.conv, osFs, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "API listening on http://localhost:%d (Ctrl+C to stop)\n", cfg.Server.Port)

	select {
	case <-sigChan:
	case err := <-serveErr:
		return fmt.Errorf("server failed to start: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
