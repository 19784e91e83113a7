package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/ocrsam/internal/config"
	"github.com/MeKo-Tech/ocrsam/internal/models"
	"github.com/MeKo-Tech/ocrsam/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ocrsam",
	Short: "Text-guided region inpainting with OCR and Segment Anything",
	Long: `ocrsam finds text in an image, segments each text region with a
box-prompted Segment Anything model and repaints a chosen region with a
diffusion inpainting backend.

The work is split in two stages:
- detect: text spotting plus segmentation, producing a preview, a numbered
  summary of the recognized text and a serialized mask table
- inpaint: regenerates the pixels of one region from the mask table,
  leaving everything outside the mask untouched

Examples:
  ocrsam detect sign.jpg --table masks.txt --preview preview.png
  ocrsam inpaint sign.jpg --table masks.txt --index 0 --prompt "a red STOP" --out result.png
  ocrsam serve --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _ := cmd.PersistentFlags().GetBool("version")
		if v {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/ocrsam, /etc/ocrsam)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	defaultModelsDir := models.DefaultModelsDir
	if envDir := os.Getenv(models.EnvModelsDir); envDir != "" {
		defaultModelsDir = envDir
	}
	rootCmd.PersistentFlags().String("models-dir", defaultModelsDir,
		"directory containing ONNX models (can also be set via "+models.EnvModelsDir+")")
	rootCmd.PersistentFlags().Bool("gpu", false, "run ONNX models on CUDA")
	rootCmd.PersistentFlags().Int("gpu-device", 0, "CUDA device ID")
	rootCmd.PersistentFlags().String("inpaint-endpoint", "", "base URL of the diffusion inpainting backend")

	rootCmd.PersistentFlags().Bool("version", false, "print version information and exit")

	bindFlags(rootCmd.PersistentFlags(), []flagBinding{
		{"verbose", "verbose"},
		{"log_level", "log-level"},
		{"models_dir", "models-dir"},
		{"gpu.enabled", "gpu"},
		{"gpu.device", "gpu-device"},
		{"inpaint.endpoint", "inpaint-endpoint"},
	})

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if globalConfig == nil {
			initConfig()
		}
		cfg := GetConfig()

		var logLevel slog.Level
		if cfg.Verbose {
			logLevel = slog.LevelDebug
		} else {
			switch cfg.LogLevel {
			case "debug":
				logLevel = slog.LevelDebug
			case "warn":
				logLevel = slog.LevelWarn
			case "error":
				logLevel = slog.LevelError
			default:
				logLevel = slog.LevelInfo
			}
		}

		// Logs go to stderr so detect can print the summary on stdout.
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	configLoader = config.NewLoader()

	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = configLoader.Load()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}

// GetConfig returns the configuration with bound command-line flags applied.
func GetConfig() *config.Config {
	if globalConfig == nil {
		initConfig()
	}

	// Flags are bound after the first load, so unmarshal again.
	var cfg config.Config
	if err := GetConfigLoader().GetViper().Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling updated configuration: %v\n", err)
		return globalConfig
	}
	return &cfg
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}

type flagBinding struct {
	key  string
	flag string
}

// bindFlags binds flags to viper configuration keys.
func bindFlags(flags *pflag.FlagSet, bindings []flagBinding) {
	for _, b := range bindings {
		if err := viper.BindPFlag(b.key, flags.Lookup(b.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", b.flag, err))
		}
	}
}
