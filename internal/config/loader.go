package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "ocrsam"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "OCRSAM"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance, so flags bound
// by the root command take part in resolution.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on v.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first config file found on the search paths (if any),
// applies environment overrides and defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.LoadWithoutValidation()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithoutValidation is Load without the final validation step.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return l.unmarshal()
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile == "" {
		return l.LoadWithoutValidation()
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}

	l.v.SetConfigFile(configFile)
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// OCRSAM_SERVER_PORT -> server.port
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so env vars resolve even without a file.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)
	l.v.SetDefault("warmup_iterations", d.WarmupIterations)

	l.v.SetDefault("spotter.detector.model_path", d.Spotter.Detector.ModelPath)
	l.v.SetDefault("spotter.detector.db_thresh", d.Spotter.Detector.DbThresh)
	l.v.SetDefault("spotter.detector.db_box_thresh", d.Spotter.Detector.DbBoxThresh)
	l.v.SetDefault("spotter.detector.max_image_size", d.Spotter.Detector.MaxImageSize)
	l.v.SetDefault("spotter.detector.polygon_mode", d.Spotter.Detector.PolygonMode)
	l.v.SetDefault("spotter.detector.use_nms", d.Spotter.Detector.UseNMS)
	l.v.SetDefault("spotter.detector.nms_threshold", d.Spotter.Detector.NMSThreshold)
	l.v.SetDefault("spotter.detector.num_threads", d.Spotter.Detector.NumThreads)

	l.v.SetDefault("spotter.recognizer.model_path", d.Spotter.Recognizer.ModelPath)
	l.v.SetDefault("spotter.recognizer.dict_path", d.Spotter.Recognizer.DictPath)
	l.v.SetDefault("spotter.recognizer.image_height", d.Spotter.Recognizer.ImageHeight)
	l.v.SetDefault("spotter.recognizer.max_width", d.Spotter.Recognizer.MaxWidth)
	l.v.SetDefault("spotter.recognizer.language", d.Spotter.Recognizer.Language)
	l.v.SetDefault("spotter.recognizer.num_threads", d.Spotter.Recognizer.NumThreads)
	l.v.SetDefault("spotter.recognizer.workers", d.Spotter.Recognizer.Workers)

	l.v.SetDefault("segmenter.encoder_path", d.Segmenter.EncoderPath)
	l.v.SetDefault("segmenter.decoder_path", d.Segmenter.DecoderPath)
	l.v.SetDefault("segmenter.input_size", d.Segmenter.InputSize)
	l.v.SetDefault("segmenter.mask_threshold", d.Segmenter.MaskThreshold)
	l.v.SetDefault("segmenter.num_threads", d.Segmenter.NumThreads)

	l.v.SetDefault("inpaint.endpoint", d.Inpaint.Endpoint)
	l.v.SetDefault("inpaint.api_key", d.Inpaint.APIKey)
	l.v.SetDefault("inpaint.timeout_sec", d.Inpaint.TimeoutSec)
	l.v.SetDefault("inpaint.width", d.Inpaint.Width)
	l.v.SetDefault("inpaint.height", d.Inpaint.Height)
	l.v.SetDefault("inpaint.steps", d.Inpaint.Steps)
	l.v.SetDefault("inpaint.seed", d.Inpaint.Seed)
	l.v.SetDefault("inpaint.guidance_scale", d.Inpaint.GuidanceScale)
	l.v.SetDefault("inpaint.negative_prompt", d.Inpaint.NegativePrompt)
	l.v.SetDefault("inpaint.max_prompt_length", d.Inpaint.MaxPromptLength)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.examples_dir", d.Server.ExamplesDir)

	l.v.SetDefault("gpu.enabled", d.GPU.Enabled)
	l.v.SetDefault("gpu.device", d.GPU.Device)
}

// WriteYAML writes cfg as YAML to w.
func WriteYAML(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// GenerateDefaultConfigFile writes the default configuration to filename.
// An existing file is only replaced when overwrite is set.
func GenerateDefaultConfigFile(filename string, overwrite bool) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if !overwrite {
		if _, err := os.Stat(filename); err == nil {
			return fmt.Errorf("config file already exists: %s", filename)
		}
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	f, err := os.Create(filename) //nolint:gosec // G304: user-chosen output path
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := WriteYAML(f, &cfg); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	paths = append(paths, "/etc/"+ConfigFileName)

	return paths
}
