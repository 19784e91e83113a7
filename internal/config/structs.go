//nolint:lll
package config

// Config is the complete ocrsam configuration. It is loaded from a config
// file, OCRSAM_* environment variables and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Text spotting (detector + recognizer)
	Spotter SpotterConfig `mapstructure:"spotter" yaml:"spotter" json:"spotter"`

	// Box-prompted segmentation
	Segmenter SegmenterConfig `mapstructure:"segmenter" yaml:"segmenter" json:"segmenter"`

	// Diffusion inpainting backend
	Inpaint InpaintConfig `mapstructure:"inpaint" yaml:"inpaint" json:"inpaint"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// GPU configuration
	GPU GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`

	WarmupIterations int `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations"`
}

// SpotterConfig groups the detector and recognizer settings.
type SpotterConfig struct {
	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
}

// DetectorConfig contains text detection settings.
type DetectorConfig struct {
	ModelPath    string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	DbThresh     float32 `mapstructure:"db_thresh" yaml:"db_thresh" json:"db_thresh"`
	DbBoxThresh  float32 `mapstructure:"db_box_thresh" yaml:"db_box_thresh" json:"db_box_thresh"`
	MaxImageSize int     `mapstructure:"max_image_size" yaml:"max_image_size" json:"max_image_size"`
	PolygonMode  string  `mapstructure:"polygon_mode" yaml:"polygon_mode" json:"polygon_mode"`
	UseNMS       bool    `mapstructure:"use_nms" yaml:"use_nms" json:"use_nms"`
	NMSThreshold float64 `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
	NumThreads   int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// RecognizerConfig contains text recognition settings.
type RecognizerConfig struct {
	ModelPath   string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	DictPath    string `mapstructure:"dict_path" yaml:"dict_path" json:"dict_path"`
	ImageHeight int    `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	MaxWidth    int    `mapstructure:"max_width" yaml:"max_width" json:"max_width"`
	Language    string `mapstructure:"language" yaml:"language" json:"language"`
	NumThreads  int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	Workers     int    `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// SegmenterConfig contains SAM encoder/decoder settings.
type SegmenterConfig struct {
	EncoderPath   string  `mapstructure:"encoder_path" yaml:"encoder_path" json:"encoder_path"`
	DecoderPath   string  `mapstructure:"decoder_path" yaml:"decoder_path" json:"decoder_path"`
	InputSize     int     `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	MaskThreshold float64 `mapstructure:"mask_threshold" yaml:"mask_threshold" json:"mask_threshold"`
	NumThreads    int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// InpaintConfig contains diffusion backend settings.
type InpaintConfig struct {
	Endpoint        string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	APIKey          string  `mapstructure:"api_key" yaml:"api_key,omitempty" json:"-"`
	TimeoutSec      int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	Width           int     `mapstructure:"width" yaml:"width" json:"width"`
	Height          int     `mapstructure:"height" yaml:"height" json:"height"`
	Steps           int     `mapstructure:"steps" yaml:"steps" json:"steps"`
	Seed            int64   `mapstructure:"seed" yaml:"seed" json:"seed"`
	GuidanceScale   float64 `mapstructure:"guidance_scale" yaml:"guidance_scale" json:"guidance_scale"`
	NegativePrompt  string  `mapstructure:"negative_prompt" yaml:"negative_prompt" json:"negative_prompt"`
	MaxPromptLength int     `mapstructure:"max_prompt_length" yaml:"max_prompt_length" json:"max_prompt_length"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	ExamplesDir     string `mapstructure:"examples_dir" yaml:"examples_dir" json:"examples_dir"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device  int  `mapstructure:"device" yaml:"device" json:"device"`
}
