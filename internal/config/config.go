package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Channels     ChannelConfig               `yaml:"channels"`
	Reader       ReaderConfig                `yaml:"reader"`
	Writer       WriterConfig                `yaml:"writer"`
	Binarization BinarizationConfig          `yaml:"image_binarization_parameters"`
	Flow         OpticalFlowConfig           `yaml:"optical_flow_parameters"`
	Intensity    IntensityDistributionConfig `yaml:"intensity_distribution_parameters"`
	Storage      StorageConfig               `yaml:"storage"`
	Metrics      MetricsConfig               `yaml:"metrics"`
}

type ChannelConfig struct {
	ParseAllChannels bool `yaml:"parse_all_channels"`
	// Negative values count from the last channel.
	SelectedChannel int `yaml:"selected_channel"`
}

type ReaderConfig struct {
	AcceptDimChannels     bool `yaml:"accept_dim_channels"`
	Binarization          bool `yaml:"binarization"`
	Flow                  bool `yaml:"flow"`
	IntensityDistribution bool `yaml:"intensity_distribution"`
}

type WriterConfig struct {
	GenerateBarcode    bool `yaml:"generate_barcode"`
	SaveRDS            bool `yaml:"save_rds"`
	SaveVisualizations bool `yaml:"save_visualizations"`
}

type BinarizationConfig struct {
	ThresholdOffset           float64 `yaml:"threshold_offset"`
	FrameStep                 int     `yaml:"frame_step"`
	PercentageFramesEvaluated float64 `yaml:"percentage_frames_evaluated"`
}

type OpticalFlowConfig struct {
	FrameStep                 int     `yaml:"frame_step"`
	WinSize                   int     `yaml:"win_size"`
	Downsample                int     `yaml:"downsample"`
	UmPixelRatio              float64 `yaml:"um_pixel_ratio"`
	ExposureTime              float64 `yaml:"exposure_time"`
	PercentageFramesEvaluated float64 `yaml:"percentage_frames_evaluated"`
}

type IntensityDistributionConfig struct {
	BinSize                   int     `yaml:"bin_size"`
	FrameStep                 int     `yaml:"frame_step"`
	NoiseThreshold            float64 `yaml:"noise_threshold"`
	PercentageFramesEvaluated float64 `yaml:"percentage_frames_evaluated"`
}

type StorageConfig struct {
	PostgresURL string `yaml:"postgres_url"`
	Table       string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when a field is absent from YAML
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{
			Binarization:          true,
			Flow:                  true,
			IntensityDistribution: true,
		},
		Binarization: BinarizationConfig{
			ThresholdOffset:           0.1,
			FrameStep:                 10,
			PercentageFramesEvaluated: 0.05,
		},
		Flow: OpticalFlowConfig{
			FrameStep:                 10,
			WinSize:                   32,
			Downsample:                8,
			UmPixelRatio:              1.0,
			ExposureTime:              1.0,
			PercentageFramesEvaluated: 0.05,
		},
		Intensity: IntensityDistributionConfig{
			BinSize:                   300,
			FrameStep:                 10,
			NoiseThreshold:            5e-4,
			PercentageFramesEvaluated: 0.05,
		},
		Storage: StorageConfig{
			Table: "channel_results",
		},
	}
}

// Load reads path over Default, so only the fields present in the file
// override defaults. An explicit zero (e.g. threshold_offset: 0) is kept.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the effective configuration as YAML
func (c *Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

func (c *Config) applyDefaults() {
	if c.Storage.Table == "" {
		c.Storage.Table = "channel_results"
	}
}

func (c *Config) Validate() error {
	if c.Binarization.FrameStep < 1 {
		return fmt.Errorf("image_binarization_parameters.frame_step must be >= 1, got %d", c.Binarization.FrameStep)
	}
	if err := validPercent("image_binarization_parameters", c.Binarization.PercentageFramesEvaluated); err != nil {
		return err
	}

	if c.Flow.FrameStep < 1 {
		return fmt.Errorf("optical_flow_parameters.frame_step must be >= 1, got %d", c.Flow.FrameStep)
	}
	if c.Flow.WinSize < 1 {
		return fmt.Errorf("optical_flow_parameters.win_size must be >= 1, got %d", c.Flow.WinSize)
	}
	if c.Flow.Downsample < 1 {
		return fmt.Errorf("optical_flow_parameters.downsample must be >= 1, got %d", c.Flow.Downsample)
	}
	if c.Flow.ExposureTime <= 0 {
		return fmt.Errorf("optical_flow_parameters.exposure_time must be > 0, got %g", c.Flow.ExposureTime)
	}
	if c.Flow.UmPixelRatio <= 0 {
		return fmt.Errorf("optical_flow_parameters.um_pixel_ratio must be > 0, got %g", c.Flow.UmPixelRatio)
	}
	if err := validPercent("optical_flow_parameters", c.Flow.PercentageFramesEvaluated); err != nil {
		return err
	}

	if c.Intensity.BinSize < 1 {
		return fmt.Errorf("intensity_distribution_parameters.bin_size must be >= 1, got %d", c.Intensity.BinSize)
	}
	if c.Intensity.FrameStep < 1 {
		return fmt.Errorf("intensity_distribution_parameters.frame_step must be >= 1, got %d", c.Intensity.FrameStep)
	}
	if c.Intensity.NoiseThreshold < 0 || c.Intensity.NoiseThreshold >= 1 {
		return fmt.Errorf("intensity_distribution_parameters.noise_threshold must be in [0,1), got %g", c.Intensity.NoiseThreshold)
	}
	if err := validPercent("intensity_distribution_parameters", c.Intensity.PercentageFramesEvaluated); err != nil {
		return err
	}
	return nil
}

func validPercent(section string, p float64) error {
	if p <= 0 || p > 1 {
		return fmt.Errorf("%s.percentage_frames_evaluated must be in (0,1], got %g", section, p)
	}
	return nil
}
