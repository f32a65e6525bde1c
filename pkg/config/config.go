// Package config provides configuration loading and management for roiquant.
// It handles loading configuration from YAML files, overlaying environment
// variables (optionally from a .env file) and provides default values that
// reproduce the reference pipeline's constants.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"roiquant/internal/logging"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// References locates the static reference files
	References struct {
		// Dir is prepended to every relative reference path
		Dir string `yaml:"dir"`

		// ROITable is the harmonized reference cohort of regional volumes
		ROITable string `yaml:"roiTable"`

		// WMLSTable is the independent lesion-volume reference cohort
		WMLSTable string `yaml:"wmlsTable"`

		// Mapping is the derived-ROI composition table
		Mapping string `yaml:"mapping"`

		// Dictionary maps ROI index to hemisphere and name
		Dictionary string `yaml:"dictionary"`
	} `yaml:"references"`

	// Cohort describes the reference table schema and the windowing rule
	Cohort struct {
		// WindowHalfWidth is the age window half-width in years
		WindowHalfWidth float64 `yaml:"windowHalfWidth"`

		// ControlLabel is the diagnosis value of control subjects
		ControlLabel string `yaml:"controlLabel"`

		SubjectIDColumn string `yaml:"subjectIdColumn"`
		AgeColumn       string `yaml:"ageColumn"`
		SexColumn       string `yaml:"sexColumn"`
		DiagnosisColumn string `yaml:"diagnosisColumn"`
		DateColumn      string `yaml:"dateColumn"`

		// TextColumns are kept verbatim and never normalized
		TextColumns []string `yaml:"textColumns"`

		// ICVColumn holds the reference ICV in the ROI table
		ICVColumn string `yaml:"icvColumn"`

		// WMLSICVColumn holds the reference ICV in the WMLS table
		WMLSICVColumn string `yaml:"wmlsIcvColumn"`

		// WMLSColumn is the lesion column, renamed to WMLSName after loading
		WMLSColumn string `yaml:"wmlsColumn"`
		WMLSName   string `yaml:"wmlsName"`

		// ExcludedColumns are numeric columns skipped by ICV adjustment
		ExcludedColumns []string `yaml:"excludedColumns"`

		// AIPattern marks asymmetry-index columns (substring match)
		AIPattern string `yaml:"aiPattern"`

		// SexCodes translates coded sex values (WMLS table) to M/F
		SexCodes map[string]string `yaml:"sexCodes"`
	} `yaml:"cohort"`

	// Quantification parameters
	Quantification struct {
		// UnitScale converts mm^3 to the display unit (cm^3)
		UnitScale float64 `yaml:"unitScale"`

		// SingleRegionMaxLabel is the largest label id treated as a single ROI
		SingleRegionMaxLabel int `yaml:"singleRegionMaxLabel"`
	} `yaml:"quantification"`

	// Processing parameters
	Processing struct {
		// NumCores bounds how many cases the batch command runs at once
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Workbook writes a per-case XLSX summary next to the JSON artifacts
		Workbook bool `yaml:"workbook"`

		// QCSnapshot writes a PNG of the middle axial slice of the segmentation
		QCSnapshot bool `yaml:"qcSnapshot"`
	} `yaml:"output"`

	// Log configures the structured logger
	Log logging.LogConfig `yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.References.Dir = "/refs"
	cfg.References.ROITable = "combinedharmonized_out.csv"
	cfg.References.WMLSTable = "WMLS_combinedrefs.csv"
	cfg.References.Mapping = "MUSE_DerivedROIs_Mappings.csv"
	cfg.References.Dictionary = "MUSE_ROI_Dictionary.csv"

	cfg.Cohort.WindowHalfWidth = 3
	cfg.Cohort.ControlLabel = "CN"
	cfg.Cohort.SubjectIDColumn = "PTID"
	cfg.Cohort.AgeColumn = "Age"
	cfg.Cohort.SexColumn = "Sex"
	cfg.Cohort.DiagnosisColumn = "Diagnosis_nearest_2.0"
	cfg.Cohort.DateColumn = "Date"
	cfg.Cohort.TextColumns = []string{"MRID", "Study", "SITE", "ID", "Phase"}
	cfg.Cohort.ICVColumn = "702"
	cfg.Cohort.WMLSICVColumn = "ICV"
	cfg.Cohort.WMLSColumn = "604"
	cfg.Cohort.WMLSName = "Total White Matter Hyperintensity Volume"
	cfg.Cohort.ExcludedColumns = []string{"ICV", "SPARE_AD", "SPARE_BA"}
	cfg.Cohort.AIPattern = "AI"
	cfg.Cohort.SexCodes = map[string]string{"0": "F", "1": "M"}

	cfg.Quantification.UnitScale = 1000
	cfg.Quantification.SingleRegionMaxLabel = 207

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.Workbook = true
	cfg.Output.QCSnapshot = false

	cfg.Log.Level = "info"
	cfg.Log.Format = "console"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays ROIQUANT_* environment variables on cfg. Any envFiles
// that exist are loaded first; variables already set in the process win.
func (c *Config) ApplyEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("error loading env file %s: %w", f, err)
		}
	}

	if v := os.Getenv("ROIQUANT_REFS_DIR"); v != "" {
		c.References.Dir = v
	}
	if v := os.Getenv("ROIQUANT_CONTROL_LABEL"); v != "" {
		c.Cohort.ControlLabel = v
	}
	if v := os.Getenv("ROIQUANT_WINDOW_YEARS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid ROIQUANT_WINDOW_YEARS %q: %w", v, err)
		}
		c.Cohort.WindowHalfWidth = f
	}
	if v := os.Getenv("ROIQUANT_NUM_CORES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ROIQUANT_NUM_CORES %q: %w", v, err)
		}
		c.Processing.NumCores = n
	}
	if v := os.Getenv("ROIQUANT_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Validate checks the values the computation depends on
func (c *Config) Validate() error {
	if c.Cohort.WindowHalfWidth <= 0 {
		return fmt.Errorf("cohort.windowHalfWidth must be positive, got %g", c.Cohort.WindowHalfWidth)
	}
	if c.Quantification.UnitScale <= 0 {
		return fmt.Errorf("quantification.unitScale must be positive, got %g", c.Quantification.UnitScale)
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Cohort.ControlLabel == "" {
		return fmt.Errorf("cohort.controlLabel must not be empty")
	}
	return nil
}

// ReferencePath resolves a reference file name against References.Dir
func (c *Config) ReferencePath(name string) string {
	if filepath.IsAbs(name) || c.References.Dir == "" {
		return name
	}
	return filepath.Join(c.References.Dir, name)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
