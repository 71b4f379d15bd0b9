package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	InputFile     string   `yaml:"input_file"     json:"input_file"`
	OutputDir     string   `yaml:"output_dir"     json:"output_dir"`
	DaysThreshold int      `yaml:"days_threshold" json:"days_threshold"`
	Workers       int      `yaml:"workers"        json:"workers"`
	Domain        string   `yaml:"domain"         json:"domain"`
	Schedule      string   `yaml:"schedule"       json:"schedule"`
	DBPath        string   `yaml:"db_path"        json:"-"`
	HTTPAddr      string   `yaml:"http_addr"      json:"-"`
	LogLevel      string   `yaml:"log_level"      json:"-"`
	LogFile       string   `yaml:"log_file"       json:"-"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.InputFile == "" {
		c.InputFile = "shares.txt"
	}
	if c.OutputDir == "" {
		c.OutputDir = "macroscan-output"
	}
	if c.DaysThreshold == 0 {
		c.DaysThreshold = 7
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Domain == "" {
		c.Domain = "aur.national.com.au"
	}
	if c.Schedule == "" {
		c.Schedule = "0 1 * * 6"
	}
	if c.DBPath == "" {
		c.DBPath = "macroscan.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the tool can
// run with flags alone.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		var cfg Config
		cfg.applyDefaults()
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadShares reads the newline-delimited share list at path. Blank lines and
// surrounding whitespace are ignored. A missing or unreadable list is fatal
// to the run, so the error is returned as-is for main to report.
func LoadShares(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open share list %q: %w", path, err)
	}
	defer f.Close()

	var shares []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		shares = append(shares, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read share list %q: %w", path, err)
	}
	return shares, nil
}
