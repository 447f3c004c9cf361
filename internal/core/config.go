package core

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator"
	"github.com/jo-hoe/photostamp/internal/backend/commands"
	"github.com/jo-hoe/photostamp/internal/backend/commandstructure"
	"github.com/jo-hoe/photostamp/internal/backend/database"
	"github.com/jo-hoe/photostamp/internal/backend/location"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort             = 8080
	DefaultTimezone         = "Europe/Berlin"
	DefaultStoreType        = "sqlite"
	DefaultConnectionString = "photostamp.db"
	DefaultTimeLayout       = "02.01.2006, 15:04:05"
	DefaultNoCoordinates    = "keine Koordinaten"
	// Nominatim usage policy allows one request per second
	DefaultRequestsPerSecond = 1.0
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type StoreConfig struct {
	Type             string `yaml:"type" validate:"oneof=sqlite redis file memory"`
	ConnectionString string `yaml:"connectionString"`
	Key              string `yaml:"key" validate:"required"`
}

type LocationConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	// GeoDatabase is an optional MaxMind city database used to locate clients by IP
	GeoDatabase string `yaml:"geoDatabase"`
}

type GeocodingConfig struct {
	Enabled           *bool         `yaml:"enabled"`
	Endpoint          string        `yaml:"endpoint" validate:"required,url"`
	UserAgent         string        `yaml:"userAgent" validate:"required"`
	Zoom              int           `yaml:"zoom" validate:"gte=0,lte=18"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" validate:"gte=0"`
}

// IsEnabled reports whether reverse geocoding is switched on; it is unless disabled explicitly.
func (g GeocodingConfig) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

type AnnotationConfig struct {
	MaxWidth int     `yaml:"maxWidth" validate:"gt=0"`
	FontSize int     `yaml:"fontSize" validate:"gt=0"`
	Padding  int     `yaml:"padding" validate:"gte=0"`
	Margin   int     `yaml:"margin" validate:"gte=0"`
	Quality  int     `yaml:"quality" validate:"gte=1,lte=100"`
	Opacity  float64 `yaml:"opacity" validate:"gte=0,lte=1"`
}

type CaptionConfig struct {
	TimeLayout    string `yaml:"timeLayout" validate:"required"`
	NoCoordinates string `yaml:"noCoordinates"`
}

type ServiceConfig struct {
	Port       int              `yaml:"port" validate:"gte=0,lte=65535"`
	Timezone   string           `yaml:"timezone"`
	Store      StoreConfig      `yaml:"store"`
	Location   LocationConfig   `yaml:"location"`
	Geocoding  GeocodingConfig  `yaml:"geocoding"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Caption    CaptionConfig    `yaml:"caption"`
	// Commands run before annotation, in order
	Commands []CommandConfig `yaml:"commands"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *ServiceConfig {
	config := &ServiceConfig{}
	config.applyDefaults(true)
	return config
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	// an explicit empty list disables preprocessing
	var raw map[string]any
	_ = yaml.Unmarshal(data, &raw)
	_, commandsSet := raw["commands"]
	config.applyDefaults(!commandsSet)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return &config, nil
}

func (c *ServiceConfig) applyDefaults(defaultCommands bool) {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}

	if c.Store.Type == "" {
		c.Store.Type = DefaultStoreType
	}
	if c.Store.ConnectionString == "" && c.Store.Type == DefaultStoreType {
		c.Store.ConnectionString = DefaultConnectionString
	}
	if c.Store.Key == "" {
		c.Store.Key = database.DefaultSlotKey
	}

	if c.Location.Timeout == 0 {
		c.Location.Timeout = location.DefaultTimeout
	}

	if c.Geocoding.Endpoint == "" {
		c.Geocoding.Endpoint = location.DefaultGeocodeEndpoint
	}
	if c.Geocoding.UserAgent == "" {
		c.Geocoding.UserAgent = location.DefaultUserAgent
	}
	if c.Geocoding.Zoom == 0 {
		c.Geocoding.Zoom = location.DefaultGeocodeZoom
	}
	if c.Geocoding.Timeout == 0 {
		c.Geocoding.Timeout = location.DefaultGeocodeTimeout
	}
	if c.Geocoding.RequestsPerSecond == 0 {
		c.Geocoding.RequestsPerSecond = DefaultRequestsPerSecond
	}

	annotation := commands.DefaultAnnotateParams()
	if c.Annotation.MaxWidth == 0 {
		c.Annotation.MaxWidth = annotation.MaxWidth
	}
	if c.Annotation.FontSize == 0 {
		c.Annotation.FontSize = annotation.FontSize
	}
	if c.Annotation.Padding == 0 {
		c.Annotation.Padding = annotation.Padding
	}
	if c.Annotation.Margin == 0 {
		c.Annotation.Margin = annotation.Margin
	}
	if c.Annotation.Quality == 0 {
		c.Annotation.Quality = annotation.Quality
	}
	if c.Annotation.Opacity == 0 {
		c.Annotation.Opacity = annotation.Opacity
	}

	if c.Caption.TimeLayout == "" {
		c.Caption.TimeLayout = DefaultTimeLayout
	}
	if c.Caption.NoCoordinates == "" {
		c.Caption.NoCoordinates = DefaultNoCoordinates
	}

	if defaultCommands && len(c.Commands) == 0 {
		c.Commands = []CommandConfig{{Name: "RasterizeCommand"}}
	}
}

// Validate checks field constraints, the time zone and the command list.
func (c *ServiceConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	if c.Store.Type != "memory" && c.Store.ConnectionString == "" {
		return fmt.Errorf("store type %s requires a connectionString", c.Store.Type)
	}
	if err := validateCommands(c.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	return nil
}

// AnnotateParams converts the annotation section into command parameters.
func (c *ServiceConfig) AnnotateParams() commands.AnnotateParams {
	return commands.AnnotateParams{
		MaxWidth: c.Annotation.MaxWidth,
		FontSize: c.Annotation.FontSize,
		Padding:  c.Annotation.Padding,
		Margin:   c.Annotation.Margin,
		Quality:  c.Annotation.Quality,
		Opacity:  c.Annotation.Opacity,
	}
}

// CommandConfigs converts the configured preprocessing commands for the invoker.
func (c *ServiceConfig) CommandConfigs() []commandstructure.CommandConfig {
	configs := make([]commandstructure.CommandConfig, 0, len(c.Commands))
	for _, cmd := range c.Commands {
		configs = append(configs, commandstructure.CommandConfig{Name: cmd.Name, Params: cmd.Params})
	}
	return configs
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		// Validate name is not empty
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true

		if !commandstructure.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command at index %d: %s", i, cmd.Name)
		}
	}

	return nil
}
