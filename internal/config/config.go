package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr      string
	DBPath          string
	JWTSecret       string
	LogLevel        string
	LogFile         string
	LogFormat       string
	PluginFile      string
	MetricsInterval time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
	RedisAddr       string
	EventsPrefix    string
	ClaudeAPIKey    string
	ClaudeModel     string
	OllamaHost      string
	OllamaModel     string
}

// Load reads the process environment, after merging an optional .env file in
// the working directory. Variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		DBPath:          getEnv("DB_PATH", "/data/shopping.db"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		PluginFile:      getEnv("PLUGIN_CONFIG", ""),
		MetricsInterval: getDuration("METRICS_INTERVAL", time.Minute),
		RateLimitRPS:    getInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst:  getInt("RATE_LIMIT_BURST", 40),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		EventsPrefix:    getEnv("EVENTS_CHANNEL_PREFIX", "familymanager"),
		ClaudeAPIKey:    getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:     getEnv("CLAUDE_MODEL", "claude-3-5-haiku-latest"),
		OllamaHost:      getEnv("OLLAMA_HOST", ""),
		OllamaModel:     getEnv("OLLAMA_MODEL", "llama3.2"),
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// Plugin mirrors the plugin configuration file. Zero values are replaced by
// the defaults from DefaultPlugin.
type Plugin struct {
	Features Features `yaml:"features"`
	Roles    Roles    `yaml:"roles"`
	Limits   Limits   `yaml:"limits"`
}

type Features struct {
	Sharing         *bool `yaml:"sharing"`
	AutoArchive     *bool `yaml:"autoArchive"`
	ItemSuggestions *bool `yaml:"itemSuggestions"`
}

type Roles struct {
	CanCreateLists []string `yaml:"canCreateLists"`
	CanDeleteLists []string `yaml:"canDeleteLists"`
	CanManageItems []string `yaml:"canManageItems"`
}

type Limits struct {
	MaxListsPerFamily int `yaml:"maxListsPerFamily"`
	MaxItemsPerList   int `yaml:"maxItemsPerList"`
	ArchiveAfterDays  int `yaml:"archiveAfterDays"`
}

func DefaultPlugin() Plugin {
	on := true
	return Plugin{
		Features: Features{Sharing: &on, AutoArchive: &on, ItemSuggestions: &on},
		Roles: Roles{
			CanCreateLists: []string{"PARENT", "CHILD"},
			CanDeleteLists: []string{"PARENT"},
			CanManageItems: []string{"PARENT", "CHILD"},
		},
		Limits: Limits{MaxListsPerFamily: 50, MaxItemsPerList: 100, ArchiveAfterDays: 30},
	}
}

// LoadPlugin reads the YAML plugin file at path. An empty path yields the
// defaults.
func LoadPlugin(path string) (Plugin, error) {
	if path == "" {
		return DefaultPlugin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Plugin{}, fmt.Errorf("failed to read plugin config: %w", err)
	}
	return ParsePlugin(data)
}

func ParsePlugin(data []byte) (Plugin, error) {
	var p Plugin
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plugin{}, fmt.Errorf("failed to parse plugin config: %w", err)
	}
	p.applyDefaults()
	if err := p.validate(); err != nil {
		return Plugin{}, err
	}
	return p, nil
}

func (p *Plugin) applyDefaults() {
	def := DefaultPlugin()
	if p.Features.Sharing == nil {
		p.Features.Sharing = def.Features.Sharing
	}
	if p.Features.AutoArchive == nil {
		p.Features.AutoArchive = def.Features.AutoArchive
	}
	if p.Features.ItemSuggestions == nil {
		p.Features.ItemSuggestions = def.Features.ItemSuggestions
	}
	if p.Roles.CanCreateLists == nil {
		p.Roles.CanCreateLists = def.Roles.CanCreateLists
	}
	if p.Roles.CanDeleteLists == nil {
		p.Roles.CanDeleteLists = def.Roles.CanDeleteLists
	}
	if p.Roles.CanManageItems == nil {
		p.Roles.CanManageItems = def.Roles.CanManageItems
	}
	if p.Limits.MaxListsPerFamily == 0 {
		p.Limits.MaxListsPerFamily = def.Limits.MaxListsPerFamily
	}
	if p.Limits.MaxItemsPerList == 0 {
		p.Limits.MaxItemsPerList = def.Limits.MaxItemsPerList
	}
	if p.Limits.ArchiveAfterDays == 0 {
		p.Limits.ArchiveAfterDays = def.Limits.ArchiveAfterDays
	}
}

func (p *Plugin) validate() error {
	if p.Limits.MaxListsPerFamily < 1 {
		return fmt.Errorf("limits.maxListsPerFamily must be at least 1")
	}
	if p.Limits.MaxItemsPerList < 1 {
		return fmt.Errorf("limits.maxItemsPerList must be at least 1")
	}
	if p.Limits.ArchiveAfterDays < 1 {
		return fmt.Errorf("limits.archiveAfterDays must be at least 1")
	}
	return nil
}

func (f Features) AutoArchiveEnabled() bool { return f.AutoArchive != nil && *f.AutoArchive }
func (f Features) ItemSuggestionsEnabled() bool { return f.ItemSuggestions != nil && *f.ItemSuggestions }
