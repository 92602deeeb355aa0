package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/samueldervishii/llm-council/internal/model"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Council  CouncilConfig  `yaml:"council"`
	Session  SessionConfig  `yaml:"session"`
	Worker   WorkerConfig   `yaml:"worker"`
	Data     DataConfig     `yaml:"data"`
}

type ServerConfig struct {
	Port          string `yaml:"port"`
	Mode          string `yaml:"mode"`            // debug, release
	PublicBaseURL string `yaml:"public_base_url"` // 分享链接前缀，为空时取请求地址
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

type LLMConfig struct {
	Provider           string        `yaml:"provider"` // openrouter, eino
	APIURL             string        `yaml:"api_url"`
	APIKey             string        `yaml:"api_key"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxTokens          int           `yaml:"max_tokens"`
	Temperature        float64       `yaml:"temperature"`
	ReviewTemperature  float64       `yaml:"review_temperature"`
	SynthesisMaxTokens int           `yaml:"synthesis_max_tokens"`
	Referer            string        `yaml:"referer"`
	Title              string        `yaml:"title"`
}

type CouncilConfig struct {
	Models    []model.ModelInfo `yaml:"models"`
	Chairman  model.ModelInfo   `yaml:"chairman"`
	ChatTurns int               `yaml:"chat_turns"`
}

type SessionConfig struct {
	ListLimit   int `yaml:"list_limit"`
	TitleLength int `yaml:"title_length"`
}

type WorkerConfig struct {
	MaxWorkers int           `yaml:"max_workers"`
	JobTimeout time.Duration `yaml:"job_timeout"`
}

type DataConfig struct {
	Dir string `yaml:"dir"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

// Default 默认配置：四个免费 OpenRouter 模型 + Grok 主席
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/council.db",
		},
		LLM: LLMConfig{
			Provider:           "openrouter",
			APIURL:             "https://openrouter.ai/api/v1",
			Timeout:            60 * time.Second,
			MaxTokens:          2048,
			Temperature:        0.7,
			ReviewTemperature:  0.3,
			SynthesisMaxTokens: 4096,
			Referer:            "http://localhost:3000",
			Title:              "LLM Council",
		},
		Council: CouncilConfig{
			Models: []model.ModelInfo{
				{ID: "nvidia/nemotron-nano-9b-v2:free", Name: "NVIDIA Nemotron 9B"},
				{ID: "nvidia/nemotron-nano-12b-v2-vl:free", Name: "NVIDIA: Nemotron Nano 12B 2 VL"},
				{ID: "google/gemma-3-27b-it:free", Name: "Gemma 3 27B"},
				{ID: "openai/gpt-oss-20b:free", Name: "GPT OSS 20B"},
			},
			Chairman:  model.ModelInfo{ID: "x-ai/grok-4.1-fast:free", Name: "Grok 4.1 Fast"},
			ChatTurns: 1,
		},
		Session: SessionConfig{
			ListLimit:   50,
			TitleLength: 100,
		},
		Worker: WorkerConfig{
			MaxWorkers: 2,
			JobTimeout: 15 * time.Minute,
		},
		Data: DataConfig{
			Dir: "./data",
		},
	}
}

func loadConfig() *Config {
	config := Default()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			klog.Warningf("配置文件解析失败，使用默认配置: path=%s, error=%v", configPath, err)
		}
	}

	applyEnv(config)
	return config
}

// applyEnv 环境变量优先级高于配置文件
func applyEnv(config *Config) {
	if apiKey := os.Getenv("OPENROUTER_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENROUTER_BASE_URL"); baseURL != "" {
		config.LLM.APIURL = strings.TrimRight(baseURL, "/")
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		config.Data.Dir = dataDir
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		config.Server.Port = port
	}
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func UpdateConfig(newCfg *Config) {
	cfg = newCfg
}
