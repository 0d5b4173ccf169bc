package configs

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Server struct {
		IP    string `yaml:"ip"`
		Port  int    `yaml:"port"`
		Token string `yaml:"token"`
		Auth  struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"auth"`
	} `yaml:"server"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	Web struct {
		Enabled   bool   `yaml:"enabled"`
		Port      int    `yaml:"port"`
		Websocket string `yaml:"websocket"`
	} `yaml:"web"`

	SelectedModule map[string]string `yaml:"selected_module"`

	VLLLM map[string]VLLMConfig `yaml:"VLLLM"`

	Fetch FetchConfig `yaml:"fetch"`
}

// VLLMConfig VLLLM配置结构（视觉语言大模型）
type VLLMConfig struct {
	Type        string                 `yaml:"type"`        // API类型（openai/ollama）
	ModelName   string                 `yaml:"model_name"`  // 模型名称，使用支持视觉的模型
	BaseURL     string                 `yaml:"url"`         // API地址
	APIKey      string                 `yaml:"api_key"`     // API密钥
	Temperature float64                `yaml:"temperature"` // 温度参数
	MaxTokens   int                    `yaml:"max_tokens"`  // 最大令牌数
	TopP        float64                `yaml:"top_p"`       // TopP参数
	Extra       map[string]interface{} `yaml:",inline"`     // 额外配置
}

// FetchConfig 图片下载配置结构
type FetchConfig struct {
	TotalTimeout   int    `yaml:"total_timeout"`   // 总超时时间（秒）
	ConnectTimeout int    `yaml:"connect_timeout"` // 连接超时时间（秒）
	MaxRetries     int    `yaml:"max_retries"`     // 最大重试次数
	ProxyURL       string `yaml:"proxy_url"`       // 备用HTTP代理地址（可选）
	MaxFileSize    int64  `yaml:"max_file_size"`   // 最大下载大小（字节）
}

// LoadConfig 从文件加载配置
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, path, err
	}

	config.applyDefaults()

	return config, path, nil
}

// applyDefaults 填充未配置项的默认值
func (c *Config) applyDefaults() {
	if c.Fetch.TotalTimeout <= 0 {
		c.Fetch.TotalTimeout = 10
	}
	if c.Fetch.ConnectTimeout <= 0 {
		c.Fetch.ConnectTimeout = 5
	}
	if c.Fetch.MaxRetries <= 0 {
		c.Fetch.MaxRetries = 3
	}
	if c.Fetch.MaxFileSize <= 0 {
		c.Fetch.MaxFileSize = 10 * 1024 * 1024
	}
}
