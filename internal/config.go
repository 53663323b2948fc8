package internal

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/njudb/njudb/internal/storage"
)

type NovaSqlConfig struct {
	Storage struct {
		Mode     string `mapstructure:"mode"`
		File     string `mapstructure:"file"`
		PageSize int    `mapstructure:"page_size"`
		Workdir  string `mapstructure:"workdir"`
	} `mapstructure:"storage"`
	Server struct {
		Port  int  `mapstructure:"port"`
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"server"`
	BufferPool struct {
		Replacer string `mapstructure:"replacer"` // "clock" (default), "lru", "lruk"
		K        int    `mapstructure:"k"`        // history length for "lruk"
		Capacity int    `mapstructure:"capacity"`
		DataDir  string `mapstructure:"data_dir"`
	} `mapstructure:"buffer_pool"`
	Admin struct {
		Addr string `mapstructure:"addr"` // empty disables the admin HTTP surface
	} `mapstructure:"admin"`
	Checkpoint struct {
		Schedule string `mapstructure:"schedule"` // standard 5-field cron expr; empty disables
	} `mapstructure:"checkpoint"`
	Auth struct {
		PasswordFile string `mapstructure:"password_file"` // empty disables connection auth
	} `mapstructure:"auth"`
}

type Config struct {
	Mode storage.StorageMode
}

func LoadConfig(path string) (*NovaSqlConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg NovaSqlConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
