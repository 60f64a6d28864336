package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration shared by the client and server binaries.
type File struct {
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
}

// Load reads a YAML config file and expands ${VAR} environment variables.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &f, nil
}

// LoadClientConfig loads the client section, applies env overrides and
// defaults, and validates it. An empty path skips the file.
func LoadClientConfig(path string) (ClientConfig, error) {
	f, err := loadWithEnv(path)
	if err != nil {
		return ClientConfig{}, err
	}
	f.Client.ApplyDefaults()
	if err := f.Client.Validate(); err != nil {
		return ClientConfig{}, fmt.Errorf("validate config: %w", err)
	}
	return f.Client, nil
}

// LoadServerConfig loads the server section, applies env overrides and
// defaults, and validates it. An empty path skips the file.
func LoadServerConfig(path string) (ServerConfig, error) {
	f, err := loadWithEnv(path)
	if err != nil {
		return ServerConfig{}, err
	}
	f.Server.ApplyDefaults()
	if err := f.Server.Validate(); err != nil {
		return ServerConfig{}, fmt.Errorf("validate config: %w", err)
	}
	return f.Server, nil
}

func loadWithEnv(path string) (*File, error) {
	f := &File{}
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		f = loaded
	}
	f.applyEnv()
	return f, nil
}

// applyEnv overrides file values from SOCKET_* and REDIS_* environment
// variables.
func (f *File) applyEnv() {
	if url := os.Getenv("SOCKET_URL"); url != "" {
		f.Client.URL = url
	}
	if s := os.Getenv("SOCKET_MAX_RECONNECT_ATTEMPTS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			f.Client.MaxReconnectAttempts = n
		}
	}
	if addr := os.Getenv("SOCKET_ADDR"); addr != "" {
		f.Server.Addr = addr
	}
	if s := os.Getenv("SOCKET_BRIDGE"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			f.Server.Bridge = b
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		f.Server.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		f.Server.Redis.Password = pw
	}
	if s := os.Getenv("REDIS_DB"); s != "" {
		if db, err := strconv.Atoi(s); err == nil {
			f.Server.Redis.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_WS_PREFIX"); prefix != "" {
		f.Server.Redis.Prefix = prefix
	}
}
