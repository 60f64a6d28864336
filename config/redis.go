package config

// RedisConfig holds the connection settings of the cross-instance relay.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix namespaces relay topics: hub channel "chat.1" is relayed on
	// Redis channel Prefix+"chat.1".
	Prefix string `yaml:"prefix"`
}

const (
	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisPrefix = "socketclient:ws:"
)

func (c *RedisConfig) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultRedisAddr
	}
	if c.Prefix == "" {
		c.Prefix = DefaultRedisPrefix
	}
}
