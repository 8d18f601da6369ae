package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kaggather/gatherd/internal/hostlink"
)

// HostSpec is one configured game host and its connection credential.
type HostSpec struct {
	Key      hostlink.Key
	Password string
}

// Config is everything the daemon reads from the environment. DatabaseURL
// may be empty, in which case stats and account linking are disabled.
type Config struct {
	HTTPAddr       string
	DatabaseURL    string
	QueueSize      int
	ScrambleQuorum int // 0 derives a majority per session
	SubQuorum      int // 0 uses the registry default
	Hosts          []HostSpec
	IdentityAPI    string
}

// Load reads configuration from the environment. Hosts are given as a
// comma-separated list of addr:port:password entries.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		IdentityAPI: os.Getenv("IDENTITY_API"),
	}

	var err error
	if cfg.QueueSize, err = envInt("QUEUE_SIZE", 10); err != nil {
		return Config{}, err
	}
	if cfg.QueueSize < 2 {
		return Config{}, fmt.Errorf("QUEUE_SIZE must be at least 2, got %d", cfg.QueueSize)
	}
	if cfg.ScrambleQuorum, err = envInt("SCRAMBLE_QUORUM", 0); err != nil {
		return Config{}, err
	}
	if cfg.SubQuorum, err = envInt("SUB_QUORUM", 0); err != nil {
		return Config{}, err
	}

	if raw := os.Getenv("GATHER_HOSTS"); raw != "" {
		for _, entry := range strings.Split(raw, ",") {
			spec, err := parseHost(strings.TrimSpace(entry))
			if err != nil {
				return Config{}, err
			}
			cfg.Hosts = append(cfg.Hosts, spec)
		}
	}
	return cfg, nil
}

func parseHost(entry string) (HostSpec, error) {
	parts := strings.SplitN(entry, ":", 3)
	if len(parts) != 3 {
		return HostSpec{}, fmt.Errorf("host entry %q: want addr:port:password", entry)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port <= 0 || port > 65535 {
		return HostSpec{}, fmt.Errorf("host entry %q: bad port", entry)
	}
	if parts[0] == "" || parts[2] == "" {
		return HostSpec{}, fmt.Errorf("host entry %q: empty addr or password", entry)
	}
	return HostSpec{
		Key:      hostlink.Key{Addr: parts[0], Port: port},
		Password: parts[2],
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
