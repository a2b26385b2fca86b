package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"voxelhost.ai/internal/mathx"
)

const (
	StorageFiles = "files"
	StorageBolt  = "bolt"
)

// Settings is the server configuration file.
type Settings struct {
	Address    string `yaml:"address"`
	TCPAddress string `yaml:"tcp_address"`
	MaxPlayers int    `yaml:"max_players"`

	WorldSeed         uint32  `yaml:"world_seed"`
	ServerName        string  `yaml:"server_name"`
	ServerDescription string  `yaml:"server_description"`
	StartTime         float64 `yaml:"start_time"`
	WorldFolder       string  `yaml:"world_folder"`
	Storage           string  `yaml:"storage"`
	IndexDB           string  `yaml:"index_db"`
	EventLog          bool    `yaml:"event_log"`

	Admins   []string `yaml:"admins"`
	Peaceful bool     `yaml:"peaceful"`

	TickRate          int           `yaml:"tick_rate"`
	ClientTimeout     time.Duration `yaml:"client_timeout"`
	SaveInterval      time.Duration `yaml:"save_interval"`
	GenerationWorkers int           `yaml:"generation_workers"`
	MaxViewDistance   uint32        `yaml:"max_view_distance"`
	SpawnPoint        [3]float32    `yaml:"spawn_point,flow"`

	ChatRate  float64 `yaml:"chat_rate"`
	ChatBurst int     `yaml:"chat_burst"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() Settings {
	return Settings{
		Address:           "0.0.0.0:14004",
		MaxPlayers:        100,
		WorldSeed:         1337,
		ServerName:        "Voxelhost Alpha",
		ServerDescription: "This is the best voxel server.",
		StartTime:         9 * 3600,
		WorldFolder:       "./worldsave",
		Storage:           StorageFiles,
		Admins:            []string{},
		TickRate:          30,
		ClientTimeout:     20 * time.Second,
		SaveInterval:      time.Second,
		GenerationWorkers: runtime.NumCPU(),
		MaxViewDistance:   12,
		SpawnPoint:        [3]float32{16384, 16384, 512},
		ChatRate:          4,
		ChatBurst:         8,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Load reads and validates a settings file. Fields the file omits keep
// their defaults.
func Load(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	return Parse(raw)
}

// LoadOrCreate is Load, except that a missing file is written with the
// defaults and those are used. created reports that case.
func LoadOrCreate(path string) (s Settings, created bool, err error) {
	s, err = Load(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return s, false, err
	}
	s = Default()
	if err := s.Save(path); err != nil {
		return s, false, err
	}
	return s, true, nil
}

func Parse(raw []byte) (Settings, error) {
	s := Default()
	if len(bytes.TrimSpace(raw)) == 0 {
		return s, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings.yaml: %w", err)
	}
	return s, nil
}

func (s Settings) Save(path string) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, b, 0o644)
}

func (s *Settings) Normalize() {
	s.Address = strings.TrimSpace(s.Address)
	s.TCPAddress = strings.TrimSpace(s.TCPAddress)
	s.Storage = strings.ToLower(strings.TrimSpace(s.Storage))
	if s.Storage == "" {
		s.Storage = StorageFiles
	}
	if s.GenerationWorkers <= 0 {
		s.GenerationWorkers = runtime.NumCPU()
	}
	if s.Admins == nil {
		s.Admins = []string{}
	}
	for i, a := range s.Admins {
		s.Admins[i] = strings.TrimSpace(a)
	}
}

func (s Settings) Validate() error {
	if s.Address == "" {
		return fmt.Errorf("address is required")
	}
	if s.MaxPlayers < 1 {
		return fmt.Errorf("max_players must be >= 1")
	}
	if s.TickRate < 1 || s.TickRate > 240 {
		return fmt.Errorf("tick_rate must be in 1..240")
	}
	if s.ClientTimeout <= 0 {
		return fmt.Errorf("client_timeout must be positive")
	}
	if s.SaveInterval <= 0 {
		return fmt.Errorf("save_interval must be positive")
	}
	if s.Storage != StorageFiles && s.Storage != StorageBolt {
		return fmt.Errorf("storage must be %q or %q", StorageFiles, StorageBolt)
	}
	if s.WorldFolder == "" {
		return fmt.Errorf("world_folder is required")
	}
	return nil
}

func (s Settings) IsAdmin(alias string) bool {
	for _, a := range s.Admins {
		if a == alias {
			return true
		}
	}
	return false
}

func (s Settings) Spawn() mathx.Vec3 {
	return mathx.Vec3{X: s.SpawnPoint[0], Y: s.SpawnPoint[1], Z: s.SpawnPoint[2]}
}

// TickInterval is the wall time between ticks.
func (s Settings) TickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}

// toJSONValue converts a decoded YAML document into the value shapes the
// schema validator expects.
func toJSONValue(doc any) (any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
