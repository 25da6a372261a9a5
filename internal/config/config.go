// Package config holds the run configuration for chatreel.
// Values come from defaults, an optional YAML file, a .env file and CHATREEL_* environment variables,
// applied in that order.
package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrimaryUser = "CHATREEL_PRIMARY_USER"
	EnvLogLevel    = "CHATREEL_LOG_LEVEL"
	EnvDataDir     = "CHATREEL_DATA_DIR"
	EnvMemeDir     = "CHATREEL_MEME_DIR"
	EnvHTTPAddr    = "CHATREEL_HTTP_ADDR"
	EnvBackground  = "CHATREEL_BG_AUDIO"
	EnvKeystroke   = "CHATREEL_KEYSTROKE_AUDIO"
	EnvSendAudio   = "CHATREEL_SEND_AUDIO"
	EnvRecvAudio   = "CHATREEL_RECEIVE_AUDIO"
	EnvFPS         = "CHATREEL_FPS"

	TimelineFilename = "timeline.yaml"
	ConcatFilename   = "concat.txt"
	HistoryFilename  = "history.db"
)

type Config struct {
	ScriptPath   string   `yaml:"script"`
	OutputVideo  string   `yaml:"output"`
	DataDir      string   `yaml:"data_dir"`
	PrimaryUser  string   `yaml:"primary_user"`
	Participants []string `yaml:"participants"`
	ChatTitle    string   `yaml:"chat_title"`
	Width        int      `yaml:"width"`
	Height       int      `yaml:"height"`
	FPS          int      `yaml:"fps"`
	Workers      int      `yaml:"workers"`
	LogLevel     string   `yaml:"log_level"`
	HTTPAddr     string   `yaml:"http_addr"`
	VideoEncoder string   `yaml:"video_encoder"`
	Quality      int      `yaml:"quality"`
	ShowStats    bool     `yaml:"show_stats"`
	BuildVersion string   `yaml:"-"`

	Timing   Timing   `yaml:"timing"`
	Typing   Typing   `yaml:"typing"`
	Memes    Memes    `yaml:"memes"`
	Closing  Closing  `yaml:"closing"`
	Audio    Audio    `yaml:"audio"`
	Timeouts Timeouts `yaml:"timeouts"`
}

// Timing drives the duration estimator.
type Timing struct {
	TextFloor         float64 `yaml:"text_floor"`
	ReadingRate       float64 `yaml:"reading_rate"`
	MemeBase          float64 `yaml:"meme_base"`
	MemeAspectWeight  float64 `yaml:"meme_aspect_weight"`
	MemeAreaWeight    float64 `yaml:"meme_area_weight"`
	MemeMin           float64 `yaml:"meme_min"`
	MemeMax           float64 `yaml:"meme_max"`
	MemeFallback      float64 `yaml:"meme_fallback"`
	MemeCanvasWidth   int     `yaml:"meme_canvas_width"`
	MemeCanvasHeight  int     `yaml:"meme_canvas_height"`
	IndicatorDuration float64 `yaml:"indicator_duration"`
	IndicatorChance   float64 `yaml:"indicator_chance"`
	MemeFollowDelay   float64 `yaml:"meme_follow_delay"`
}

type Typing struct {
	DecoyChance     float64  `yaml:"decoy_chance"`
	DecoyCapMin     int      `yaml:"decoy_cap_min"`
	DecoyCapMax     int      `yaml:"decoy_cap_max"`
	DecoyPhrases    []string `yaml:"decoy_phrases"`
	SpeedMultiplier float64  `yaml:"speed_multiplier"`
	SilentTail      int      `yaml:"silent_tail"`
	BlinkHold       float64  `yaml:"blink_hold"`
	SettleHold      float64  `yaml:"settle_hold"`
	DecoyPause      float64  `yaml:"decoy_pause"`
}

type Memes struct {
	Dir          string   `yaml:"dir"`
	Marker       string   `yaml:"marker"`
	InjectChance float64  `yaml:"inject_chance"`
	InjectMax    int      `yaml:"inject_max"`
	PoolSize     int      `yaml:"pool_size"`
	StockQueries []string `yaml:"stock_queries"`
}

// Closing configures the summary card appended after the last timeline entry.
type Closing struct {
	Enabled  bool    `yaml:"enabled"`
	Text     string  `yaml:"text"`
	Duration float64 `yaml:"duration"`
	Link     string  `yaml:"link"`
}

type Audio struct {
	Background       string  `yaml:"background"`
	BackgroundVolume float64 `yaml:"background_volume"`
	Keystroke        string  `yaml:"keystroke"`

	// Send and Receive play once per message, chosen by whether the primary user sent it.
	Send    string `yaml:"send"`
	Receive string `yaml:"receive"`
}

type Timeouts struct {
	Render time.Duration `yaml:"render"`
	Search time.Duration `yaml:"search"`
	Probe  time.Duration `yaml:"probe"`
	Encode time.Duration `yaml:"encode"`
}

// SegmentParams describes one encoded clip (a meme hold clip or the final concat pass).
type SegmentParams struct {
	Width, Height int
	FPS           int
	Duration      float64
	Filter        string
}

func Default() *Config {
	return &Config{
		DataDir:      defaultDataDir(),
		PrimaryUser:  "Banka",
		ChatTitle:    "BANKA TOUR GROUP",
		Width:        1280,
		Height:       720,
		FPS:          25,
		Workers:      4,
		LogLevel:     "info",
		HTTPAddr:     "127.0.0.1:8790",
		VideoEncoder: "libx264",
		Quality:      23,
		Timing: Timing{
			TextFloor:         2.5,
			ReadingRate:       10,
			MemeBase:          2.0,
			MemeAspectWeight:  1.5,
			MemeAreaWeight:    4.0,
			MemeMin:           2.5,
			MemeMax:           6.0,
			MemeFallback:      3.0,
			MemeCanvasWidth:   1920,
			MemeCanvasHeight:  1080,
			IndicatorDuration: 1.5,
			IndicatorChance:   0.3,
			MemeFollowDelay:   0.5,
		},
		Typing: Typing{
			DecoyChance: 0.4,
			DecoyCapMin: 1,
			DecoyCapMax: 2,
			DecoyPhrases: []string{
				"Wait", "Hold on", "Hmm", "Nah", "Actually", "But", "Wait what",
				"No way", "Umm", "For real", "Bruh", "Lol", "Well", "Okay",
			},
			SpeedMultiplier: 0.5,
			SilentTail:      3,
			BlinkHold:       0.25,
			SettleHold:      0.8,
			DecoyPause:      0.5,
		},
		Memes: Memes{
			Dir:          filepath.Join("assets", "memes"),
			Marker:       "[MEME]",
			InjectChance: 0.25,
			InjectMax:    3,
			PoolSize:     10,
			StockQueries: []string{
				"funny", "fail", "reaction", "cat", "dog",
				"awkward", "celebration", "angry", "dance", "lol",
			},
		},
		Closing: Closing{
			Enabled:  true,
			Duration: 4.0,
		},
		Audio: Audio{
			BackgroundVolume: 0.3,
		},
		Timeouts: Timeouts{
			Render: 30 * time.Second,
			Search: 20 * time.Second,
			Probe:  10 * time.Second,
			Encode: 10 * time.Minute,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (optional), .env and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPrimaryUser); v != "" {
		c.PrimaryUser = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvMemeDir); v != "" {
		c.Memes.Dir = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv(EnvBackground); v != "" {
		c.Audio.Background = v
	}
	if v := os.Getenv(EnvKeystroke); v != "" {
		c.Audio.Keystroke = v
	}
	if v := os.Getenv(EnvSendAudio); v != "" {
		c.Audio.Send = v
	}
	if v := os.Getenv(EnvRecvAudio); v != "" {
		c.Audio.Receive = v
	}
	if v := os.Getenv(EnvFPS); v != "" {
		fps, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", EnvFPS)
		}
		c.FPS = fps
	}
	return nil
}

// Validate rejects settings that would produce non-positive durations or an empty primary user.
func (c *Config) Validate() error {
	switch {
	case c.PrimaryUser == "":
		return errors.New("primary_user must be set")
	case c.Timing.TextFloor <= 0:
		return errors.New("timing.text_floor must be positive")
	case c.Timing.ReadingRate <= 0:
		return errors.New("timing.reading_rate must be positive")
	case c.Timing.MemeMin <= 0 || c.Timing.MemeMax < c.Timing.MemeMin:
		return errors.Errorf("invalid meme band [%.2f, %.2f]", c.Timing.MemeMin, c.Timing.MemeMax)
	case c.Timing.IndicatorDuration <= 0:
		return errors.New("timing.indicator_duration must be positive")
	case c.Typing.DecoyCapMin < 0 || c.Typing.DecoyCapMax < c.Typing.DecoyCapMin:
		return errors.Errorf("invalid decoy cap range [%d, %d]", c.Typing.DecoyCapMin, c.Typing.DecoyCapMax)
	case c.Memes.InjectMax < 0:
		return errors.New("memes.inject_max must not be negative")
	case c.FPS <= 0:
		return errors.New("fps must be positive")
	case c.Width <= 0 || c.Height <= 0:
		return errors.Errorf("invalid canvas %dx%d", c.Width, c.Height)
	}
	return nil
}

// TimelinePath is where the run's timeline document is persisted after every append.
func (c *Config) TimelinePath(runID string) string {
	return filepath.Join(c.RunDir(runID), TimelineFilename)
}

func (c *Config) ConcatPath(runID string) string {
	return filepath.Join(c.RunDir(runID), ConcatFilename)
}

func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, HistoryFilename)
}

// RunDir is the working directory for one run's frames, media and concat list.
func (c *Config) RunDir(runID string) string {
	return filepath.Join(c.DataDir, "runs", runID)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatreel"
	}
	return filepath.Join(home, ".chatreel")
}
