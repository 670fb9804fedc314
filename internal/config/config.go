// internal/config/config.go
//
// This package handles configuration and the .autopilot directory structure.
// Every project the autopilot watches gets an .autopilot/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/lattice-autopilot/internal/command"
	"github.com/kingrea/lattice-autopilot/internal/injector"
	"github.com/kingrea/lattice-autopilot/internal/transport"
)

const (
	// Dir is the name of the directory we create in each project
	Dir = ".autopilot"
	// FileName is the config file inside Dir.
	FileName = "config.yaml"

	ModeStopOnComplete = "stop-on-complete"
	ModeRunForever     = "run-forever"

	DefaultCheckpointPath = "checkpoint.md"
	DefaultTaskListPath   = "やりたいリスト.md"
	DefaultWindowTitle    = "Antigravity"
	DefaultStatusHost     = "127.0.0.1"
	DefaultStatusPort     = 8765
)

// Modes lists the accepted values of mode.
var Modes = []string{ModeStopOnComplete, ModeRunForever}

const defaultConfigYAML = `# autopilot configuration
version: 1

# Files the monitor reads and writes. Relative paths resolve against the project directory.
checkpoint_path: checkpoint.md
log_path: .autopilot/logs/autopilot.log
task_list_path: やりたいリスト.md

# stop-on-complete ends the run once the agent reports COMPLETE with nothing scheduled.
# run-forever keeps watching for new schedules.
mode: stop-on-complete

poll_interval: 10s
grace_delay: 5s
cooldown: 30s
max_wait: 5m
schedule_window: 10m
settle_delay: 500ms
step_delay: 1s
# timezone: Asia/Tokyo

target:
  window_title: Antigravity
  click_x: 0.9
  click_y: 0.9

# tmux or osascript
injector: %s
tmux:
  # Optional pane to pin, e.g. "agents:1.0". When empty the window is found by target.window_title.
  target: ""
  buffer: autopilot

transport:
  # Tried in order until one reads back exactly what was written.
  strategies: [%s]
  clear_first: true
  type_fallback: false

# Leave empty to use the built-in prompts. Go templates; {{.Content}} and {{.Task}} are available.
templates:
  continuation: ""
  scheduled_mission: ""
  mission: ""

status_server:
  enabled: false
  host: 127.0.0.1
  port: 8765
`

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, raw)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// TargetConfig locates the agent's input area.
type TargetConfig struct {
	WindowTitle string  `yaml:"window_title"`
	ClickX      float64 `yaml:"click_x"`
	ClickY      float64 `yaml:"click_y"`
}

// TmuxConfig configures the tmux injector and buffer strategy.
type TmuxConfig struct {
	// Target optionally pins a pane such as "agents:1.0". Empty means the
	// window is looked up by target.window_title.
	Target string `yaml:"target"`
	Buffer string `yaml:"buffer"`
}

// TransportConfig selects the transfer strategies.
type TransportConfig struct {
	Strategies   []string `yaml:"strategies"`
	ClearFirst   *bool    `yaml:"clear_first,omitempty"`
	TypeFallback bool     `yaml:"type_fallback"`
}

// ClearFirstEnabled reports whether the medium is emptied before each write.
// It defaults to true.
func (t TransportConfig) ClearFirstEnabled() bool {
	return t.ClearFirst == nil || *t.ClearFirst
}

// TemplatesConfig overrides the dispatched prompts.
type TemplatesConfig struct {
	Continuation     string `yaml:"continuation,omitempty"`
	ScheduledMission string `yaml:"scheduled_mission,omitempty"`
	Mission          string `yaml:"mission,omitempty"`
}

// StatusServerConfig configures the read-only HTTP status server.
type StatusServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// ProjectConfig models .autopilot/config.yaml.
type ProjectConfig struct {
	Version        int                `yaml:"version"`
	CheckpointPath string             `yaml:"checkpoint_path"`
	LogPath        string             `yaml:"log_path"`
	TaskListPath   string             `yaml:"task_list_path"`
	Mode           string             `yaml:"mode"`
	PollInterval   Duration           `yaml:"poll_interval"`
	GraceDelay     Duration           `yaml:"grace_delay"`
	Cooldown       Duration           `yaml:"cooldown"`
	MaxWait        Duration           `yaml:"max_wait"`
	ScheduleWindow Duration           `yaml:"schedule_window"`
	SettleDelay    Duration           `yaml:"settle_delay"`
	StepDelay      Duration           `yaml:"step_delay"`
	Timezone       string             `yaml:"timezone,omitempty"`
	Target         TargetConfig       `yaml:"target"`
	Injector       string             `yaml:"injector"`
	Tmux           TmuxConfig         `yaml:"tmux"`
	Transport      TransportConfig    `yaml:"transport"`
	Templates      TemplatesConfig    `yaml:"templates"`
	StatusServer   StatusServerConfig `yaml:"status_server"`
}

// Config holds the runtime configuration for the autopilot.
type Config struct {
	// ProjectDir is the directory the autopilot watches
	ProjectDir string

	// AutopilotDir is ProjectDir/.autopilot
	AutopilotDir string

	// Path is the config file that was loaded, if any
	Path string

	Project ProjectConfig

	location *time.Location
}

// InitDir creates the .autopilot directory structure in the given project directory.
//
// Structure created:
// .autopilot/
// ├── config.yaml  <- commented defaults, never overwritten
// └── logs/        <- the durable activity log
func InitDir(projectDir string) error {
	dir := filepath.Join(projectDir, Dir)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureProjectConfig(filepath.Join(dir, FileName))
}

// DefaultConfigYAML returns the commented file InitDir writes.
func DefaultConfigYAML() string {
	defaults := defaultProjectConfig()
	return fmt.Sprintf(defaultConfigYAML, defaults.Injector, strings.Join(defaults.Transport.Strategies, ", "))
}

// Load reads the project config. path may be empty to use
// ProjectDir/.autopilot/config.yaml; a missing default file yields defaults.
// Environment overrides are applied before validation.
func Load(projectDir, path string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", projectDir, err)
	}
	cfg := &Config{
		ProjectDir:   abs,
		AutopilotDir: filepath.Join(abs, Dir),
		Path:         path,
		Project:      defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	if strings.TrimSpace(c.Path) != "" {
		return c.Path
	}
	return filepath.Join(c.AutopilotDir, FileName)
}

// LogsDir returns the directory holding the activity log.
func (c *Config) LogsDir() string {
	return filepath.Dir(c.Project.LogPath)
}

// Location returns the zone schedule times are read in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// StatusAddress returns host:port for the status server.
func (c *Config) StatusAddress() string {
	return fmt.Sprintf("%s:%d", c.Project.StatusServer.Host, c.Project.StatusServer.Port)
}

// Templates converts the overrides for the command builder.
func (c *Config) Templates() command.Templates {
	t := c.Project.Templates
	return command.Templates{Continuation: t.Continuation, ScheduledMission: t.ScheduledMission, Mission: t.Mission}
}

// SetMode overrides the run mode, for the CLI flag.
func (c *Config) SetMode(mode string) error {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if !lo.Contains(Modes, mode) {
		return fmt.Errorf("config: mode must be one of %s", strings.Join(Modes, ", "))
	}
	c.Project.Mode = mode
	return nil
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var parsed ProjectConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
		c.Project = parsed
	case errors.Is(err, fs.ErrNotExist) && strings.TrimSpace(c.Path) == "":
		// no project file; defaults apply
	default:
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	c.Project.applyDefaults()
	c.Project.applyEnvOverrides()
	c.Project.normalize(c.ProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	loc, err := loadLocation(c.Project.Timezone)
	if err != nil {
		return fmt.Errorf("config: timezone: %w", err)
	}
	c.location = loc
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func defaultInjector() string {
	if runtime.GOOS == "darwin" {
		return injector.BackendOsascript
	}
	return injector.BackendTmux
}

func defaultStrategies() []string {
	if runtime.GOOS == "darwin" {
		return []string{transport.NameClipboard, transport.NamePbcopy, transport.NameOsascript}
	}
	return []string{transport.NameTmuxBuffer, transport.NameClipboard}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.CheckpointPath == "" {
		pc.CheckpointPath = DefaultCheckpointPath
	}
	if pc.LogPath == "" {
		pc.LogPath = filepath.Join(Dir, "logs", "autopilot.log")
	}
	if pc.TaskListPath == "" {
		pc.TaskListPath = DefaultTaskListPath
	}
	if pc.Mode == "" {
		pc.Mode = ModeStopOnComplete
	}
	setDuration(&pc.PollInterval, 10*time.Second)
	setDuration(&pc.GraceDelay, 5*time.Second)
	setDuration(&pc.Cooldown, 30*time.Second)
	setDuration(&pc.MaxWait, 5*time.Minute)
	setDuration(&pc.ScheduleWindow, 10*time.Minute)
	setDuration(&pc.SettleDelay, 500*time.Millisecond)
	setDuration(&pc.StepDelay, time.Second)
	if pc.Target.WindowTitle == "" {
		pc.Target.WindowTitle = DefaultWindowTitle
	}
	if pc.Target.ClickX == 0 && pc.Target.ClickY == 0 {
		pc.Target.ClickX, pc.Target.ClickY = 0.9, 0.9
	}
	if pc.Injector == "" {
		pc.Injector = defaultInjector()
	}
	if pc.Tmux.Buffer == "" {
		pc.Tmux.Buffer = transport.DefaultTmuxBuffer
	}
	if len(pc.Transport.Strategies) == 0 {
		pc.Transport.Strategies = defaultStrategies()
	}
	if pc.StatusServer.Host == "" {
		pc.StatusServer.Host = DefaultStatusHost
	}
	if pc.StatusServer.Port == 0 {
		pc.StatusServer.Port = DefaultStatusPort
	}
}

func setDuration(d *Duration, fallback time.Duration) {
	if *d == 0 {
		*d = Duration(fallback)
	}
}

func (pc *ProjectConfig) applyEnvOverrides() {
	if mode := strings.TrimSpace(os.Getenv("AUTOPILOT_MODE")); mode != "" {
		pc.Mode = mode
	}
	if raw := strings.TrimSpace(os.Getenv("AUTOPILOT_POLL_INTERVAL")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			pc.PollInterval = Duration(parsed)
		}
	}
	if raw := strings.TrimSpace(os.Getenv("AUTOPILOT_STATUS_PORT")); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && isValidPort(port) {
			pc.StatusServer.Port = port
			pc.StatusServer.Enabled = true
		}
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.CheckpointPath = resolvePath(base, pc.CheckpointPath)
	pc.LogPath = resolvePath(base, pc.LogPath)
	pc.TaskListPath = resolvePath(base, pc.TaskListPath)
	pc.Mode = normalizeName(pc.Mode)
	pc.Injector = normalizeName(pc.Injector)
	pc.Timezone = strings.TrimSpace(pc.Timezone)
	pc.Target.WindowTitle = strings.TrimSpace(pc.Target.WindowTitle)
	pc.Tmux.Target = strings.TrimSpace(pc.Tmux.Target)
	pc.Tmux.Buffer = strings.TrimSpace(pc.Tmux.Buffer)
	pc.Transport.Strategies = lo.Uniq(lo.Map(pc.Transport.Strategies, func(name string, _ int) string {
		return normalizeName(name)
	}))
	pc.StatusServer.Host = strings.TrimSpace(pc.StatusServer.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if !lo.Contains(Modes, pc.Mode) {
		return fmt.Errorf("mode must be one of %s", strings.Join(Modes, ", "))
	}
	if pc.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if pc.GraceDelay < 0 || pc.Cooldown < 0 || pc.SettleDelay < 0 || pc.StepDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if pc.MaxWait <= pc.GraceDelay {
		return fmt.Errorf("max_wait must be longer than grace_delay")
	}
	if pc.ScheduleWindow <= 0 {
		return fmt.Errorf("schedule_window must be positive")
	}
	if pc.Target.WindowTitle == "" {
		return fmt.Errorf("target.window_title is required")
	}
	if !validRatio(pc.Target.ClickX) || !validRatio(pc.Target.ClickY) {
		return fmt.Errorf("target.click_x and target.click_y must be between 0 and 1")
	}
	switch pc.Injector {
	case injector.BackendTmux:
		if pc.Tmux.Target == "" {
			return fmt.Errorf("tmux.target is required for the tmux injector")
		}
	case injector.BackendOsascript:
	default:
		return fmt.Errorf("injector must be '%s' or '%s'", injector.BackendTmux, injector.BackendOsascript)
	}
	if len(pc.Transport.Strategies) == 0 {
		return fmt.Errorf("transport.strategies must name at least one strategy")
	}
	for i, name := range pc.Transport.Strategies {
		if !transport.IsKnown(name) {
			return fmt.Errorf("transport.strategies[%d]: unknown strategy %q (known: %s)", i, name, strings.Join(transport.KnownStrategies, ", "))
		}
	}
	if _, err := command.NewBuilder(command.Templates{
		Continuation:     pc.Templates.Continuation,
		ScheduledMission: pc.Templates.ScheduledMission,
		Mission:          pc.Templates.Mission,
	}); err != nil {
		return fmt.Errorf("templates: %w", err)
	}
	if !isValidPort(pc.StatusServer.Port) {
		return fmt.Errorf("status_server.port must be between 1 and 65535")
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

func validRatio(v float64) bool {
	return v >= 0 && v <= 1
}

func isValidPort(port int) bool {
	return port > 0 && port <= 65535
}

func normalizeName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(DefaultConfigYAML()), 0o644)
}
