// Package config loads netsnmp client configuration from YAML or JSON files
// validated against a CUE schema.
//
// The embedded ClientSchema describes the snmp, transport, worker_pool and
// logging sections and supplies a default for every field, so a manager
// created without a config file still answers every lookup:
//
//	manager, err := config.NewManager(config.Options{
//		SchemaContent:         config.ClientSchema,
//		ConfigPath:            "netsnmp.yaml",
//		EnableConfigHotReload: true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer manager.Close()
//
//	target, _ := manager.GetString("snmp.target")
//	retries, _ := manager.GetInt("snmp.retries")
//
// # Environment Variables
//
// Config files may reference the environment as $VAR, ${VAR} or
// ${VAR:-default}:
//
//	snmp:
//	  target: "${SNMP_TARGET:-127.0.0.1}"
//	  community: $SNMP_COMMUNITY
//
// # Hot Reload
//
// With hot reload enabled, writes to the watched files reload and revalidate
// the configuration. A reload that fails validation leaves the previous
// configuration in place and is reported to OnConfigChange callbacks:
//
//	manager.OnConfigChange(func(err error) {
//		if err != nil {
//			log.Printf("config reload failed: %v", err)
//		}
//	})
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/encoding/yaml"
	"github.com/fsnotify/fsnotify"

	"github.com/geekxflood/netsnmp/logging"
)

// ClientSchema is the CUE schema for netsnmp client configuration.
//
//go:embed schema.cue
var ClientSchema string

// Provider gives typed access to configuration values by dot-separated
// path ("snmp.port"). When a path is absent the first default is returned;
// without one the lookup fails.
type Provider interface {
	GetString(path string, defaultValue ...string) (string, error)
	GetInt(path string, defaultValue ...int) (int, error)
	GetFloat(path string, defaultValue ...float64) (float64, error)
	GetBool(path string, defaultValue ...bool) (bool, error)

	// GetDuration parses a string value with time.ParseDuration.
	GetDuration(path string, defaultValue ...time.Duration) (time.Duration, error)

	GetStringSlice(path string, defaultValue ...[]string) ([]string, error)

	// GetMap returns a copy of the section at path. The empty path returns
	// the whole configuration.
	GetMap(path string) (map[string]any, error)

	Exists(path string) bool

	// Validate checks the current configuration against the schema.
	Validate() error
}

// Manager is a Provider that can reload its configuration.
type Manager interface {
	Provider

	// StartHotReload watches the files selected in Options until ctx ends
	// or StopHotReload is called.
	StartHotReload(ctx context.Context) error
	StopHotReload()

	// OnConfigChange registers a callback run after every hot reload with
	// its outcome. Callbacks run on the watcher goroutine.
	OnConfigChange(callback func(error))

	// Reload rereads the schema and config file. On failure the current
	// configuration is kept.
	Reload() error

	Close() error
}

// Validator checks configuration data against a schema.
type Validator interface {
	ValidateConfig(config map[string]any) error
	ValidateFile(configPath string) error
}

// SchemaLoader compiles CUE schemas and extracts their defaults.
type SchemaLoader interface {
	// LoadSchema loads a .cue file or a directory holding one package.
	LoadSchema(schemaPath string) error
	LoadSchemaContent(schemaContent string) error
	GetDefaults() (map[string]any, error)
	GetValidator() (Validator, error)
}

// Options configures NewManager. Exactly one of SchemaPath and
// SchemaContent must be set.
type Options struct {
	SchemaPath    string
	SchemaContent string

	// ConfigPath is a .yaml, .yml or .json file. Empty means schema
	// defaults only.
	ConfigPath string

	// EnableSchemaHotReload requires SchemaPath.
	EnableSchemaHotReload bool
	EnableConfigHotReload bool

	// HotReloadContext bounds hot reload. Nil means context.Background().
	HotReloadContext context.Context

	// Logger receives reload diagnostics. Nil selects a component logger.
	Logger logging.Logger
}

type cueSchemaLoader struct {
	mu          sync.RWMutex
	ctx         *cue.Context
	schemaValue cue.Value
}

// NewSchemaLoader returns an empty CUE schema loader.
func NewSchemaLoader() SchemaLoader {
	return &cueSchemaLoader{ctx: cuecontext.New()}
}

func (l *cueSchemaLoader) LoadSchema(schemaPath string) error {
	cleanPath, err := absPath(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to resolve schema path %s: %w", schemaPath, err)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("schema path %s does not exist: %w", cleanPath, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var value cue.Value
	if info.IsDir() {
		value, err = l.loadFromDirectory(cleanPath)
	} else {
		value, err = l.loadFromFile(cleanPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load CUE schema from %s: %w", cleanPath, err)
	}

	l.schemaValue = value
	return nil
}

func (l *cueSchemaLoader) LoadSchemaContent(schemaContent string) error {
	if strings.TrimSpace(schemaContent) == "" {
		return errors.New("schema content cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	value := l.ctx.CompileString(schemaContent, cue.Filename("inline-schema"))
	if err := value.Err(); err != nil {
		return fmt.Errorf("failed to compile CUE schema content: %w", err)
	}
	l.schemaValue = value
	return nil
}

func (l *cueSchemaLoader) loadFromFile(filePath string) (cue.Value, error) {
	content, err := safeReadFile(filePath)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read schema file: %w", err)
	}
	value := l.ctx.CompileBytes(content, cue.Filename(filePath))
	if err := value.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to compile CUE schema: %w", err)
	}
	return value, nil
}

func (l *cueSchemaLoader) loadFromDirectory(dirPath string) (cue.Value, error) {
	instances := load.Instances([]string{dirPath}, &load.Config{Dir: dirPath})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE files found in directory %s", dirPath)
	}
	for _, inst := range instances {
		if inst.Err != nil {
			return cue.Value{}, fmt.Errorf("failed to load CUE files: %w", inst.Err)
		}
	}
	value := l.ctx.BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to build CUE schema: %w", err)
	}
	return value, nil
}

// GetDefaults unifies the schema with an empty configuration and decodes
// the result.
func (l *cueSchemaLoader) GetDefaults() (map[string]any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.schemaValue.Exists() {
		return nil, errors.New("no schema loaded")
	}

	unified := l.schemaValue.Unify(l.ctx.Encode(map[string]any{}))
	if err := unified.Err(); err != nil {
		return nil, fmt.Errorf("failed to unify schema with empty config: %w", err)
	}
	var defaults map[string]any
	if err := unified.Decode(&defaults); err != nil {
		return nil, fmt.Errorf("failed to decode defaults: %w", err)
	}
	return defaults, nil
}

func (l *cueSchemaLoader) GetValidator() (Validator, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.schemaValue.Exists() {
		return nil, errors.New("no schema loaded")
	}
	return &cueValidator{ctx: l.ctx, schemaValue: l.schemaValue}, nil
}

type cueValidator struct {
	ctx         *cue.Context
	schemaValue cue.Value
}

func (v *cueValidator) ValidateConfig(config map[string]any) error {
	value := v.ctx.Encode(config)
	if err := value.Err(); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	unified := v.schemaValue.Unify(value)
	if err := unified.Err(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

func (v *cueValidator) ValidateFile(configPath string) error {
	config, err := readConfigFile(configPath)
	if err != nil {
		return err
	}
	return v.ValidateConfig(config)
}

// configLoader holds one loaded configuration: the user file merged over
// the schema defaults.
type configLoader struct {
	mu           sync.RWMutex
	schemaLoader SchemaLoader
	validator    Validator
	mergedData   map[string]any
}

func newConfigLoader(schemaLoader SchemaLoader) (*configLoader, error) {
	validator, err := schemaLoader.GetValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to get validator: %w", err)
	}
	return &configLoader{schemaLoader: schemaLoader, validator: validator}, nil
}

func (l *configLoader) LoadConfig(configPath string) error {
	defaults, err := l.schemaLoader.GetDefaults()
	if err != nil {
		return fmt.Errorf("failed to get schema defaults: %w", err)
	}

	userConfig := map[string]any{}
	if configPath != "" {
		if userConfig, err = readConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		if err := l.validator.ValidateConfig(userConfig); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.mergedData = mergeConfigs(defaults, userConfig)
	return nil
}

func (l *configLoader) GetValue(path string) (any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return getValueAtPath(l.mergedData, path)
}

func (l *configLoader) mergedConfig() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyMap(l.mergedData)
}

// readConfigFile reads a YAML or JSON file after environment substitution.
func readConfigFile(configPath string) (map[string]any, error) {
	cleanPath, err := absPath(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %s: %w", configPath, err)
	}
	content, err := safeReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}
	content = expandEnvironmentVariables(content)
	if err := validateFileContent(content, cleanPath); err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	var value cue.Value
	switch ext := strings.ToLower(filepath.Ext(cleanPath)); ext {
	case ".yaml", ".yml":
		file, err := yaml.Extract(cleanPath, content)
		if err != nil {
			return nil, fmt.Errorf("failed to extract YAML config: %w", err)
		}
		value = ctx.BuildFile(file)
	case ".json":
		value = ctx.CompileBytes(content, cue.Filename(cleanPath))
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	var config map[string]any
	if err := value.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", cleanPath, err)
	}
	return config, nil
}

// expandEnvironmentVariables substitutes ${VAR:-default} first and then
// $VAR and ${VAR}. Unset variables without a default expand to "".
func expandEnvironmentVariables(content []byte) []byte {
	return []byte(os.ExpandEnv(expandWithDefaults(string(content))))
}

func expandWithDefaults(content string) string {
	var b strings.Builder
	rest := content
	for {
		start := strings.Index(rest, "${")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := rest[start+2 : end]
		name, def, ok := strings.Cut(expr, ":-")
		if !ok {
			b.WriteString(rest[:end+1])
			rest = rest[end+1:]
			continue
		}
		value := os.Getenv(name)
		if value == "" {
			value = def
		}
		b.WriteString(rest[:start])
		b.WriteString(value)
		rest = rest[end+1:]
	}
	b.WriteString(rest)
	return b.String()
}

// validateFileContent rejects empty and comment-only files.
func validateFileContent(content []byte, filePath string) error {
	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return fmt.Errorf("configuration file %s is empty", filePath)
	}
	for line := range strings.SplitSeq(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return nil
		}
	}
	return fmt.Errorf("configuration file %s contains only comments", filePath)
}

// mergeConfigs overlays user on defaults, merging nested maps.
func mergeConfigs(defaults, user map[string]any) map[string]any {
	result := make(map[string]any, len(defaults))
	for key, value := range defaults {
		result[key] = value
	}
	for key, value := range user {
		if existing, ok := result[key].(map[string]any); ok {
			if userMap, ok := value.(map[string]any); ok {
				result[key] = mergeConfigs(existing, userMap)
				continue
			}
		}
		result[key] = value
	}
	return result
}

func getValueAtPath(data map[string]any, path string) (any, error) {
	if path == "" {
		return data, nil
	}

	parts := strings.Split(path, ".")
	current := data
	for i, part := range parts {
		value, ok := current[part]
		if !ok {
			return nil, fmt.Errorf("path %s not found", path)
		}
		if i == len(parts)-1 {
			return value, nil
		}
		next, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %s: cannot navigate through non-map value", path)
		}
		current = next
	}
	return nil, fmt.Errorf("path %s not found", path)
}

func copyMap(original map[string]any) map[string]any {
	result := make(map[string]any, len(original))
	for key, value := range original {
		if m, ok := value.(map[string]any); ok {
			result[key] = copyMap(m)
		} else {
			result[key] = value
		}
	}
	return result
}

// hotReloader runs reload after writes to the watched files.
type hotReloader struct {
	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	cancel    context.CancelFunc
	done      chan struct{}
	paths     []string
	reload    func() error
	logger    logging.Logger
	callbacks []func(error)
	cbMu      sync.RWMutex
}

func newHotReloader(paths []string, reload func() error, logger logging.Logger) (*hotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &hotReloader{watcher: watcher, paths: paths, reload: reload, logger: logger}, nil
}

func (h *hotReloader) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return errors.New("hot reload already started")
	}
	for _, p := range h.paths {
		if err := h.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.watchFiles(watchCtx, h.done)
	return nil
}

// Stop ends the watch loop and closes the watcher.
func (h *hotReloader) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if err := h.watcher.Close(); err != nil {
		h.logger.Debug("failed to close file watcher", "error", err)
	}
}

func (h *hotReloader) OnChange(callback func(error)) {
	h.cbMu.Lock()
	defer h.cbMu.Unlock()
	h.callbacks = append(h.callbacks, callback)
}

func (h *hotReloader) notify(err error) {
	h.cbMu.RLock()
	callbacks := append(([]func(error))(nil), h.callbacks...)
	h.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(err)
		}
	}
}

func (h *hotReloader) watchFiles(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.handleFileChange(ctx, event.Name)
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.notify(fmt.Errorf("file watcher error: %w", err))
		case <-ctx.Done():
			return
		}
	}
}

func (h *hotReloader) handleFileChange(ctx context.Context, name string) {
	// let the writer finish
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return
	}

	if err := h.reload(); err != nil {
		h.logger.Warn("configuration reload failed", "file", name, "error", err)
		h.notify(fmt.Errorf("configuration reload failed: %w", err))
		return
	}
	h.logger.Info("configuration reloaded", "file", name)
	h.notify(nil)
}

type configManager struct {
	mu           sync.RWMutex
	options      Options
	logger       logging.Logger
	schemaLoader SchemaLoader
	configLoader *configLoader
	hotReloader  *hotReloader
	callbacks    []func(error)
}

func validateOptions(options Options) error {
	if options.SchemaPath == "" && options.SchemaContent == "" {
		return errors.New("either schema path or schema content is required")
	}
	if options.SchemaPath != "" && options.SchemaContent != "" {
		return errors.New("cannot specify both schema path and schema content")
	}
	if options.EnableSchemaHotReload && options.SchemaContent != "" {
		return errors.New("schema hot reload is not supported when using schema content")
	}
	return nil
}

func loadSchema(options Options) (SchemaLoader, error) {
	schemaLoader := NewSchemaLoader()
	if options.SchemaContent != "" {
		if err := schemaLoader.LoadSchemaContent(options.SchemaContent); err != nil {
			return nil, fmt.Errorf("failed to load schema content: %w", err)
		}
		return schemaLoader, nil
	}
	if err := schemaLoader.LoadSchema(options.SchemaPath); err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return schemaLoader, nil
}

func loadConfig(schemaLoader SchemaLoader, configPath string) (*configLoader, error) {
	loader, err := newConfigLoader(schemaLoader)
	if err != nil {
		return nil, err
	}
	if err := loader.LoadConfig(configPath); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return loader, nil
}

// NewManager loads the schema and config file and starts hot reload when
// enabled. Close releases the file watcher.
func NewManager(options Options) (Manager, error) {
	if err := validateOptions(options); err != nil {
		return nil, err
	}

	schemaLoader, err := loadSchema(options)
	if err != nil {
		return nil, err
	}
	configLoader, err := loadConfig(schemaLoader, options.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.NewComponentLogger("config", "config")
	}
	m := &configManager{
		options:      options,
		logger:       logger,
		schemaLoader: schemaLoader,
		configLoader: configLoader,
	}

	if options.EnableSchemaHotReload || options.EnableConfigHotReload {
		ctx := options.HotReloadContext
		if ctx == nil {
			ctx = context.Background()
		}
		if err := m.StartHotReload(ctx); err != nil {
			return nil, fmt.Errorf("failed to start hot reload: %w", err)
		}
	}
	return m, nil
}

func (m *configManager) value(path string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configLoader.GetValue(path)
}

func (m *configManager) GetString(path string, defaultValue ...string) (string, error) {
	value, err := m.value(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return "", err
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("value at path %s is not a string: %T", path, value)
}

func (m *configManager) GetInt(path string, defaultValue ...int) (int, error) {
	value, err := m.value(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return 0, err
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("value at path %s is not an integer: %T", path, value)
	}
}

func (m *configManager) GetFloat(path string, defaultValue ...float64) (float64, error) {
	value, err := m.value(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return 0, err
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("value at path %s is not a float: %T", path, value)
	}
}

func (m *configManager) GetBool(path string, defaultValue ...bool) (bool, error) {
	value, err := m.value(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return false, err
	}
	if b, ok := value.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("value at path %s is not a boolean: %T", path, value)
}

func (m *configManager) GetDuration(path string, defaultValue ...time.Duration) (time.Duration, error) {
	value, err := m.value(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return 0, err
	}
	s, ok := value.(string)
	if !ok {
		return 0, fmt.Errorf("value at path %s is not a duration string: %T", path, value)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration at path %s: %w", path, err)
	}
	return d, nil
}

func (m *configManager) GetStringSlice(path string, defaultValue ...[]string) ([]string, error) {
	value, err := m.value(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return nil, err
	}
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		result := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item at index %d in path %s is not a string: %T", i, path, item)
			}
			result[i] = s
		}
		return result, nil
	default:
		return nil, fmt.Errorf("value at path %s is not a string slice: %T", path, value)
	}
}

func (m *configManager) GetMap(path string) (map[string]any, error) {
	value, err := m.value(path)
	if err != nil {
		return nil, err
	}
	if mv, ok := value.(map[string]any); ok {
		return copyMap(mv), nil
	}
	return nil, fmt.Errorf("value at path %s is not a map: %T", path, value)
}

func (m *configManager) Exists(path string) bool {
	_, err := m.value(path)
	return err == nil
}

func (m *configManager) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	validator, err := m.schemaLoader.GetValidator()
	if err != nil {
		return fmt.Errorf("failed to get validator: %w", err)
	}
	return validator.ValidateConfig(m.configLoader.mergedConfig())
}

func (m *configManager) StartHotReload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hotReloader != nil {
		return errors.New("hot reload already started")
	}

	var paths []string
	if m.options.EnableConfigHotReload && m.options.ConfigPath != "" {
		paths = append(paths, m.options.ConfigPath)
	}
	if m.options.EnableSchemaHotReload && m.options.SchemaPath != "" {
		paths = append(paths, m.options.SchemaPath)
	}
	if len(paths) == 0 {
		return errors.New("no files to watch: enable config or schema hot reload with a file path")
	}

	h, err := newHotReloader(paths, m.Reload, m.logger)
	if err != nil {
		return err
	}
	for _, cb := range m.callbacks {
		h.OnChange(cb)
	}
	if err := h.Start(ctx); err != nil {
		h.Stop()
		return err
	}
	m.hotReloader = h
	return nil
}

func (m *configManager) StopHotReload() {
	m.mu.Lock()
	h := m.hotReloader
	m.hotReloader = nil
	m.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}

func (m *configManager) OnConfigChange(callback func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callbacks = append(m.callbacks, callback)
	if m.hotReloader != nil {
		m.hotReloader.OnChange(callback)
	}
}

func (m *configManager) Reload() error {
	schemaLoader, err := loadSchema(m.options)
	if err != nil {
		return err
	}
	configLoader, err := loadConfig(schemaLoader, m.options.ConfigPath)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemaLoader = schemaLoader
	m.configLoader = configLoader
	return nil
}

func (m *configManager) Close() error {
	m.StopHotReload()
	return nil
}

// LoggingConfig reads the logging section.
func LoggingConfig(p Provider) (logging.Config, error) {
	defaults := logging.DefaultConfig()
	cfg := logging.Config{}

	var err error
	if cfg.Level, err = p.GetString("logging.level", defaults.Level); err != nil {
		return logging.Config{}, err
	}
	if cfg.Format, err = p.GetString("logging.format", defaults.Format); err != nil {
		return logging.Config{}, err
	}
	if cfg.Output, err = p.GetString("logging.output", defaults.Output); err != nil {
		return logging.Config{}, err
	}
	if cfg.AddSource, err = p.GetBool("logging.add_source", defaults.AddSource); err != nil {
		return logging.Config{}, err
	}
	return cfg, nil
}

func absPath(path string) (string, error) {
	cleanPath := filepath.Clean(path)
	if filepath.IsAbs(cleanPath) {
		return cleanPath, nil
	}
	return filepath.Abs(cleanPath)
}

// maxFileSize bounds schema and config files.
const maxFileSize = 10 * 1024 * 1024

// safeReadFile reads a regular file of at most maxFileSize bytes, refusing
// traversal and well-known system paths.
func safeReadFile(filePath string) ([]byte, error) {
	if filePath == "" {
		return nil, errors.New("file path cannot be empty")
	}

	cleanPath := filepath.Clean(filePath)
	if strings.Contains(cleanPath, "..") {
		return nil, errors.New("invalid file path: contains directory traversal")
	}
	if filepath.IsAbs(cleanPath) {
		for _, sysDir := range []string{"/etc/passwd", "/etc/shadow", "/proc/", "/sys/"} {
			if strings.HasPrefix(cleanPath, sysDir) {
				return nil, fmt.Errorf("access to system directory not allowed: %s", sysDir)
			}
		}
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("file validation failed: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.New("path must be a regular file")
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	content, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}
