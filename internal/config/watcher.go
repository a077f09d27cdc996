package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the .env file for changes and applies credential and
// tuning updates without a restart. Listen addresses and the frontend
// directory are only read at startup and are not reloaded.
type Watcher struct {
	config      *Config
	envPath     string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	lastModTime time.Time
	mu          sync.RWMutex
	onReload    func(*Config)
}

// NewWatcher creates a watcher for the .env file in the config directory.
func NewWatcher(cfg *Config) (*Watcher, error) {
	envPath := filepath.Join(cfg.ConfigPath, ".env")

	w := &Watcher{
		config:   cfg,
		envPath:  envPath,
		stopChan: make(chan struct{}),
	}

	if info, err := os.Stat(envPath); err == nil {
		w.lastModTime = info.ModTime()
	}

	return w, nil
}

// SetReloadCallback registers a function invoked with the updated config
// after a reload changes at least one setting.
func (w *Watcher) SetReloadCallback(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = callback
}

// Start begins watching for .env changes. Falls back to polling if the
// fsnotify watcher cannot be created.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create file watcher, falling back to polling")
		go w.pollForChanges()
		return nil
	}

	w.watcher = watcher

	// Watch the directory, not the file: editors and orchestrators often
	// replace .env atomically, which unlinks the watched inode.
	dir := filepath.Dir(w.envPath)
	if err := watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Failed to watch config directory, falling back to polling")
		watcher.Close()
		w.watcher = nil
		go w.pollForChanges()
		return nil
	}

	go w.watchForChanges()
	log.Info().Str("file", w.envPath).Msg("Watching for configuration changes")
	return nil
}

// Stop halts the watcher.
func (w *Watcher) Stop() {
	select {
	case <-w.stopChan:
		// Already stopped
	default:
		close(w.stopChan)
	}
	if w.watcher != nil {
		w.watcher.Close()
	}
}

func (w *Watcher) watchForChanges() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != ".env" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Brief debounce so we read the file after the writer is done
			time.Sleep(100 * time.Millisecond)
			w.ReloadConfig()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			info, err := os.Stat(w.envPath)
			if err != nil {
				continue
			}
			w.mu.RLock()
			changed := info.ModTime().After(w.lastModTime)
			w.mu.RUnlock()
			if changed {
				w.mu.Lock()
				w.lastModTime = info.ModTime()
				w.mu.Unlock()
				w.ReloadConfig()
			}

		case <-w.stopChan:
			return
		}
	}
}

// ReloadConfig re-reads the .env file and applies changed settings. It is
// also invoked directly on SIGHUP.
func (w *Watcher) ReloadConfig() {
	envMap, err := godotenv.Read(w.envPath)
	if err != nil {
		log.Warn().Err(err).Str("file", w.envPath).Msg("Failed to re-read .env file")
		return
	}

	w.mu.Lock()

	var changes []string

	applyString := func(key string, target *string) {
		value := strings.Trim(envMap[key], "'\"")
		if value != "" && value != *target {
			*target = value
			changes = append(changes, key)
		}
	}
	applyBool := func(key string, target *bool) {
		value := strings.Trim(envMap[key], "'\"")
		if value == "" {
			return
		}
		parsed := value == "true" || value == "1"
		if parsed != *target {
			*target = parsed
			changes = append(changes, key)
		}
	}
	applyInt := func(key string, target *int) {
		value := strings.Trim(envMap[key], "'\"")
		if value == "" {
			return
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid integer on reload")
			return
		}
		if n != *target {
			*target = n
			changes = append(changes, key)
		}
	}
	applyDuration := func(key string, target *time.Duration) {
		value := strings.Trim(envMap[key], "'\"")
		if value == "" {
			return
		}
		d, err := ParseDuration(value)
		if err != nil {
			log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid duration on reload")
			return
		}
		if d != *target {
			*target = d
			changes = append(changes, key)
		}
	}

	cfg := w.config
	applyString("UNIFI_URL", &cfg.UnifiURL)
	applyString("UNIFI_USER", &cfg.UnifiUser)
	applyString("UNIFI_PASS", &cfg.UnifiPass)
	applyString("UNIFI_SITE", &cfg.UnifiSite)
	applyBool("UNIFI_VERIFY_SSL", &cfg.UnifiVerifySSL)
	applyString("UNIFI_FINGERPRINT", &cfg.UnifiFingerprint)

	applyString("INFLUX_URL", &cfg.InfluxURL)
	applyString("INFLUX_DB", &cfg.InfluxDB)
	applyString("INFLUX_USER", &cfg.InfluxUser)
	applyString("INFLUX_PASS", &cfg.InfluxPass)

	applyDuration("POLL_INTERVAL", &cfg.PollInterval)
	applyDuration("POLL_LOOKBACK", &cfg.PollLookback)
	applyDuration("CONNECTION_TIMEOUT", &cfg.ConnectionTimeout)
	applyInt("MAX_ATTEMPTS", &cfg.MaxAttempts)
	applyDuration("RETRY_DELAY", &cfg.RetryDelay)
	applyInt("BATCH_SIZE", &cfg.BatchSize)

	callback := w.onReload
	snapshot := *cfg
	w.mu.Unlock()

	if len(changes) == 0 {
		log.Debug().Str("file", w.envPath).Msg("Configuration file touched but nothing changed")
		return
	}

	log.Info().Strs("changed", changes).Msg("Configuration reloaded")

	if callback != nil {
		go callback(&snapshot)
	}
}
