package config

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/vodka-export/internal/provider"
	"github.com/snapetech/vodka-export/internal/safeurl"
)

// Frequencies maps the update frequency setting to its period.
var Frequencies = map[int]time.Duration{
	0: 3 * time.Hour,
	1: 6 * time.Hour,
	2: 12 * time.Hour,
	3: 24 * time.Hour,
	4: 48 * time.Hour,
	5: 72 * time.Hour,
}

// DefaultFrequency applies to unknown frequency settings.
const DefaultFrequency = 12 * time.Hour

// Config holds provider, export, refresh and service settings.
// Load from env and/or a .env file.
type Config struct {
	// Provider gateways and session.
	PhoenixURL  string // phoenix REST gateway, e.g. https://ott.example/api_v3/service
	JSONPostURL string // JSON-post gateway used for EPG batches
	KSToken     string
	APIUser     string
	APIPass     string
	DomainID    string
	SiteGUID    string
	Platform    string
	DeviceKey   string // UDID
	UserAgent   string
	// Account credentials; only their presence matters here.
	Username string
	Password string

	// Export
	ExportDir    string
	EPGName      string
	ChannelsName string
	AddonID      string
	AddonName    string
	Lang         string
	GroupTitle   string

	// EPG window in days: FromDays back, ToDays ahead. Zero with EPGWindowSet false means unset.
	EPGFromDays  int
	EPGToDays    int
	EPGWindowSet bool
	EPGChunkSize int // channels per EPG request
	EPGNotify    bool

	// Background refresh
	AutoUpdate     bool
	FrequencyIndex int
	MaxFailures    int    // failures tolerated before FailurePolicy applies
	FailurePolicy  string // pause | resume | stop
	StateDB        string // sqlite path; "" keeps state in memory

	// HTTP
	HTTPTimeout  time.Duration
	RequestRate  float64 // requests per second per host; 0 = unlimited
	RequestBurst int

	// Service surface
	StatusAddr    string // "" disables the status server
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
// If Username or Password are empty, Load tries VODKA_CREDENTIALS_FILE with "Username:" / "Password:" lines.
func Load() *Config {
	c := &Config{
		PhoenixURL:     os.Getenv("VODKA_PHOENIX_URL"),
		JSONPostURL:    os.Getenv("VODKA_JSONPOST_URL"),
		KSToken:        os.Getenv("VODKA_KS_TOKEN"),
		APIUser:        os.Getenv("VODKA_API_USER"),
		APIPass:        os.Getenv("VODKA_API_PASS"),
		DomainID:       os.Getenv("VODKA_DOMAIN_ID"),
		SiteGUID:       os.Getenv("VODKA_SITE_GUID"),
		Platform:       getEnv("VODKA_PLATFORM", provider.DefaultPlatform),
		DeviceKey:      os.Getenv("VODKA_DEVICE_KEY"),
		UserAgent:      getEnv("VODKA_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) vodka-export"),
		Username:       os.Getenv("VODKA_USERNAME"),
		Password:       os.Getenv("VODKA_PASSWORD"),
		ExportDir:      os.Getenv("VODKA_EXPORT_DIR"),
		EPGName:        getEnv("VODKA_EPG_NAME", "epg.xml"),
		ChannelsName:   getEnv("VODKA_CHANNELS_NAME", "channels.m3u"),
		AddonID:        getEnv("VODKA_ADDON_ID", "plugin.video.vodkatv"),
		AddonName:      getEnv("VODKA_ADDON_NAME", "VodkaTV"),
		Lang:           getEnv("VODKA_LANG", "hu"),
		GroupTitle:     getEnv("VODKA_GROUP_TITLE", "vodkatv"),
		EPGChunkSize:   getEnvInt("VODKA_EPG_CHUNK_SIZE", 10),
		EPGNotify:      getEnvBool("VODKA_EPG_NOTIFY", false),
		AutoUpdate:     getEnvBool("VODKA_AUTO_UPDATE", false),
		FrequencyIndex: getEnvInt("VODKA_UPDATE_FREQ", 2),
		MaxFailures:    getEnvInt("VODKA_EPG_FETCH_TRIES", 3),
		FailurePolicy:  strings.ToLower(getEnv("VODKA_FAILURE_POLICY", "resume")),
		StateDB:        os.Getenv("VODKA_STATE_DB"),
		HTTPTimeout:    getEnvDuration("VODKA_HTTP_TIMEOUT", 30*time.Second),
		RequestRate:    getEnvFloat("VODKA_REQUEST_RATE", 4),
		RequestBurst:   getEnvInt("VODKA_REQUEST_BURST", 2),
		StatusAddr:     os.Getenv("VODKA_STATUS_ADDR"),
		LogFile:        os.Getenv("VODKA_LOG_FILE"),
		LogMaxSizeMB:   getEnvInt("VODKA_LOG_MAX_SIZE_MB", 10),
		LogMaxBackups:  getEnvInt("VODKA_LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays:  getEnvInt("VODKA_LOG_MAX_AGE_DAYS", 28),
		LogCompress:    getEnvBool("VODKA_LOG_COMPRESS", false),
	}
	from, okFrom := lookupEnvInt("VODKA_EPG_FROM_DAYS")
	to, okTo := lookupEnvInt("VODKA_EPG_TO_DAYS")
	c.EPGFromDays, c.EPGToDays = from, to
	c.EPGWindowSet = okFrom && okTo
	if c.EPGChunkSize <= 0 {
		c.EPGChunkSize = 10
	}
	if c.MaxFailures < 0 {
		c.MaxFailures = 0
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.Username == "" || c.Password == "" {
		if user, pass, err := readCredentialsFile(os.Getenv("VODKA_CREDENTIALS_FILE")); err == nil {
			if c.Username == "" {
				c.Username = user
			}
			if c.Password == "" {
				c.Password = pass
			}
		}
	}
	return c
}

// readCredentialsFile reads "Username: x" and "Password: x" from path.
func readCredentialsFile(path string) (user, pass string, err error) {
	if path == "" {
		return "", "", os.ErrNotExist
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "Username:") {
			user = strings.TrimSpace(strings.TrimPrefix(line, "Username:"))
		} else if strings.HasPrefix(line, "Password:") {
			pass = strings.TrimSpace(strings.TrimPrefix(line, "Password:"))
		}
	}
	if err := sc.Err(); err != nil {
		return "", "", err
	}
	if user == "" || pass == "" {
		return "", "", fmt.Errorf("credentials file: missing Username or Password")
	}
	return user, pass, nil
}

// HasCredentials reports whether both username and password are set.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

// Frequency is the refresh period for FrequencyIndex.
func (c *Config) Frequency() time.Duration {
	if d, ok := Frequencies[c.FrequencyIndex]; ok {
		return d
	}
	return DefaultFrequency
}

// EPGWindow is the request window at now: FromDays is negated so the
// provider receives a signed offset.
func (c *Config) EPGWindow(now time.Time) provider.EPGWindow {
	return provider.EPGWindow{
		FromDays:       -c.EPGFromDays,
		ToDays:         c.EPGToDays,
		UTCOffsetHours: LocalUTCOffsetHours(now),
	}
}

// LocalUTCOffsetHours is t's zone offset rounded to whole hours.
func LocalUTCOffsetHours(t time.Time) int {
	_, off := t.Zone()
	return int(math.Round(float64(off) / 3600))
}

// InitObj builds the JSON-post session block.
func (c *Config) InitObj() provider.InitObj {
	return provider.InitObj{
		APIUser:  c.APIUser,
		APIPass:  c.APIPass,
		DomainID: c.DomainID,
		SiteGUID: c.SiteGUID,
		Locale:   provider.DefaultLocale(),
		Platform: c.Platform,
		UDID:     c.DeviceKey,
		Token:    c.KSToken,
	}
}

// ExportPath joins the export directory with name; "" when no directory is set.
func (c *Config) ExportPath(name string) string {
	if c.ExportDir == "" || name == "" {
		return ""
	}
	return filepath.Join(c.ExportDir, name)
}

// ValidateGateways normalizes both gateway URLs in place.
func (c *Config) ValidateGateways() error {
	var errs []error
	if u, err := safeurl.Gateway("VODKA_PHOENIX_URL", c.PhoenixURL); err != nil {
		errs = append(errs, err)
	} else {
		c.PhoenixURL = u
	}
	if u, err := safeurl.Gateway("VODKA_JSONPOST_URL", c.JSONPostURL); err != nil {
		errs = append(errs, err)
	} else {
		c.JSONPostURL = u
	}
	return errors.Join(errs...)
}

// ServiceBlockers lists the reasons the background refresh must not start.
// Empty means it may start.
func (c *Config) ServiceBlockers() []string {
	var out []string
	if !c.AutoUpdate {
		out = append(out, "EPG auto update disabled")
	}
	if !c.HasCredentials() {
		out = append(out, "no credentials set")
	}
	if c.KSToken == "" {
		out = append(out, "no KS token set")
	}
	if !c.EPGWindowSet {
		out = append(out, "EPG window (VODKA_EPG_FROM_DAYS, VODKA_EPG_TO_DAYS) not set")
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if n, ok := lookupEnvInt(key); ok {
		return n
	}
	return defaultVal
}

// lookupEnvInt reports false when key is unset, empty or not an integer.
func lookupEnvInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
