package ignis

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Options holds the engine configuration. The engine copies it at construction.
type Options struct {
	General GeneralOptions `yaml:"general"`
	HTTP    HTTPOptions    `yaml:"http"`
	HTTPS   HTTPSOptions   `yaml:"https"`

	// Logger receives engine logs; nil discards them.
	Logger *zap.Logger `yaml:"-"`
	// OnEvent receives operational notifications such as configuration errors.
	OnEvent func(Event) `yaml:"-"`
}

// GeneralOptions apply to every listener.
type GeneralOptions struct {
	MaxHeaderSize        int           `yaml:"max_header_size"`        // Maximum request header block in bytes
	PoolCapacity         int           `yaml:"pool_capacity"`          // Context pool capacity, a power of two
	MaxConnections       int           `yaml:"max_connections"`        // Concurrent connection workers (0 for the pool default)
	MaxConcurrentStreams uint32        `yaml:"max_concurrent_streams"` // Maximum concurrent HTTP/2 streams per connection
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`       // Grace period for in-flight requests on Stop
	ReadHeaderTimeout    time.Duration `yaml:"read_header_timeout"`    // Maximum time to read a request header block
	MaxBodyDrain         int64         `yaml:"max_body_drain"`         // Unread request body bytes drained to keep a connection
	EnableH2             bool          `yaml:"enable_h2"`              // Serve HTTP/2 (ALPN h2 and cleartext prior knowledge)
	HandleSignals        bool          `yaml:"handle_signals"`         // Stop on SIGINT/SIGTERM
}

// HTTPOptions configure the cleartext listener.
type HTTPOptions struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	KeepAliveTimeout time.Duration `yaml:"keep_alive_timeout"`
}

// HTTPSOptions configure the TLS listener.
type HTTPSOptions struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Certificate      Certificate   `yaml:"certificate"`
	KeepAliveTimeout time.Duration `yaml:"keep_alive_timeout"`
}

// Certificate holds PEM encoded material or paths to PEM files.
type Certificate struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// EventType classifies an Event.
type EventType int

const (
	// EventConfigError reports a configuration problem that did not abort construction.
	EventConfigError EventType = iota + 1
	// EventListening reports a listener that started accepting.
	EventListening
	// EventStopped reports a listener that finished stopping.
	EventStopped
	// EventSignal reports a received termination signal.
	EventSignal
)

func (t EventType) String() string {
	switch t {
	case EventConfigError:
		return "config_error"
	case EventListening:
		return "listening"
	case EventStopped:
		return "stopped"
	case EventSignal:
		return "signal"
	default:
		return "unknown"
	}
}

// Event is an operational notification.
type Event struct {
	Type   EventType
	Detail string
}

// DefaultOptions returns Options with sensible default values.
func DefaultOptions() Options {
	return Options{
		General: GeneralOptions{
			MaxHeaderSize:        8192,
			PoolCapacity:         1024,
			MaxConcurrentStreams: 250,
			ShutdownTimeout:      10 * time.Second,
			ReadHeaderTimeout:    10 * time.Second,
			MaxBodyDrain:         256 << 10,
			EnableH2:             true,
			HandleSignals:        true,
		},
		HTTP: HTTPOptions{
			Enabled:          true,
			Host:             "localhost",
			Port:             80,
			KeepAliveTimeout: 5 * time.Second,
		},
		HTTPS: HTTPSOptions{
			Enabled:          false,
			Host:             "localhost",
			Port:             443,
			KeepAliveTimeout: 5 * time.Second,
		},
	}
}

// ParseOptions decodes YAML on top of DefaultOptions.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("ignis: parse options: %w", err)
	}
	return opts, nil
}

// LoadOptions reads a YAML options file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is operator supplied
	if err != nil {
		return Options{}, fmt.Errorf("ignis: load options: %w", err)
	}
	return ParseOptions(data)
}

// normalize fills zero values that have no meaningful zero.
func (o *Options) normalize() {
	d := DefaultOptions()
	if o.General.MaxHeaderSize <= 0 {
		o.General.MaxHeaderSize = d.General.MaxHeaderSize
	}
	if o.General.MaxConcurrentStreams == 0 {
		o.General.MaxConcurrentStreams = d.General.MaxConcurrentStreams
	}
	if o.General.ShutdownTimeout <= 0 {
		o.General.ShutdownTimeout = d.General.ShutdownTimeout
	}
	if o.General.MaxBodyDrain < 0 {
		o.General.MaxBodyDrain = 0
	}
	if o.HTTP.KeepAliveTimeout <= 0 {
		o.HTTP.KeepAliveTimeout = d.HTTP.KeepAliveTimeout
	}
	if o.HTTPS.KeepAliveTimeout <= 0 {
		o.HTTPS.KeepAliveTimeout = d.HTTPS.KeepAliveTimeout
	}
	if o.HTTP.Host == "" {
		o.HTTP.Host = d.HTTP.Host
	}
	if o.HTTPS.Host == "" {
		o.HTTPS.Host = d.HTTPS.Host
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func (o *HTTPOptions) addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o *HTTPSOptions) addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// tlsConfig builds the server TLS configuration. ALPN offers h2 only when enableH2 is set.
func (c Certificate) tlsConfig(enableH2 bool) (*tls.Config, error) {
	certPEM, err := readPEM(c.Cert)
	if err != nil {
		return nil, fmt.Errorf("ignis: certificate: %w", err)
	}
	keyPEM, err := readPEM(c.Key)
	if err != nil {
		return nil, fmt.Errorf("ignis: certificate key: %w", err)
	}
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("ignis: certificate: %w", err)
	}
	protos := []string{"http/1.1"}
	if enableH2 {
		protos = []string{"h2", "http/1.1"}
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		NextProtos:   protos,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func readPEM(v string) ([]byte, error) {
	if v == "" {
		return nil, fmt.Errorf("empty")
	}
	if strings.Contains(v, "-----BEGIN") {
		return []byte(v), nil
	}
	return os.ReadFile(v) // #nosec G304 - path is operator supplied
}
