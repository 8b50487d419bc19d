package api

import "time"

type Config struct {
	HTTPAddr        string        `envconfig:"WSD_HTTP_ADDR" default:"0.0.0.0:8080"`
	DBDSN           string        `envconfig:"WSD_DB_DSN" required:"true"`
	MetricsAddr     string        `envconfig:"WSD_METRICS_ADDR" default:"0.0.0.0:9090"`
	LogLevel        string        `envconfig:"WSD_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"WSD_SHUTDOWN_TIMEOUT" default:"30s"`

	// SubsystemEnabled gates host assignment and the control channel.
	// With it off, startups prepare storage and stop; nothing is
	// launched.
	SubsystemEnabled  bool          `envconfig:"WSD_SUBSYSTEM_ENABLED" default:"true"`
	CapacityThreshold int           `envconfig:"WSD_HOST_CAPACITY" default:"20"`
	MaxLaunchAttempts int           `envconfig:"WSD_MAX_LAUNCH_ATTEMPTS" default:"30"`
	LaunchBackoff     time.Duration `envconfig:"WSD_LAUNCH_BACKOFF" default:"2s"`

	// ContentRoot holds per-question starter files, laid out as
	// <course>/<question>/workspace/.
	ContentRoot string `envconfig:"WSD_CONTENT_ROOT" required:"true"`
	// WorkDir holds archives under construction and downloads streamed
	// from hosts.
	WorkDir string `envconfig:"WSD_WORK_DIR" default:"/var/tmp/workspaced"`

	ObjectStoreRoot string `envconfig:"WSD_OBJECT_STORE_ROOT" required:"true"`
	FilesystemRoot  string `envconfig:"WSD_FILESYSTEM_ROOT" required:"true"`
	FilesystemUID   int    `envconfig:"WSD_FILESYSTEM_UID" default:"-1"`
	FilesystemGID   int    `envconfig:"WSD_FILESYSTEM_GID" default:"-1"`
	FetchFanOut     int    `envconfig:"WSD_FETCH_FANOUT" default:"8"`

	ControlTimeout time.Duration `envconfig:"WSD_CONTROL_TIMEOUT" default:"60s"`
}
