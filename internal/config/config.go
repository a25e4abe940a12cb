package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database  *dbConfig
	Service   *svcConfig
	Forensics *forensicsConfig
	Inventory *inventoryConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"inspector"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address        string `envconfig:"MEMORY_INSPECTOR_ADDRESS" default:":3443"`
	MetricsAddress string `envconfig:"MEMORY_INSPECTOR_METRICS_ADDRESS" default:":8080"`
	BaseUrl        string `envconfig:"MEMORY_INSPECTOR_BASE_URL" default:"https://localhost:3443"`
	LogLevel       string `envconfig:"MEMORY_INSPECTOR_LOG_LEVEL" default:"info"`
}

type forensicsConfig struct {
	DumpDirectory   string `envconfig:"MEMORY_INSPECTOR_DUMP_DIR" default:"/var/lib/memory-inspector/dumps"`
	SymbolDirectory string `envconfig:"MEMORY_INSPECTOR_SYMBOL_DIR" default:"/var/lib/memory-inspector/symbols"`
	ReportDirectory string `envconfig:"MEMORY_INSPECTOR_REPORT_DIR" default:"/var/lib/memory-inspector/reports"`

	VirshBinary      string `envconfig:"MEMORY_INSPECTOR_VIRSH_BIN" default:"virsh"`
	VolatilityBinary string `envconfig:"MEMORY_INSPECTOR_VOLATILITY_BIN" default:"vol"`
	Dwarf2JSONBinary string `envconfig:"MEMORY_INSPECTOR_DWARF2JSON_BIN" default:"dwarf2json"`

	// Tools holds the default analysis tool set for jobs that do not select
	// their own.
	Tools []string `envconfig:"MEMORY_INSPECTOR_TOOLS" default:"strings,binwalk,foremost,yara,hexdump"`

	CaptureTimeout  time.Duration `envconfig:"MEMORY_INSPECTOR_CAPTURE_TIMEOUT" default:"10m"`
	ToolTimeout     time.Duration `envconfig:"MEMORY_INSPECTOR_TOOL_TIMEOUT" default:"5m"`
	ProbeTimeout    time.Duration `envconfig:"MEMORY_INSPECTOR_PROBE_TIMEOUT" default:"5s"`
	ResolveTimeout  time.Duration `envconfig:"MEMORY_INSPECTOR_RESOLVE_TIMEOUT" default:"2m"`
	CancelGrace     time.Duration `envconfig:"MEMORY_INSPECTOR_CANCEL_GRACE" default:"10s"`
	MaxCaptureBytes int64         `envconfig:"MEMORY_INSPECTOR_MAX_CAPTURE_BYTES" default:"8388608"`
	MinImageBytes   int64         `envconfig:"MEMORY_INSPECTOR_MIN_IMAGE_BYTES" default:"1000000"`
	MaxParallel     int64         `envconfig:"MEMORY_INSPECTOR_MAX_PARALLEL_TOOLS" default:"3"`

	// SymbolSources are tried in order by the precompiled-download strategy.
	SymbolSources        []string `envconfig:"MEMORY_INSPECTOR_SYMBOL_SOURCES" default:"https://downloads.volatilityfoundation.org/volatility3/symbols,https://symbols.ubuntu.com/volatility"`
	SymbolInstallEnabled bool     `envconfig:"MEMORY_INSPECTOR_SYMBOL_INSTALL" default:"false"`

	Retention     time.Duration `envconfig:"MEMORY_INSPECTOR_RETENTION" default:"168h"`
	SweepInterval time.Duration `envconfig:"MEMORY_INSPECTOR_SWEEP_INTERVAL" default:"1h"`
}

type inventoryConfig struct {
	BaseUrl string        `envconfig:"MEMORY_INSPECTOR_INVENTORY_URL" default:"http://localhost:8774"`
	Timeout time.Duration `envconfig:"MEMORY_INSPECTOR_INVENTORY_TIMEOUT" default:"10s"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a config populated with defaults only, ignoring the
// environment. Used by tests.
func NewDefault() *Config {
	cfg := new(Config)
	if err := envconfig.Process("memory_inspector_test_unset", cfg); err != nil {
		panic(err)
	}
	return cfg
}
