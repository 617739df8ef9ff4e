package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/facebookgo/stackerr"

	"github.com/lfskit/lfscache/internal/util"
	"github.com/lfskit/lfscache/log"
)

type InputConfig struct {
	Instances      int    `json:"instances"`
	Workers        int    `json:"workers"` // churn goroutines per instance
	Duration       string `json:"duration"`
	ScanTarget     int64  `json:"scan-target"`
	HighWatermark  int64  `json:"high-watermark"` // reclaim when Count exceeds it
	PressureEvery  string `json:"pressure-every"`
	ReportEvery    string `json:"report-every"`
	LogDestination string `json:"log-destination"` // Stdout, stderr, or filepath.
	LogLevel       string `json:"log-level"`
}

func DefaultInputConfig() *InputConfig {
	return &InputConfig{
		Instances:      4,
		Workers:        2,
		Duration:       "30s",
		ScanTarget:     4096,
		HighWatermark:  64 * 1024,
		PressureEvery:  "100ms",
		ReportEvery:    "5s",
		LogDestination: "stderr",
		LogLevel:       "info",
	}
}

const usage = `
Config values merge rules:
1) config file value overrides default
2) command line value overrides any
Options:
`

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "%s", usage)
		flag.PrintDefaults()
	}
}

type Config struct {
	Instances      int
	Workers        int
	Duration       time.Duration
	ScanTarget     int64
	HighWatermark  int64
	PressureEvery  time.Duration
	ReportEvery    time.Duration
	LogDestination io.Writer
	LogLevel       log.Level
}

// config parses command flags, reads config file if any, returns merged config.
func config() *Config {
	l := log.NewLogger(log.DebugLevel, os.Stderr)
	flg := parseFlags()
	fileConf := DefaultInputConfig()
	if flg.ConfigPath != "" {
		data, err := ioutil.ReadFile(flg.ConfigPath)
		if err != nil {
			l.Fatal("Config file read error: ", err)
		}
		err = json.Unmarshal(data, fileConf)
		if err != nil {
			l.Fatal("Config parse error: ", err)
		}
	}
	mergeConfigs(fileConf, &flg.InputConfig)
	conf, err := parseConfig(fileConf)
	if err != nil {
		l.Fatal("Config error: ", err)
	}
	return conf
}

func parseConfig(in *InputConfig) (*Config, error) {
	parsed := &Config{
		Instances:     in.Instances,
		Workers:       in.Workers,
		ScanTarget:    in.ScanTarget,
		HighWatermark: in.HighWatermark,
	}
	if parsed.Instances <= 0 || parsed.Workers <= 0 {
		return nil, stackerr.Newf("instances and workers must be positive")
	}
	var err error
	parsed.LogDestination, err = logDestination(in.LogDestination)
	if err != nil {
		return nil, stackerr.Newf("log destination open error: %v", err)
	}
	parsed.LogLevel, err = log.LevelFromString(strings.ToUpper(in.LogLevel))
	if err != nil {
		return nil, stackerr.Newf("log level parse error: %v", err)
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"duration", in.Duration, &parsed.Duration},
		{"pressure-every", in.PressureEvery, &parsed.PressureEvery},
		{"report-every", in.ReportEvery, &parsed.ReportEvery},
	} {
		*d.dst, err = time.ParseDuration(d.raw)
		if err != nil {
			return nil, stackerr.Newf("%s parse error: %v", d.name, err)
		}
	}
	return parsed, nil
}

type Flags struct {
	ConfigPath string
	InputConfig
}

func parseFlags() Flags {
	var f Flags
	flag.StringVar(&f.ConfigPath, "config", "", "path to json config")

	def := DefaultInputConfig()
	usage := func(usage string, defVal interface{}) string {
		if _, ok := defVal.(string); ok {
			usage += fmt.Sprintf(" (default %q)", defVal)
		} else {
			usage += fmt.Sprintf(" (default %v)", defVal)
		}
		return usage
	}
	flag.IntVar(&f.Instances, "instances", 0, usage("mounted instance num", def.Instances))
	flag.IntVar(&f.Workers, "workers", 0, usage("churn workers per instance", def.Workers))
	flag.StringVar(&f.Duration, "duration", "", usage("run duration", def.Duration))
	flag.Int64Var(&f.ScanTarget, "scan-target", 0, usage("objects requested per scan", def.ScanTarget))
	flag.Int64Var(&f.HighWatermark, "high-watermark", 0, usage("reclaimable count that triggers scans", def.HighWatermark))
	flag.StringVar(&f.PressureEvery, "pressure-every", "", usage("pressure poll period", def.PressureEvery))
	flag.StringVar(&f.ReportEvery, "report-every", "", usage("metrics report period", def.ReportEvery))
	flag.StringVar(&f.LogDestination, "log-destination", "", usage("log destination: stderr, stdout or file path", def.LogDestination))
	flag.StringVar(&f.LogLevel, "log-level", "", usage("log level: debug, info, warn, error, fatal", def.LogLevel))
	flag.Parse()
	return f
}

func logDestination(dest string) (w io.Writer, err error) {
	switch strings.ToLower(dest) {
	case "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		w, err = os.OpenFile(dest, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	}
	return
}

// mergeConfigs overwrite def values with non zero override values
func mergeConfigs(def, override *InputConfig) {
	defVal := reflect.ValueOf(def).Elem()
	overrideVal := reflect.ValueOf(override).Elem()
	for i, end := 0, defVal.NumField(); i < end; i++ {
		overrideVal := overrideVal.Field(i)
		if !util.IsZeroVal(overrideVal) {
			defVal.Field(i).Set(overrideVal)
		}
	}
}
