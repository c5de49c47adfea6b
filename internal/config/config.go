// Package config loads the federator's runtime configuration: the
// routing-service URL, streaming timeout, per-variant pool sizes, temp
// directory, and slot-pool fallback capacities. Everything comes from
// the environment; the federator is a single stateless process with no
// persisted config file to version.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the federator's resolved runtime configuration.
type Config struct {
	RoutingServiceURL string
	TmpDir            string

	StreamingTimeout time.Duration

	ThreadsDataselect  int
	ThreadsStationText int
	ThreadsStationXML  int
	ThreadsWfcatalog   int

	NumRetries int
	RetryWait  time.Duration

	SlotFallbackCapacity int
	RedisURL             string
}

// Load resolves configuration from environment variables (matching the
// EIDA_FEDERATOR_* names used by the Python original this gateway
// replaces), falling back to the defaults below when unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("ROUTING_SERVICE", "http://localhost:8090/eidaws/routing/1/query")
	v.SetDefault("TMPDIR", "/tmp/eida-federator")
	v.SetDefault("EIDA_FEDERATOR_STREAMING_TIMEOUT", "600s")
	v.SetDefault("EIDA_FEDERATOR_THREADS_DATASELECT", 10)
	v.SetDefault("EIDA_FEDERATOR_THREADS_STATION_TEXT", 10)
	v.SetDefault("EIDA_FEDERATOR_THREADS_STATION_XML", 5)
	v.SetDefault("EIDA_FEDERATOR_THREADS_WFCATALOG", 10)
	v.SetDefault("EIDA_FEDERATOR_NUM_RETRIES", 3)
	v.SetDefault("EIDA_FEDERATOR_RETRY_WAIT", "1s")
	v.SetDefault("EIDA_FEDERATOR_SLOT_CAPACITY", 5)
	v.SetDefault("EIDA_FEDERATOR_REDIS_URL", "")

	streamingTimeout, err := time.ParseDuration(v.GetString("EIDA_FEDERATOR_STREAMING_TIMEOUT"))
	if err != nil {
		return nil, err
	}
	retryWait, err := time.ParseDuration(v.GetString("EIDA_FEDERATOR_RETRY_WAIT"))
	if err != nil {
		return nil, err
	}

	return &Config{
		RoutingServiceURL:    v.GetString("ROUTING_SERVICE"),
		TmpDir:               v.GetString("TMPDIR"),
		StreamingTimeout:     streamingTimeout,
		ThreadsDataselect:    v.GetInt("EIDA_FEDERATOR_THREADS_DATASELECT"),
		ThreadsStationText:   v.GetInt("EIDA_FEDERATOR_THREADS_STATION_TEXT"),
		ThreadsStationXML:    v.GetInt("EIDA_FEDERATOR_THREADS_STATION_XML"),
		ThreadsWfcatalog:     v.GetInt("EIDA_FEDERATOR_THREADS_WFCATALOG"),
		NumRetries:           v.GetInt("EIDA_FEDERATOR_NUM_RETRIES"),
		RetryWait:            retryWait,
		SlotFallbackCapacity: v.GetInt("EIDA_FEDERATOR_SLOT_CAPACITY"),
		RedisURL:             v.GetString("EIDA_FEDERATOR_REDIS_URL"),
	}, nil
}
