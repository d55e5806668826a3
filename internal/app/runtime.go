package app

import (
	"sync"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
)

// launchEnv is read separately from Config so the binaries can bail out before a
// missing PG_DSN or REDIS_ADDR would fail LoadConfig.
type launchEnv struct {
	SkipStartup bool `envconfig:"PORTAL_SKIP_STARTUP" default:"false"`
}

var (
	launchOnce  sync.Once
	skipStartup atomic.Bool
)

func readLaunchEnv() {
	var env launchEnv
	if err := envconfig.Process("", &env); err != nil {
		// unparsable values leave startup enabled
		env.SkipStartup = false
	}
	skipStartup.Store(env.SkipStartup)
}

// StartupSkipped reports whether portal and worker should return before dialing
// PostgreSQL or Redis. Test binaries set PORTAL_SKIP_STARTUP.
func StartupSkipped() bool {
	launchOnce.Do(readLaunchEnv)
	return skipStartup.Load()
}

// ReloadLaunchEnv re-reads PORTAL_SKIP_STARTUP.
func ReloadLaunchEnv() {
	launchOnce.Do(func() {})
	readLaunchEnv()
}
