// Package testenv prepares the process environment for tests that link portal
// packages. Import it for its side effects.
package testenv

import "os"

var defaults = map[string]string{
	"PORTAL_SKIP_STARTUP": "true",
	"LOG_FORMAT":          "text",
}

func init() {
	for key, value := range defaults {
		if _, set := os.LookupEnv(key); !set {
			_ = os.Setenv(key, value)
		}
	}
}
