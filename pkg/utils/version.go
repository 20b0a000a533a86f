// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

import "fmt"

// Build information, set with -ldflags -X at release time.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent is sent on every outbound request to the proxy chat and OAuth
// backends.
func UserAgent() string {
	return fmt.Sprintf("parley/%s (+%s)", Version, shortSha())
}

func shortSha() string {
	if len(Sha) > 7 {
		return Sha[:7]
	}
	return Sha
}
