// Package buildinfo carries version metadata injected at link time:
//
//	go build -ldflags "-X github.com/ZanzyTHEbar/mcp-puppygraph-go/internal/buildinfo.Version=v0.3.1"
package buildinfo

var (
	Version   = "dev"
	Revision  = "unknown"
	BuildDate = "unknown"
)
