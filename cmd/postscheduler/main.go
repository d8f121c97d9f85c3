// Command postscheduler queues social posts for later publication. It runs
// either the HTTP API or the MCP tool server, each with the publication
// daemon alongside.
//
//	@title						Post Scheduler API
//	@version					1.0
//	@description				Durable queue of scheduled social posts with a background publisher.
//	@BasePath					/api/v1
//	@schemes					http https
//	@accept						json
//	@produce					json
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
