package banner

import (
	"fmt"

	"parley/pkg/config"
)

const banner = `
██████╗  █████╗ ██████╗ ██╗     ███████╗██╗   ██╗
██╔══██╗██╔══██╗██╔══██╗██║     ██╔════╝╚██╗ ██╔╝
██████╔╝███████║██████╔╝██║     █████╗   ╚████╔╝
██╔═══╝ ██╔══██║██╔══██╗██║     ██╔══╝    ╚██╔╝
██║     ██║  ██║██║  ██║███████╗███████╗   ██║
╚═╝     ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚══════╝   ╚═╝
`

// Print prints the startup banner with the effective listen address,
// storage path and a summary of the HTTP surface.
func Print(cfg *config.Config, dbPath, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", cfg.Addr())
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/users                                 - Register an account")
	fmt.Println("POST /v1/token                                 - Obtain access+refresh tokens")
	fmt.Println("POST /v1/token/refresh                         - Refresh an access token")
	fmt.Println("POST /v1/conversations                         - Start a conversation")
	fmt.Println("GET  /v1/conversations                         - List your conversations")
	fmt.Println("POST /v1/conversations/{id}/messages           - Send a message (optional parent)")
	fmt.Println("GET  /v1/threads/{id}                          - Load a reply thread")
	fmt.Println("GET  /v1/notifications                         - List notifications")

	fmt.Println("\n== Gates ======================================================")
	if cfg.Security.TimeGate.Enabled {
		fmt.Printf("- Time gate: enabled (hours %d-%d)\n", cfg.Security.TimeGate.OpenHour, cfg.Security.TimeGate.CloseHour)
	} else {
		fmt.Println("- Time gate: disabled")
	}
	if cfg.Security.RateGate.Enabled {
		fmt.Printf("- Rate gate: enabled (%d POSTs / %ds per IP)\n", cfg.Security.RateGate.PostsPerMinute, cfg.Security.RateGate.WindowSeconds)
	} else {
		fmt.Println("- Rate gate: disabled")
	}
	if cfg.Retention.Enabled {
		fmt.Println("- Retention: enabled")
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
