package main

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your relaybot setup",
		Long: `Verifies that relaybot's configuration, credentials, and ports are
correctly set up. Reports pass/fail for each check. No outbound calls are
made; webhook URLs are checked for shape only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("relaybot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s (environment variables will be used)", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			cfg, err := loadConfig()
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\nResults: %d passed, %d warnings, 1 failed\n", passed, warned)
				return fmt.Errorf("1 check(s) failed")
			}
			printPass("Config validation", "valid")
			passed++

			if cfg.Discourse.Enabled {
				if cfg.Discourse.Secret == "" {
					printFail("Discourse secret", "not set (DISCOURSE_SECRET)")
					failed++
				} else {
					printPass("Discourse secret", "set")
					passed++
				}
				if err := checkWebhookURL(cfg.Discourse.WebhookURL); err != nil {
					printFail("Discourse → Discord webhook", err.Error())
					failed++
				} else {
					printPass("Discourse → Discord webhook", "looks valid")
					passed++
				}
				if cfg.Discourse.BaseURL == "" {
					printWarn("Discourse base URL", "not set; forwarded posts will have no link back to the forum")
					warned++
				} else {
					printPass("Discourse base URL", cfg.Discourse.BaseURL)
					passed++
				}
				if err := checkPort(cfg.Discourse.Port); err != nil {
					printWarn("Discourse port", fmt.Sprintf("port %d may be in use: %v", cfg.Discourse.Port, err))
					warned++
				} else {
					printPass("Discourse port", fmt.Sprintf(":%d available", cfg.Discourse.Port))
					passed++
				}
			} else {
				printWarn("Discourse bridge", "disabled")
				warned++
			}

			if cfg.Telegram.Enabled {
				if cfg.Telegram.Token == "" {
					printFail("Telegram token", "not set (TG_BOT_TOKEN)")
					failed++
				} else {
					printPass("Telegram token", "set")
					passed++
				}
				if err := checkWebhookURL(cfg.Telegram.WebhookURL); err != nil {
					printFail("Telegram → Discord webhook", err.Error())
					failed++
				} else {
					printPass("Telegram → Discord webhook", "looks valid")
					passed++
				}
				if cfg.Telegram.ChannelURL == "" {
					printWarn("Channel URL", "not set; channel titles will not be clickable in Discord")
					warned++
				} else {
					printPass("Channel URL", cfg.Telegram.ChannelURL)
					passed++
				}
			} else {
				printWarn("Telegram bridge", "disabled")
				warned++
			}

			if cfg.Metrics.Enabled {
				if err := checkPort(cfg.Metrics.Port); err != nil {
					printWarn("Metrics port", fmt.Sprintf("port %d may be in use: %v", cfg.Metrics.Port, err))
					warned++
				} else {
					printPass("Metrics port", fmt.Sprintf(":%d available", cfg.Metrics.Port))
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running relaybot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nrelaybot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! relaybot is ready to run.\n")
			}
			return nil
		},
	}
}

// checkWebhookURL validates the shape of a Discord incoming-webhook URL
// without calling it.
func checkWebhookURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("not set")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("not a valid URL: %v", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("must use https, got %q", u.Scheme)
	}
	if !strings.Contains(u.Path, "/webhooks/") {
		return fmt.Errorf("does not look like a Discord webhook URL")
	}
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-28s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-28s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-28s %s\n", check, detail)
}
