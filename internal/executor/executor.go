// Package executor runs the commands the session engine hands off for
// sandboxed Python execution and web scraping. Execute never fails: every
// problem is reported in the returned text.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/localgpt/localgpt/internal/logging"
	"github.com/localgpt/localgpt/pkg/types"
)

// Messages returned for commands that cannot be run.
const (
	SandboxUsage   = "Invalid command format. Use: run_code_in_virtual_env [packages] code"
	ScrapeUsage    = "Invalid command format. Use: scrape_website domain [subdomain]"
	UnknownCommand = "Unknown Python command."
)

const (
	sandboxKeyword = "run_code_in_virtual_env"
	scrapeKeyword  = "scrape_website"
)

// Executor routes command text to the sandbox or the scraper.
type Executor struct {
	sandbox *Sandbox
	scraper *Scraper
	timeout time.Duration
}

// New creates an executor from configuration. timeout bounds each command;
// zero means no limit beyond the caller's context.
func New(cfg *types.ExecutorConfig, timeout time.Duration) *Executor {
	var fetcher PageFetcher = NewHTTPFetcher(nil)
	if cfg.Browser {
		fetcher = NewBrowserFetcher()
	}
	return &Executor{
		sandbox: NewSandbox(cfg.VenvDir, cfg.Python),
		scraper: NewScraper(cfg.KnowledgeDir, fetcher),
		timeout: timeout,
	}
}

// NewWith creates an executor from already built parts.
func NewWith(sandbox *Sandbox, scraper *Scraper, timeout time.Duration) *Executor {
	return &Executor{sandbox: sandbox, scraper: scraper, timeout: timeout}
}

// Execute runs command and returns its result text.
func (e *Executor) Execute(ctx context.Context, command string) string {
	command = strings.TrimSpace(command)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	var result string
	switch {
	case strings.HasPrefix(command, sandboxKeyword):
		result = e.runSandbox(ctx, command)
	case strings.HasPrefix(command, scrapeKeyword):
		result = e.runScrape(ctx, command)
	default:
		result = UnknownCommand
	}

	logging.Debug().
		Str("command", logging.Preview(command, 60)).
		Dur("elapsed", time.Since(start)).
		Str("result", logging.Preview(result, 120)).
		Msg("command executed")

	return result
}

func (e *Executor) runSandbox(ctx context.Context, command string) string {
	packages, code, ok := ParseSandboxCommand(command)
	if !ok {
		return SandboxUsage
	}
	stdout, stderr, err := e.sandbox.Run(ctx, packages, code)
	if err != nil {
		logging.Warn().Err(err).Strs("packages", packages).Msg("sandbox run failed")
		return fmt.Sprintf("Error: %v", err)
	}
	return FormatOutput(stdout, stderr)
}

func (e *Executor) runScrape(ctx context.Context, command string) string {
	domain, subdomain, ok := ParseScrapeCommand(command)
	if !ok {
		return ScrapeUsage
	}
	path, err := e.scraper.Scrape(ctx, domain, subdomain)
	if err != nil {
		logging.Warn().Err(err).Str("domain", domain).Msg("scrape failed")
		return fmt.Sprintf("Error: %v", err)
	}
	return path
}

// Close releases the headless browser, if one was started.
func (e *Executor) Close() error {
	if e.scraper == nil {
		return nil
	}
	return e.scraper.Close()
}

// ParseSandboxCommand splits "run_code_in_virtual_env [pkg1,pkg2] code".
// The package list may be bare ("requests") and "[]" means none. The code is
// everything after the package list.
func ParseSandboxCommand(command string) (packages []string, code string, ok bool) {
	rest, found := strings.CutPrefix(command, sandboxKeyword)
	if !found {
		return nil, "", false
	}
	rest = strings.TrimLeft(rest, " \t")

	var list string
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return nil, "", false
		}
		list, rest = rest[1:end], rest[end+1:]
	} else {
		i := strings.IndexAny(rest, " \t\n")
		if i < 0 {
			return nil, "", false
		}
		list, rest = rest[:i], rest[i:]
	}

	code = strings.TrimSpace(rest)
	if code == "" {
		return nil, "", false
	}

	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			packages = append(packages, p)
		}
	}
	return packages, code, true
}

// ParseScrapeCommand splits "scrape_website domain [subdomain]".
func ParseScrapeCommand(command string) (domain, subdomain string, ok bool) {
	fields := strings.Fields(command)
	if len(fields) < 2 || fields[0] != scrapeKeyword {
		return "", "", false
	}
	if len(fields) > 2 {
		subdomain = fields[2]
	}
	return fields[1], subdomain, true
}

// FormatOutput renders a sandbox run's captured streams.
func FormatOutput(stdout, stderr string) string {
	return "stdout:\n" + stdout + "\nstderr:\n" + stderr
}
