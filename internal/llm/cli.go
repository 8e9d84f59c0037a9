package llm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pickgear/backend/internal/metrics"
	"github.com/pickgear/backend/pkg/logger"
)

// nestedSessionEnv marks an already-running session of the CLI tool; it must
// be stripped from the child environment or the nested invocation refuses to
// run.
const nestedSessionEnv = "CLAUDECODE"

// CLIRunner shells out to a local LLM CLI (claude -p). The prompt is piped
// over stdin because rendered product pages routinely exceed argv length
// limits.
type CLIRunner struct {
	bin     string
	timeout time.Duration
}

var _ Runner = (*CLIRunner)(nil)

func NewCLIRunner(bin string, timeout time.Duration) *CLIRunner {
	if bin == "" {
		bin = "claude"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CLIRunner{bin: bin, timeout: timeout}
}

func (r *CLIRunner) Run(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{"-p"}
	if opts.System != "" {
		args = append(args, "--system-prompt", opts.System)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = scrubEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	metrics.LLMRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues("cli", "error").Inc()
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", r.bin, err, msg)
		}
		return "", fmt.Errorf("%s: %w", r.bin, err)
	}

	metrics.LLMRequests.WithLabelValues("cli", "ok").Inc()
	logger.Debug("cli completion",
		zap.String("bin", r.bin),
		zap.Int("response_bytes", stdout.Len()),
	)

	return strings.TrimSpace(stdout.String()), nil
}

func scrubEnv(environ []string) []string {
	scrubbed := make([]string, 0, len(environ))
	for _, kv := range environ {
		if strings.HasPrefix(kv, nestedSessionEnv+"=") {
			continue
		}
		scrubbed = append(scrubbed, kv)
	}
	return scrubbed
}
