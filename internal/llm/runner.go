// Package llm executes single prompts against a language model. Runners are
// stateless and do not retry; transient-failure policy belongs to callers.
package llm

import "context"

// Options override the runner's defaults for one invocation. Zero values
// mean "use the runner default".
type Options struct {
	System      string
	Model       string
	Temperature float32
}

// Runner executes one prompt and returns the raw response text.
type Runner interface {
	Run(ctx context.Context, prompt string, opts Options) (string, error)
}
