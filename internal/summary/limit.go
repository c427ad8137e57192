package summary

import (
	"context"

	"github.com/deusflow/aurore/internal/ratelimit"
)

// Limit charges every call to gen against the run budget.
func Limit(gen Generator, budget *ratelimit.Budget, provider string) Generator {
	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		if err := budget.Use(provider); err != nil {
			return "", err
		}
		return gen.Generate(ctx, prompt)
	})
}
