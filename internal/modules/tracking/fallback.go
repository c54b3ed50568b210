// README: Ordered fallback chain for obtaining a usable fix.
package tracking

import "context"

// fixSource is one strategy in the fallback chain. A nil fix with a
// nil error means "this source has nothing"; the chain moves on.
type fixSource struct {
	name string
	get  func(ctx context.Context) (*Fix, error)
}

// firstFix evaluates sources in order and returns the first fix any of
// them produces, together with the name of the source that answered.
// Errors never stop the chain; the last error is returned only when
// every source came up empty.
func firstFix(ctx context.Context, sources []fixSource) (*Fix, string, error) {
	var lastErr error
	for _, src := range sources {
		fix, err := src.get(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if fix != nil {
			return fix, src.name, nil
		}
	}
	return nil, "", lastErr
}
