//go:build !calgrid_debug

package layout

import "log/slog"

func invariantViolated(err error) {
	slog.Error("layout invariant violated", "error", err)
}
