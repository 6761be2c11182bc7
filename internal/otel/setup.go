package otel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Setup wires the metric SDK when a collector endpoint is configured and
// returns a shutdown function; with no endpoint it is a no-op and the global
// meter provider stays a no-op too. attrs is a comma-separated k=v list.
func Setup(ctx context.Context, l *slog.Logger, endpoint, attrs string) func() {
	if endpoint == "" {
		return func() {}
	}
	shutdown, err := SetupOTelSDK(ctx, endpoint, parseAttributes(attrs))
	if err != nil {
		l.Error(fmt.Sprintf("set otel sdk error: %s", err.Error()))
		return func() {}
	}
	return func() {
		if err := shutdown(); err != nil {
			l.Error(fmt.Sprintf("otel sdk shutdown error: %s", err.Error()))
		}
	}
}

func parseAttributes(s string) map[string]string {
	attrs := map[string]string{}
	for _, kv := range strings.Split(s, ",") {
		p := strings.SplitN(kv, "=", 2)
		if len(p) == 2 {
			attrs[strings.TrimSpace(p[0])] = strings.TrimSpace(p[1])
		}
	}
	return attrs
}
