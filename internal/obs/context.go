package obs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type routePatternKey struct{}

type annotationsKey struct{}

// WithRoutePattern stores the matched chi pattern, e.g. "/api/memo".
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns the pattern stored by WithRoutePattern.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(routePatternKey{}).(string)
	return v
}

// annotations collects fields that handlers attach to the access log line,
// such as the generated memo file name. Handlers may run goroutines that
// annotate concurrently, so access is locked.
type annotations struct {
	mu     sync.Mutex
	fields []annotation
}

type annotation struct {
	key   string
	value string
}

func withAnnotations(ctx context.Context) (context.Context, *annotations) {
	a := &annotations{}
	return context.WithValue(ctx, annotationsKey{}, a), a
}

// Annotate adds key=value to the request's http_request log entry. It is a
// no-op outside a RequestLogger-wrapped request. A repeated key keeps the
// last value.
func Annotate(ctx context.Context, key, value string) {
	if ctx == nil || key == "" {
		return
	}
	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.fields {
		if a.fields[i].key == key {
			a.fields[i].value = value
			return
		}
	}
	a.fields = append(a.fields, annotation{key: key, value: value})
}

func (a *annotations) apply(evt *zerolog.Event) *zerolog.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, f := range a.fields {
		evt = evt.Str(f.key, f.value)
	}
	return evt
}
