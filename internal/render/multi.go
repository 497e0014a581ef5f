package render

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"zbxbridge/internal/notifier"
)

// Multi renders every item with each of its renderers in order. One failing
// renderer does not prevent the others from running.
type Multi struct {
	renderers []notifier.Renderer
}

func NewMulti(renderers ...notifier.Renderer) *Multi {
	out := make([]notifier.Renderer, 0, len(renderers))
	for _, r := range renderers {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Multi{renderers: out}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.renderers))
	for i, r := range m.renderers {
		names[i] = r.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

func (m *Multi) Render(ctx context.Context, it notifier.Item, ack notifier.AckFunc) error {
	var errs []error
	for _, r := range m.renderers {
		if err := r.Render(ctx, it, ack); err != nil {
			errs = append(errs, errors.Wrapf(err, "%s", r.Name()))
		}
	}
	return errors.Join(errs...)
}

// Renderers returns the wrapped renderers.
func (m *Multi) Renderers() []notifier.Renderer { return m.renderers }
