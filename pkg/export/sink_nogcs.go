//go:build !gcp

package export

import (
	"context"
	"fmt"
)

func newGCSSink(context.Context, SinkConfig) (Sink, error) {
	return nil, fmt.Errorf("%w: gcs is not enabled in this build (use -tags gcp)", ErrUnsupportedSink)
}
