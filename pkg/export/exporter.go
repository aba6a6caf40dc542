package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/Mindburn-Labs/benson/pkg/audit"
	"github.com/Mindburn-Labs/benson/pkg/canonicalize"
)

// Result describes one completed export.
type Result struct {
	Object           string `json:"object"`
	ObjectLocation   string `json:"object_location"`
	ManifestLocation string `json:"manifest_location,omitempty"`
	EventCount       int    `json:"event_count"`
	HeadHash         string `json:"head_hash"`
	ContentHash      string `json:"content_hash"`
}

// Exporter writes verified chains to a sink.
type Exporter struct {
	sink   Sink
	signer *ManifestSigner
	logger *slog.Logger
}

// NewExporter returns an exporter. signer may be nil, in which case no
// manifest is written.
func NewExporter(sink Sink, signer *ManifestSigner, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default().With("component", "export")
	}
	return &Exporter{sink: sink, signer: signer, logger: logger}
}

// Export refuses a chain that fails integrity verification; otherwise it
// uploads <name>.ndjson and, with a signer, <name>.manifest.jwt.
func (x *Exporter) Export(ctx context.Context, name string, events []*audit.Event) (*Result, error) {
	if err := VerifyEvents(events); err != nil {
		return nil, fmt.Errorf("export: refusing unverifiable chain: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteNDJSON(&buf, events); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	res := &Result{
		Object:      name + ".ndjson",
		EventCount:  len(events),
		ContentHash: canonicalize.HashBytes(data),
	}
	if n := len(events); n > 0 {
		res.HeadHash = events[n-1].EventHash
	}

	loc, err := x.sink.Put(ctx, res.Object, data)
	if err != nil {
		return nil, err
	}
	res.ObjectLocation = loc

	if x.signer != nil {
		token, err := x.signer.Sign(ManifestClaims{
			Object:      res.Object,
			EventCount:  res.EventCount,
			HeadHash:    res.HeadHash,
			ContentHash: res.ContentHash,
		})
		if err != nil {
			return nil, err
		}
		mloc, err := x.sink.Put(ctx, name+".manifest.jwt", []byte(token))
		if err != nil {
			return nil, err
		}
		res.ManifestLocation = mloc
	}

	x.logger.Info("audit chain exported", "object", res.ObjectLocation, "events", res.EventCount, "head", res.HeadHash)
	return res, nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".ndjson":
		return "application/x-ndjson"
	case ".jwt":
		return "application/jwt"
	default:
		return "application/octet-stream"
	}
}
