package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/benson/pkg/audit"
	"github.com/Mindburn-Labs/benson/pkg/canonicalize"
	"github.com/Mindburn-Labs/benson/pkg/export"
)

type chainReport struct {
	Source     string `json:"source"`
	Verified   bool   `json:"verified"`
	EventCount int    `json:"event_count"`
	HeadHash   string `json:"head_hash,omitempty"`
	Error      string `json:"error,omitempty"`
}

// readConfiguredChain loads every event from the configured audit backend
// without appending to it.
func (a *app) readConfiguredChain(ctx context.Context) ([]*audit.Event, error) {
	log, err := openAuditLog(ctx, a.cfg.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = log.Close() }()
	return log.Events(ctx)
}

func (a *app) newVerifyChainCmd() *cobra.Command {
	var (
		file       string
		manifest   string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "verify-chain",
		Short: "Verify audit chain linkage and event hashes",
		Long: `Verify-chain reads the configured audit log, or an exported NDJSON file with
--file, and recomputes every event hash. With --manifest the signed export
manifest is checked against the file as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				events []*audit.Event
				data   []byte
				source = "audit:" + a.cfg.Audit.Backend
				err    error
			)
			if file != "" {
				source = file
				data, err = os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read export: %w", err)
				}
				events, err = export.ReadNDJSON(bytes.NewReader(data))
			} else {
				events, err = a.readConfiguredChain(cmd.Context())
			}
			if err != nil {
				return err
			}

			report := chainReport{Source: source, EventCount: len(events), Verified: true}
			if n := len(events); n > 0 {
				report.HeadHash = events[n-1].EventHash
			}
			if err := export.VerifyEvents(events); err != nil {
				report.Verified = false
				report.Error = err.Error()
			}
			if report.Verified && manifest != "" {
				if file == "" {
					return fmt.Errorf("--manifest requires --file")
				}
				if err := a.checkManifest(manifest, data, report); err != nil {
					report.Verified = false
					report.Error = err.Error()
				}
			}

			if jsonOutput {
				out, _ := json.MarshalIndent(report, "", "  ")
				a.printf("%s\n", out)
			} else if report.Verified {
				a.printf("Chain verification PASSED\n")
				a.printf("Source: %s\nEvents: %d\nHead: %s\n", report.Source, report.EventCount, report.HeadHash)
			} else {
				a.printf("Chain verification FAILED\n")
				a.printf("Source: %s\n  - %s\n", report.Source, report.Error)
			}
			if !report.Verified {
				return errCheckFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Verify an exported NDJSON file instead of the configured log")
	cmd.Flags().StringVar(&manifest, "manifest", "", "Signed export manifest to check against --file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	return cmd
}

func (a *app) checkManifest(path string, data []byte, report chainReport) error {
	if a.cfg.Export.SigningSecret == "" {
		return fmt.Errorf("export.signing_secret is not configured")
	}
	signer, err := export.NewManifestSigner([]byte(a.cfg.Export.SigningSecret))
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	claims, err := signer.Verify(strings.TrimSpace(string(raw)))
	if err != nil {
		return err
	}
	switch {
	case claims.EventCount != report.EventCount:
		return fmt.Errorf("manifest event_count %d, chain has %d", claims.EventCount, report.EventCount)
	case claims.HeadHash != report.HeadHash:
		return fmt.Errorf("manifest head_hash %s, chain head %s", claims.HeadHash, report.HeadHash)
	case claims.ContentHash != canonicalize.HashBytes(data):
		return fmt.Errorf("manifest content_hash does not match file")
	}
	return nil
}

func (a *app) newExportCmd() *cobra.Command {
	var (
		out        string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the audit chain as NDJSON to the configured sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			events, err := a.readConfiguredChain(ctx)
			if err != nil {
				return err
			}

			sink, err := export.NewSink(ctx, sinkConfig(a.cfg.Export))
			if err != nil {
				return err
			}
			if c, ok := sink.(io.Closer); ok {
				defer func() { _ = c.Close() }()
			}
			var signer *export.ManifestSigner
			if a.cfg.Export.SigningSecret != "" {
				if signer, err = export.NewManifestSigner([]byte(a.cfg.Export.SigningSecret)); err != nil {
					return err
				}
			}

			res, err := export.NewExporter(sink, signer, a.logger.With("component", "export")).Export(ctx, out, events)
			if err != nil {
				return err
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(res, "", "  ")
				a.printf("%s\n", data)
				return nil
			}
			a.printf("Exported %d events to %s\n", res.EventCount, res.ObjectLocation)
			if res.ManifestLocation != "" {
				a.printf("Manifest: %s\n", res.ManifestLocation)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Export object name (REQUIRED)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the export result as JSON")
	return cmd
}

func (a *app) newCloseLoopCmd() *cobra.Command {
	var pacID, wrapID, berID string
	cmd := &cobra.Command{
		Use:   "close-loop",
		Short: "Check whether a PAC's execution loop may be closed",
		Long:  "Close-loop runs the BER requirement gate and records the check in the audit chain.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if pacID == "" {
				return fmt.Errorf("--pac is required")
			}
			rt, err := a.openRuntime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.close(ctx) }()

			res, err := rt.engine.CheckLoopClosure(ctx, pacID, wrapID, berID)
			if err != nil {
				return err
			}
			if res.Passed() {
				a.printf("%s PASSED for %s\n", res.GateID, pacID)
				return nil
			}
			a.printf("%s FAILED for %s: %s\n", res.GateID, pacID, res.Failure.Message)
			return errCheckFailed
		},
	}
	cmd.Flags().StringVar(&pacID, "pac", "", "PAC id (REQUIRED)")
	cmd.Flags().StringVar(&wrapID, "wrap", "", "WRAP id")
	cmd.Flags().StringVar(&berID, "ber", "", "BER id")
	return cmd
}
