package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/benson/pkg/pac/pactest"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"benson"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writePac(t *testing.T, dir, name string, tree map[string]any) string {
	t.Helper()
	data, err := json.Marshal(tree)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// durableEnv points the audit log and export sink into a temp dir.
func durableEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BENSON_LOG_LEVEL", "error")
	t.Setenv("BENSON_AUDIT_BACKEND", "sqlite")
	t.Setenv("BENSON_AUDIT_SQLITE_PATH", filepath.Join(dir, "audit.db"))
	t.Setenv("BENSON_EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("BENSON_EXPORT_SIGNING_SECRET", "test-secret")
	return dir
}

func TestRun_AdmitValid(t *testing.T) {
	dir := durableEnv(t)
	path := writePac(t, dir, "pac.json", pactest.Valid())

	code, out, _ := run(t, "admit", path)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "ADMITTED "+pactest.ValidPacID)
	assert.Contains(t, out, "token=EXEC-")
}

func TestRun_AdmitRejected(t *testing.T) {
	dir := durableEnv(t)
	path := writePac(t, dir, "bad.json", pactest.WithoutMetadata())

	code, out, _ := run(t, "admit", path)
	assert.Equal(t, exitRejected, code)
	assert.Contains(t, out, "REJECTED")
	assert.Contains(t, out, "SCHEMA_INVALID")
}

func TestRun_AdmitDuplicateInOneRun(t *testing.T) {
	dir := durableEnv(t)
	path := writePac(t, dir, "pac.json", pactest.Valid())

	code, out, _ := run(t, "admit", path, path)
	assert.Equal(t, exitRejected, code)
	assert.Contains(t, out, "ADMITTED")
	assert.Contains(t, out, "DUPLICATE_PAC")
}

func TestRun_AdmitJSON(t *testing.T) {
	dir := durableEnv(t)
	good := writePac(t, dir, "good.json", pactest.ValidWithID("PAC-CLI-JSON-001"))

	code, out, _ := run(t, "admit", "--json", good)
	require.Equal(t, exitOK, code)

	var reports []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, true, reports[0]["admitted"])
	outcome := reports[0]["outcome"].(map[string]any)
	assert.Equal(t, "PAC-CLI-JSON-001", outcome["pac_id"])
	assert.True(t, strings.HasPrefix(outcome["execution_token"].(string), "EXEC-PAC-CLI-JSON-001-"))
}

func TestRun_AdmitMissingFile(t *testing.T) {
	durableEnv(t)
	code, _, errOut := run(t, "admit", filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, errOut, "Error:")
}

func TestRun_VerifyChainAfterAdmit(t *testing.T) {
	dir := durableEnv(t)
	path := writePac(t, dir, "pac.json", pactest.Valid())
	code, _, _ := run(t, "admit", path)
	require.Equal(t, exitOK, code)

	code, out, _ := run(t, "verify-chain")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "PASSED")
	assert.Contains(t, out, "Events: 3")

	// A second process resumes the persisted chain.
	code, _, _ = run(t, "admit", path)
	require.Equal(t, exitOK, code)
	code, out, _ = run(t, "verify-chain", "--json")
	require.Equal(t, exitOK, code)
	var report chainReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Verified)
	assert.Equal(t, 6, report.EventCount)
}

func TestRun_ExportAndVerifyFile(t *testing.T) {
	dir := durableEnv(t)
	path := writePac(t, dir, "pac.json", pactest.Valid())
	code, _, _ := run(t, "admit", path)
	require.Equal(t, exitOK, code)

	code, out, errOut := run(t, "export", "--out", "chain-001")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "Exported 3 events")
	assert.Contains(t, out, "Manifest:")

	ndjson := filepath.Join(dir, "exports", "chain-001.ndjson")
	manifest := filepath.Join(dir, "exports", "chain-001.manifest.jwt")
	code, out, _ = run(t, "verify-chain", "--file", ndjson, "--manifest", manifest)
	assert.Equal(t, exitOK, code, out)

	data, err := os.ReadFile(ndjson)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "PAC_ADMITTED", "PAC_REJECTED", 1)
	require.NoError(t, os.WriteFile(ndjson, []byte(tampered), 0o600))

	code, out, _ = run(t, "verify-chain", "--file", ndjson)
	assert.Equal(t, exitRejected, code)
	assert.Contains(t, out, "FAILED")
}

func TestRun_ExportRequiresOut(t *testing.T) {
	durableEnv(t)
	code, _, errOut := run(t, "export")
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, errOut, "--out is required")
}

func TestRun_CloseLoop(t *testing.T) {
	durableEnv(t)

	code, out, _ := run(t, "close-loop", "--pac", "PAC-LOOP-001", "--wrap", "WRAP-001")
	assert.Equal(t, exitRejected, code)
	assert.Contains(t, out, "WRAP is not a decision artifact")

	code, out, _ = run(t, "close-loop", "--pac", "PAC-LOOP-001", "--ber", "BER-001")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "PASSED")

	code, out, _ = run(t, "verify-chain")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Events: 4")
}

func TestRun_LintAndSchema(t *testing.T) {
	dir := durableEnv(t)
	good := writePac(t, dir, "good.json", pactest.Valid())
	bad := writePac(t, dir, "bad.json", pactest.SetMeta(pactest.Valid(), "pac_version", "1.0"))

	code, out, _ := run(t, "lint", good)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "PASS")

	code, out, _ = run(t, "lint", bad)
	assert.Equal(t, exitRejected, code)
	assert.Contains(t, out, "LINT-003")

	code, out, _ = run(t, "schema", good)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "VALID")

	code, _, _ = run(t, "schema", writePac(t, dir, "nometa.json", pactest.WithoutMetadata()))
	assert.Equal(t, exitRejected, code)
}

func TestRun_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "benson.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{
		"log": {"level": "error"},
		"audit": {"backend": "sqlite", "sqlite_path": "`+filepath.ToSlash(filepath.Join(dir, "audit.db"))+`"}
	}`), 0o600))

	code, _, _ := run(t, "--config", cfg, "close-loop", "--pac", "PAC-CFG-001", "--ber", "BER-CFG-001")
	require.Equal(t, exitOK, code)

	code, out, _ := run(t, "--config", cfg, "verify-chain")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Events: 2")
}

func TestRun_Errors(t *testing.T) {
	t.Setenv("BENSON_LOG_LEVEL", "error")

	code, _, _ := run(t, "frobnicate")
	assert.Equal(t, exitRuntime, code)

	code, _, errOut := run(t, "--config", filepath.Join(t.TempDir(), "nope.json"), "verify-chain")
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, errOut, "config")

	t.Setenv("BENSON_AUDIT_BACKEND", "postgres")
	code, _, errOut = run(t, "verify-chain")
	assert.Equal(t, exitRuntime, code)
	assert.Contains(t, errOut, "PostgresDSN")
}
