package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsLoadWithoutFile(t *testing.T) {
	v, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := Unmarshal(v)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := Defaults()
	if cfg.Network.RendezvousNamespace != want.Network.RendezvousNamespace {
		t.Errorf("rendezvous_namespace = %q, want %q", cfg.Network.RendezvousNamespace, want.Network.RendezvousNamespace)
	}
	if cfg.Network.ReceiptQuorum != want.Network.ReceiptQuorum {
		t.Errorf("receipt_quorum = %d, want %d", cfg.Network.ReceiptQuorum, want.Network.ReceiptQuorum)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("store.driver = %q, want memory", cfg.Store.Driver)
	}
}

func TestWriteExampleRoundTripsThroughLoad(t *testing.T) {
	d := Defaults()
	d.Network.ReceiptQuorum = 3
	d.Network.WorkflowQuorum = 2
	d.Store.Driver = "sqlite"
	d.Store.DSN = "file:weave.db"
	d.Runtime.LogLevel = "debug"

	doc, err := WriteExample(d)
	if err != nil {
		t.Fatalf("WriteExample: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "weave.toml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	v, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s): %v", path, err)
	}
	cfg, err := Unmarshal(v)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if cfg.Network.ReceiptQuorum != 3 {
		t.Errorf("receipt_quorum = %d, want 3", cfg.Network.ReceiptQuorum)
	}
	if cfg.Network.WorkflowQuorum != 2 {
		t.Errorf("workflow_quorum = %d, want 2", cfg.Network.WorkflowQuorum)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("store.driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Store.DSN != "file:weave.db" {
		t.Errorf("store.dsn = %q, want file:weave.db", cfg.Store.DSN)
	}
	if cfg.Runtime.LogLevel != "debug" {
		t.Errorf("runtime.log_level = %q, want debug", cfg.Runtime.LogLevel)
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("WEAVE_NETWORK_RECEIPT_QUORUM", "5")
	t.Setenv("WEAVE_RUNTIME_LOG_LEVEL", "warn")

	v, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := Unmarshal(v)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if cfg.Network.ReceiptQuorum != 5 {
		t.Errorf("receipt_quorum = %d, want 5 (env override)", cfg.Network.ReceiptQuorum)
	}
	if cfg.Runtime.LogLevel != "warn" {
		t.Errorf("runtime.log_level = %q, want warn (env override)", cfg.Runtime.LogLevel)
	}
}

func TestLoadUnknownFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error reading a nonexistent config file")
	}
}

func TestDefaultsPeerTTLAndTimeouts(t *testing.T) {
	d := Defaults()
	if d.Network.PeerTTL != 5*time.Minute {
		t.Errorf("PeerTTL = %v, want 5m", d.Network.PeerTTL)
	}
	if d.Network.P2PResolveTimeout != 30*time.Second {
		t.Errorf("P2PResolveTimeout = %v, want 30s", d.Network.P2PResolveTimeout)
	}
}
