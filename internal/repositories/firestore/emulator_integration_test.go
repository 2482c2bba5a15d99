//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	pconfig "github.com/shopmesh/api/internal/platform/config"
	pfirestore "github.com/shopmesh/api/internal/platform/firestore"
)

const (
	emulatorImage     = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	emulatorHostEnv   = "FIRESTORE_EMULATOR_HOST"
	emulatorReadyWait = 30 * time.Second
)

// emulatorProvider returns a provider bound to a Firestore emulator. An emulator already
// named by FIRESTORE_EMULATOR_HOST is reused; otherwise one is started in docker.
// Each call gets its own project id so collections never collide across tests.
func emulatorProvider(t *testing.T, label string) *pfirestore.Provider {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	endpoint := strings.TrimSpace(os.Getenv(emulatorHostEnv))
	if endpoint == "" {
		endpoint = runEmulatorContainer(t)
	}
	awaitEndpoint(t, endpoint)

	projectID := fmt.Sprintf("shopmesh-%s-%d", label, time.Now().UnixNano())
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    projectID,
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})
	return provider
}

func runEmulatorContainer(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available and " + emulatorHostEnv + " unset")
	}
	infoCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(infoCtx, "docker", "info").Run(); err != nil {
		t.Skipf("docker daemon not reachable: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()

	out, err := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		emulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("start firestore emulator: %v: %s", err, out)
	}
	containerID := strings.TrimSpace(string(out))
	if containerID == "" {
		t.Fatalf("docker returned no container id")
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exec.CommandContext(stopCtx, "docker", "stop", containerID).Run()
	})
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func awaitEndpoint(t *testing.T, endpoint string) {
	t.Helper()
	deadline := time.Now().Add(emulatorReadyWait)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s not ready after %s", endpoint, emulatorReadyWait)
}
