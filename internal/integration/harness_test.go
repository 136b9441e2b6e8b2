package integration

import (
	"bytes"
	"crypto/md5" //nolint:gosec // Maven publishes MD5 digests.
	"crypto/sha1" //nolint:gosec // Maven publishes SHA-1 digests.
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/deploykeeper/internal/config"
)

const (
	groupID    = "no.difi.meldingsutveksling"
	artifactID = "integrasjonspunkt"
	// runningFile is written by a started fake jar and read by the fake actuator.
	runningFile = "running"
)

// startingJar is a fake jar that the fake java sources: it reports itself
// running to the actuator and prints the Spring Boot success line.
func startingJar(version string) []byte {
	return []byte(fmt.Sprintf(`echo "%s" > %s
echo "Started IntegrasjonspunktApplication in 0.1 seconds"
exec sleep 3
`, version, runningFile))
}

// crashingJar is a fake jar that fails during startup.
func crashingJar() []byte {
	return []byte(`echo "***************************"
echo "APPLICATION FAILED TO START"
exec sleep 30
`)
}

// release is one version published by the fake repository.
type release struct {
	jar       []byte
	signature []byte
	sha1      string
}

// mavenRepository serves a Maven layout for a single artifact.
type mavenRepository struct {
	server   *httptest.Server
	mu       sync.Mutex
	latest   string
	releases map[string]release
	requests map[string]int
}

func newMavenRepository(t *testing.T) *mavenRepository {
	t.Helper()

	repo := &mavenRepository{
		releases: make(map[string]release),
		requests: make(map[string]int),
	}

	prefix := "/maven2/" + strings.ReplaceAll(groupID, ".", "/") + "/" + artifactID + "/"

	repo.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := strings.CutPrefix(r.URL.Path, prefix)
		if !ok {
			http.NotFound(w, r)
			return
		}

		repo.mu.Lock()
		defer repo.mu.Unlock()

		repo.requests[name]++

		if name == "maven-metadata.xml" {
			_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<metadata>
  <groupId>%s</groupId>
  <artifactId>%s</artifactId>
  <versioning>
    <release>%s</release>
  </versioning>
</metadata>`, groupID, artifactID, repo.latest)

			return
		}

		version, file, _ := strings.Cut(name, "/")

		rel, found := repo.releases[version]
		if !found {
			http.NotFound(w, r)
			return
		}

		base := fmt.Sprintf("%s-%s.jar", artifactID, version)
		md5sum := md5.Sum(rel.jar) //nolint:gosec // Maven publishes MD5 digests.

		switch file {
		case base:
			_, _ = w.Write(rel.jar)
		case base + ".sha1":
			_, _ = fmt.Fprintf(w, "%s  %s\n", rel.sha1, base)
		case base + ".md5":
			_, _ = w.Write([]byte(hex.EncodeToString(md5sum[:])))
		case base + ".asc":
			_, _ = w.Write(rel.signature)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(repo.server.Close)

	return repo
}

// publish adds version and marks it as the newest release.
func (r *mavenRepository) publish(version string, jar, signature []byte) {
	digest := sha1.Sum(jar) //nolint:gosec // Maven publishes SHA-1 digests.

	r.mu.Lock()
	defer r.mu.Unlock()

	r.latest = version
	r.releases[version] = release{jar: jar, signature: signature, sha1: hex.EncodeToString(digest[:])}
}

// jarRequests counts downloads of the jar of version.
func (r *mavenRepository) jarRequests(version string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.requests[fmt.Sprintf("%s/%s-%s.jar", version, artifactID, version)]
}

// url is the repository base URL.
func (r *mavenRepository) url() string {
	return r.server.URL + "/maven2"
}

// newActuator reports UP while a fake jar has written the running file and
// handles shutdown by removing it.
func newActuator(t *testing.T, root string) *httptest.Server {
	t.Helper()

	running := filepath.Join(root, runningFile)

	mux := http.NewServeMux()
	mux.HandleFunc("/actuator/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := os.Stat(running); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"DOWN"}`))

			return
		}

		_, _ = w.Write([]byte(`{"status":"UP"}`))
	})
	mux.HandleFunc("/actuator/info", func(w http.ResponseWriter, _ *http.Request) {
		version, err := os.ReadFile(running) //nolint:gosec // Test fixture path.
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_, _ = fmt.Fprintf(w, `{"build":{"version":%q}}`, strings.TrimSpace(string(version)))
	})
	mux.HandleFunc("/actuator/shutdown", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		_ = os.Remove(running)
		_, _ = w.Write([]byte(`{"message":"Shutting down, bye..."}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

// ntfyServer records notification titles.
type ntfyServer struct {
	server *httptest.Server
	mu     sync.Mutex
	titles []string
}

func newNtfyServer(t *testing.T) *ntfyServer {
	t.Helper()

	n := new(ntfyServer)
	n.server = httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		defer n.mu.Unlock()

		n.titles = append(n.titles, r.Header.Get("Title"))
	}))
	t.Cleanup(n.server.Close)

	return n
}

func (n *ntfyServer) received() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.titles...)
}

// newSigner generates a release key and writes its armored public half into dir.
func newSigner(t *testing.T, dir, name string) (*openpgp.Entity, string) {
	t.Helper()

	entity, err := openpgp.NewEntity(name, "", name+"@example.org", &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA})
	require.NoError(t, err)

	var buf bytes.Buffer

	w, err := armor.Encode(&buf, "PGP PUBLIC KEY BLOCK", nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())

	path := filepath.Join(dir, name+".asc")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	return entity, path
}

func sign(t *testing.T, signer *openpgp.Entity, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&buf, signer, bytes.NewReader(data), nil))

	return buf.Bytes()
}

// environment is a supervisor installation with its collaborators.
type environment struct {
	root       string
	configPath string
	repository *mavenRepository
	ntfy       *ntfyServer
	signer     *openpgp.Entity
}

// newEnvironment prepares a root directory with a running known-good
// version, a fake java that sources the jar, and a saved configuration.
//
// Integration tests do not run in parallel: writing an executable while other
// tests fork can fail with "text file busy".
func newEnvironment(t *testing.T, knownGood string) *environment {
	t.Helper()

	root := t.TempDir()
	tools := t.TempDir()

	java := filepath.Join(tools, "java")
	require.NoError(t, os.WriteFile(java, []byte("#!/bin/sh\n. \"$2\"\n"), 0o755)) //nolint:gosec // Test executable.

	signer, key := newSigner(t, tools, "release")

	env := &environment{
		root:       root,
		configPath: filepath.Join(tools, config.DefaultConfigFilename),
		repository: newMavenRepository(t),
		ntfy:       newNtfyServer(t),
		signer:     signer,
	}

	actuator := newActuator(t, root)

	cfg := &config.Config{
		Root:     root,
		LogLevel: "debug",
		Repository: config.Repository{
			URL:        env.repository.url(),
			GroupID:    groupID,
			ArtifactID: artifactID,
			Timeout:    5 * time.Second,
		},
		Application: config.Application{
			Profile:     "itest",
			Java:        java,
			HealthURL:   actuator.URL + "/actuator/health",
			ShutdownURL: actuator.URL + "/actuator/shutdown",
			InfoURL:     actuator.URL + "/actuator/info",
		},
		Launch: config.Launch{
			Timeout:      10 * time.Second,
			PollInterval: 20 * time.Millisecond,
			HealthChecks: 5,
		},
		Shutdown: config.Shutdown{
			Retries:      5,
			PollInterval: 20 * time.Millisecond,
		},
		Blocklist: config.Blocklist{Enabled: true, Duration: time.Hour},
		Signature: config.Signature{TrustedKeys: []string{key}},
		Notify:    config.Notify{NtfyURL: env.ntfy.server.URL + "/deploykeeper"},
	}
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(env.configPath, data, 0o600))

	if knownGood != "" {
		require.NoError(t, os.WriteFile(env.jarPath(knownGood), startingJar(knownGood), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(root, runningFile), []byte(knownGood), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(root, config.DefaultMetadataFilename),
			[]byte(fmt.Sprintf("profile: itest\ncurrent_version: %s\n", knownGood)), 0o600))
	}

	return env
}

// jarPath is where the supervisor keeps the jar of version.
func (e *environment) jarPath(version string) string {
	return filepath.Join(e.root, fmt.Sprintf("%s-%s.jar", artifactID, version))
}

// runningVersion is the version the fake actuator reports, empty when down.
func (e *environment) runningVersion(t *testing.T) string {
	t.Helper()

	version, err := os.ReadFile(filepath.Join(e.root, runningFile))
	if os.IsNotExist(err) {
		return ""
	}

	require.NoError(t, err)

	return strings.TrimSpace(string(version))
}
