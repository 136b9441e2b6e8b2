package pipeline

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // Matches the published digest.
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/deploykeeper/internal/domain/deploy"
)

var (
	errUnavailable = errors.New("connection refused")
	errDiskFull    = errors.New("no space left on device")
	errWrongSum    = errors.New("updated file has wrong checksum")
)

// fakeSource serves jars and their reference digests from memory.
type fakeSource struct {
	mu        sync.Mutex
	jars      map[string][]byte
	checksums map[string][]byte
	signature []byte
	fetchErr  error
	sumErr    error
	sigErr    error
	calls     int
}

func newFakeSource(jars map[string][]byte) *fakeSource {
	return &fakeSource{
		jars:      jars,
		checksums: make(map[string][]byte),
		signature: []byte("signature"),
	}
}

func (s *fakeSource) Fetch(_ context.Context, version string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	body, ok := s.jars[version]
	if !ok {
		return nil, errUnavailable
	}

	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *fakeSource) Checksum(_ context.Context, version string, alg deploy.Algorithm) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.sumErr != nil {
		return nil, s.sumErr
	}

	if sum, ok := s.checksums[version+"."+alg.Extension]; ok {
		return sum, nil
	}

	h := alg.Hash.New()
	_, _ = h.Write(s.jars[version])

	return h.Sum(nil), nil
}

func (s *fakeSource) Signature(context.Context, string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.sigErr != nil {
		return nil, s.sigErr
	}

	return s.signature, nil
}

func (s *fakeSource) networkCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

// memoryStore keeps jars in memory below a fake root.
type memoryStore struct {
	mu         sync.Mutex
	root       string
	files      map[string][]byte
	installErr error
	removed    []string
}

func newMemoryStore(root string) *memoryStore {
	return &memoryStore{
		root:  root,
		files: make(map[string][]byte),
	}
}

func (m *memoryStore) FilePath(version string) (string, error) {
	if version == "" {
		return "", errors.New("empty version")
	}

	return filepath.Join(m.root, "app-"+version+".jar"), nil
}

func (m *memoryStore) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.files[path]

	return ok
}

func (m *memoryStore) Install(_ context.Context, path string, r io.Reader, sum []byte) error {
	if m.installErr != nil {
		return m.installErr
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	if digest := sha1.Sum(body); sum != nil && !bytes.Equal(digest[:], sum) { //nolint:gosec // Published digest.
		return errWrongSum
	}

	m.mu.Lock()
	m.files[path] = body
	m.mu.Unlock()

	return nil
}

func (m *memoryStore) Digest(path string, alg deploy.Algorithm) ([]byte, error) {
	m.mu.Lock()
	body, ok := m.files[path]
	m.mu.Unlock()

	if !ok {
		return nil, os.ErrNotExist
	}

	h := alg.Hash.New()
	_, _ = h.Write(body)

	return h.Sum(nil), nil
}

func (m *memoryStore) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, path)
	m.removed = append(m.removed, path)

	return nil
}

// fakeVerifier returns a fixed verdict.
type fakeVerifier struct {
	valid bool
	calls int
	keys  []string
}

func (v *fakeVerifier) Verify(_ context.Context, _ string, _ []byte, keys []string) bool {
	v.calls++
	v.keys = keys

	return v.valid
}

// memoryBlocklist blocks artifacts forever.
type memoryBlocklist struct {
	mu      sync.Mutex
	blocked map[string]string
	checks  int
}

func newMemoryBlocklist() *memoryBlocklist {
	return &memoryBlocklist{blocked: make(map[string]string)}
}

func (b *memoryBlocklist) Add(_ context.Context, artifact, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.blocked[artifact] = reason

	return nil
}

func (b *memoryBlocklist) IsBlocked(_ context.Context, artifact string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checks++
	_, ok := b.blocked[artifact]

	return ok
}

func (b *memoryBlocklist) MarkerPath(artifact string) string {
	return artifact + ".blocklisted"
}

func (b *memoryBlocklist) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.blocked)
}

// fakeMonitor replays health statuses; the last one repeats.
type fakeMonitor struct {
	statuses      []deploy.HealthStatus
	statusCalls   int
	shutdownCalls int
	shutdownOK    bool
}

func (m *fakeMonitor) Status(context.Context) deploy.HealthStatus {
	m.statusCalls++
	if len(m.statuses) == 0 {
		return deploy.HealthUnknown
	}

	status := m.statuses[0]
	if len(m.statuses) > 1 {
		m.statuses = m.statuses[1:]
	}

	return status
}

func (m *fakeMonitor) Shutdown(context.Context) bool {
	m.shutdownCalls++

	return m.shutdownOK
}

// fakeLauncher returns a scripted status per jar; unknown jars fail.
type fakeLauncher struct {
	results  map[string]deploy.LaunchStatus
	launched []string
}

func (l *fakeLauncher) Launch(_ context.Context, jarPath string) *deploy.LaunchResult {
	l.launched = append(l.launched, jarPath)

	status, ok := l.results[filepath.Base(jarPath)]
	if !ok {
		status = deploy.LaunchFailed
	}

	return &deploy.LaunchResult{
		Status:     status,
		StartupLog: "startup of " + filepath.Base(jarPath),
		JarPath:    jarPath,
	}
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	subjects []string
	bodies   []string
}

func (n *recordingNotifier) Send(_ context.Context, subject, body string) {
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
}

// fixture bundles fakes for one test.
type fixture struct {
	source    *fakeSource
	store     *memoryStore
	verifier  *fakeVerifier
	blocklist *memoryBlocklist
	monitor   *fakeMonitor
	launcher  *fakeLauncher
	notifier  *recordingNotifier
}

func newFixture() *fixture {
	return &fixture{
		source: newFakeSource(map[string][]byte{
			"1.1.0": []byte("jar 1.1.0"),
			"1.2.0": []byte("jar 1.2.0"),
		}),
		store:     newMemoryStore("/srv/app"),
		verifier:  &fakeVerifier{valid: true},
		blocklist: newMemoryBlocklist(),
		monitor:   &fakeMonitor{statuses: []deploy.HealthStatus{deploy.HealthDown}},
		launcher:  &fakeLauncher{results: map[string]deploy.LaunchStatus{}},
		notifier:  new(recordingNotifier),
	}
}

func (f *fixture) deps(blocklistEnabled bool) Dependencies {
	return Dependencies{
		Source:           f.source,
		Store:            f.store,
		Verifier:         f.verifier,
		TrustedKeys:      []string{"/etc/deploykeeper/release.asc"},
		Blocklist:        f.blocklist,
		BlocklistEnabled: blocklistEnabled,
		Monitor:          f.monitor,
		Launcher:         f.launcher,
		Notifier:         f.notifier,
	}
}

// installed puts version's jar into the store as if downloaded and validated by an earlier cycle.
func (f *fixture) installed(version string) *deploy.Metadata {
	path, _ := f.store.FilePath(version)
	f.store.files[path] = f.source.jars[version]

	digest := sha1.Sum(f.source.jars[version]) //nolint:gosec // Published digest.

	return &deploy.Metadata{Version: version, File: path, Checksum: hex.EncodeToString(digest[:])}
}

// leftover puts version's jar into the store without any validated checksum.
func (f *fixture) leftover(version string, body []byte) {
	path, _ := f.store.FilePath(version)
	f.store.files[path] = body
}
