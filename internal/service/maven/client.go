package maven

import (
	"context"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/oshokin/deploykeeper/internal/config"
	"github.com/oshokin/deploykeeper/internal/domain/deploy"
	"github.com/oshokin/deploykeeper/internal/logger"
	"github.com/oshokin/deploykeeper/internal/version"
)

const (
	// metadataFilename lists the released versions of an artifact.
	metadataFilename = "maven-metadata.xml"

	// maxSmallBody caps digests, signatures and metadata documents.
	maxSmallBody = 1 << 20
)

var (
	// ErrBadHTTPStatus is returned for every non-200 repository response.
	ErrBadHTTPStatus = errors.New("unexpected http status")
	// ErrNoVersion is returned when the metadata document lists no release.
	ErrNoVersion = errors.New("no released version found")
	// errEmptyChecksum is returned for empty digest documents.
	errEmptyChecksum = errors.New("empty checksum")
)

// Client talks to a Maven-layout repository over HTTP.
type Client struct {
	// base is the repository root URL.
	base *url.URL
	// groupPath is the group id with dots replaced by slashes.
	groupPath string
	// artifactID is the artifact of the managed application.
	artifactID string
	// http performs the requests.
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// NewClient creates a Client for the configured repository.
func NewClient(repo config.Repository, opts ...Option) (*Client, error) {
	base, err := url.Parse(repo.URL)
	if err != nil {
		return nil, fmt.Errorf("parse repository url: %w", err)
	}

	timeout := repo.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	c := &Client{
		base:       base,
		groupPath:  strings.ReplaceAll(repo.GroupID, ".", "/"),
		artifactID: repo.ArtifactID,
		http:       &http.Client{Timeout: timeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Fetch streams the jar of version. The caller closes the returned body.
func (c *Client) Fetch(ctx context.Context, version string) (io.ReadCloser, error) {
	logger.InfoKV(ctx, "Downloading artifact", "version", version)

	response, err := c.get(ctx, c.artifactPath(version, "jar"))
	if err != nil {
		return nil, err
	}

	return response.Body, nil
}

// Checksum downloads the alg digest published for version and decodes it from hex.
func (c *Client) Checksum(ctx context.Context, version string, alg deploy.Algorithm) ([]byte, error) {
	body, err := c.getSmall(ctx, c.artifactPath(version, "jar."+alg.Extension))
	if err != nil {
		return nil, err
	}

	// Some repositories append the file name after the digest.
	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s checksum for %s: %w", alg.Name, version, errEmptyChecksum)
	}

	digest, err := hex.DecodeString(fields[0])
	if err != nil {
		return nil, fmt.Errorf("decode %s checksum for %s: %w", alg.Name, version, err)
	}

	return digest, nil
}

// Signature downloads the detached armored signature of version.
func (c *Client) Signature(ctx context.Context, version string) ([]byte, error) {
	return c.getSmall(ctx, c.artifactPath(version, "jar.asc"))
}

// LatestVersion reads the newest release from maven-metadata.xml.
func (c *Client) LatestVersion(ctx context.Context) (string, error) {
	body, err := c.getSmall(ctx, path.Join(c.groupPath, c.artifactID, metadataFilename))
	if err != nil {
		return "", err
	}

	var doc struct {
		Versioning struct {
			Release  string   `xml:"release"`
			Latest   string   `xml:"latest"`
			Versions []string `xml:"versions>version"`
		} `xml:"versioning"`
	}

	if err = xml.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode %s: %w", metadataFilename, err)
	}

	switch {
	case doc.Versioning.Release != "":
		return doc.Versioning.Release, nil
	case doc.Versioning.Latest != "":
		return doc.Versioning.Latest, nil
	case len(doc.Versioning.Versions) > 0:
		return doc.Versioning.Versions[len(doc.Versioning.Versions)-1], nil
	default:
		return "", ErrNoVersion
	}
}

// artifactPath returns the repository-relative path of a version file.
func (c *Client) artifactPath(version, extension string) string {
	return path.Join(c.groupPath, c.artifactID, version, fmt.Sprintf("%s-%s.%s", c.artifactID, version, extension))
}

// getSmall fetches a bounded document and returns its body.
func (c *Client) getSmall(ctx context.Context, relative string) ([]byte, error) {
	response, err := c.get(ctx, relative)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxSmallBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relative, err)
	}

	return body, nil
}

// get performs a GET below the repository root and checks the status.
func (c *Client) get(ctx context.Context, relative string) (*http.Response, error) {
	target := *c.base
	// Use path.Join to normalize duplicate slashes when composing the URL path.
	target.Path = path.Join(target.Path, relative)
	finalURL := target.String()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	request.Header.Set("User-Agent", version.UserAgent())

	logger.DebugKV(ctx, "Repository request", "url", finalURL)

	response, err := c.http.Do(request)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", finalURL, err)
	}

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxSmallBody))
		_ = response.Body.Close()

		return nil, fmt.Errorf("%s, %s: %w", finalURL, response.Status, ErrBadHTTPStatus)
	}

	return response, nil
}
