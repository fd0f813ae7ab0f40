package release

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	ghapi "github.com/google/go-github/v72/github"
)

// GitHub is a release Source backed by a GitHub repository.
type GitHub struct {
	gh           *ghapi.Client
	organization string
	repository   string
	assetPrefix  string
}

// NewGitHub returns a Source for the given repository. The token may be
// empty, in which case unauthenticated rate limits apply. The asset prefix
// selects the release archive among the published assets.
func NewGitHub(organization string, repository string, assetPrefix string, token string) *GitHub {
	client := ghapi.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &GitHub{
		gh:           client,
		organization: organization,
		repository:   repository,
		assetPrefix:  assetPrefix,
	}
}

func (g *GitHub) Resolve(ctx context.Context, tag string) (*Release, error) {
	var rel *ghapi.RepositoryRelease

	var err error

	if tag == "" || tag == "latest" {
		rel, _, err = g.gh.Repositories.GetLatestRelease(ctx, g.organization, g.repository)
	} else {
		rel, _, err = g.gh.Repositories.GetReleaseByTag(ctx, g.organization, g.repository, tag)
	}

	if err != nil {
		return nil, g.checkLimit(err)
	}

	assets, _, err := g.gh.Repositories.ListReleaseAssets(ctx, g.organization, g.repository, rel.GetID(), nil)
	if err != nil {
		return nil, g.checkLimit(err)
	}

	ret := &Release{
		Tag: rel.GetTagName(),
	}

	// Pick the release archive and its optional sha256 sidecar.
	for _, asset := range assets {
		name := asset.GetName()

		if !strings.HasPrefix(name, g.assetPrefix) {
			continue
		}

		switch {
		case strings.HasSuffix(name, ".zip"), strings.HasSuffix(name, ".tar.gz"):
			ret.ArchiveName = name
			ret.ArchiveURL = asset.GetBrowserDownloadURL()
			ret.AssetID = asset.GetID()
		case strings.HasSuffix(name, ".sha256"):
			ret.ChecksumURL = asset.GetBrowserDownloadURL()
		}
	}

	if ret.ArchiveName == "" {
		return nil, ErrReleaseNotFound
	}

	return ret, nil
}

func (g *GitHub) Tags(ctx context.Context, limit int) ([]string, error) {
	releases, _, err := g.gh.Repositories.ListReleases(ctx, g.organization, g.repository, &ghapi.ListOptions{PerPage: limit})
	if err != nil {
		return nil, g.checkLimit(err)
	}

	tags := make([]string, 0, len(releases))
	for _, rel := range releases {
		// Pre-releases don't carry a usable archive for us.
		if rel.GetPrerelease() || rel.GetDraft() {
			continue
		}

		tags = append(tags, rel.GetTagName())
	}

	return tags, nil
}

func (g *GitHub) RawFile(ctx context.Context, tag string, path string) ([]byte, error) {
	content, _, _, err := g.gh.Repositories.GetContents(ctx, g.organization, g.repository, path, &ghapi.RepositoryContentGetOptions{Ref: tag})
	if err != nil {
		return nil, g.checkLimit(err)
	}

	body, err := content.GetContent()
	if err != nil {
		return nil, err
	}

	return []byte(body), nil
}

func (g *GitHub) DownloadAsset(ctx context.Context, assetID int64, target string) error {
	rc, _, err := g.gh.Repositories.DownloadReleaseAsset(ctx, g.organization, g.repository, assetID, http.DefaultClient)
	if err != nil {
		return g.checkLimit(err)
	}

	defer rc.Close()

	// #nosec G304
	fd, err := os.Create(target)
	if err != nil {
		return err
	}

	defer fd.Close()

	// Read in chunks to avoid excessive memory consumption.
	for {
		_, err = io.CopyN(fd, rc, 4*1024*1024)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return err
		}
	}

	return nil
}

func (*GitHub) checkLimit(err error) error {
	_, ok := err.(*ghapi.RateLimitError) //nolint:errorlint
	if ok {
		return ErrSourceUnavailable
	}

	return err
}
