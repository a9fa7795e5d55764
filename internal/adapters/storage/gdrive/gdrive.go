package gdrive

import (
	"context"
	"io"
	"net/http"
	"path"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"videoproc/internal/pkg/errors"
	"videoproc/internal/ports"
)

// Client implements ports.StorageProvider backed by Google Drive.
// Uploads are named after the last element of the object key; the
// returned ObjectKey is the Drive fileId used for retrieval/deletion.
type Client struct {
	srv      *drive.Service
	folderID string
}

// Credentials is the OAuth client plus the refresh token minted by cmd/gdrive-auth.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// OAuthConfig returns the OAuth client configuration restricted to files
// created by this application.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}
}

// New builds a Drive service authenticated with a refresh token.
func New(ctx context.Context, creds Credentials, folderID string) (*Client, error) {
	conf := OAuthConfig(creds.ClientID, creds.ClientSecret, "")
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrap(err, "gdrive.new", "create drive service")
	}
	return NewClient(srv, folderID), nil
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.ValidationField("object_key", "object_key is required")
	}

	file := &drive.File{
		Name:        fileName(in.ObjectKey),
		Description: in.ObjectKey,
	}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "gdrive.put", "drive upload failed")
	}

	return ports.PutObjectOutput{ObjectKey: created.Id, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if isNotFound(err) {
		return nil, "", 0, errors.NotFound("object", objectKey)
	}
	if err != nil {
		return nil, "", 0, errors.Wrap(err, "gdrive.get", "drive download failed")
	}

	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

// fileName turns "renders/<id>/video.mp4" into "<id>-video.mp4" so
// uploads stay distinguishable inside a flat Drive folder.
func fileName(objectKey string) string {
	dir, base := path.Split(objectKey)
	if parent := path.Base(path.Clean(dir)); parent != "." && parent != "/" {
		return parent + "-" + base
	}
	return base
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// Ping verifies the refresh token by reading the account profile.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.srv.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		return errors.Wrap(err, "gdrive.ping", "drive about")
	}
	return nil
}
