package importer

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/materia-group/blueline/internal/service"
)

// FTPImporter downloads submission workbooks from supplier FTP drops.
type FTPImporter struct {
	timeout time.Duration
}

// NewFTPImporter creates an importer with the given dial timeout.
func NewFTPImporter(timeout time.Duration) *FTPImporter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FTPImporter{timeout: timeout}
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "import: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("import: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("import: empty path in ftp url")
	}

	return host, path, nil
}

// Fetch downloads a workbook from an FTP URL into a temporary file and parses
// it. The temporary file is removed before returning.
func (f *FTPImporter) Fetch(ctx context.Context, ftpURL string, opts Options) ([]*service.Submission, error) {
	host, path, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("import: ftp connecting", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "import: ftp dial")
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return nil, eris.Wrap(err, "import: ftp login")
	}

	resp, err := conn.Retr(path)
	if err != nil {
		return nil, eris.Wrap(err, "import: ftp retrieve")
	}

	tmp, err := os.CreateTemp("", "blueline-import-*"+filepath.Ext(path))
	if err != nil {
		resp.Close()
		return nil, eris.Wrap(err, "import: create temp file")
	}
	defer os.Remove(tmp.Name())

	_, copyErr := io.Copy(tmp, resp)
	resp.Close()
	if closeErr := tmp.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return nil, eris.Wrap(copyErr, "import: download workbook")
	}

	return ParseWorkbook(tmp.Name(), opts)
}
