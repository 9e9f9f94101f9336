package techmate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Certificates lists the certificates earned by the logged-in user.
func (c *Client) Certificates(ctx context.Context) ([]Certificate, error) {
	var certs []Certificate
	if err := c.do(ctx, http.MethodGet, "/certificates/", nil, nil, "", &certs); err != nil {
		return nil, err
	}
	return certs, nil
}

// IssueCertificate requests a certificate for a fully completed tutorial.
// The server rejects tutorials below 100% progress; issuing twice for the
// same tutorial returns the existing certificate.
func (c *Client) IssueCertificate(ctx context.Context, tutorialID int64) (*Certificate, error) {
	body, err := json.Marshal(map[string]int64{"tutorial_id": tutorialID})
	if err != nil {
		return nil, err
	}
	var cert Certificate
	if err := c.do(ctx, http.MethodPost, "/certificates/issue/", nil, body, contentTypeJSON, &cert); err != nil {
		return nil, err
	}
	return &cert, nil
}

// DownloadCertificate streams the rendered certificate PDF into w.
func (c *Client) DownloadCertificate(ctx context.Context, id int64, w io.Writer) error {
	var pdf []byte
	path := fmt.Sprintf("/certificates/%d/download/", id)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, "", &pdf); err != nil {
		return err
	}
	_, err := w.Write(pdf)
	return err
}
