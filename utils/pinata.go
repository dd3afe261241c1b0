package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const pinataPinFileURL = "https://api.pinata.cloud/pinning/pinFileToIPFS"

// PinataStore pins blobs to IPFS through Pinata and reads them back through
// the configured gateway.
type PinataStore struct {
	JWT        string
	GatewayURL string
	PinURL     string
	Client     *http.Client
}

func NewPinataStore(jwt, gatewayURL string) *PinataStore {
	return &PinataStore{
		JWT:        jwt,
		GatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		PinURL:     pinataPinFileURL,
		Client:     HTTPClient,
	}
}

type pinataPinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func (s *PinataStore) Put(ctx context.Context, name string, data []byte) (Blob, error) {
	if name == "" {
		name = "uploaded-file"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return Blob{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Blob{}, err
	}
	if err := form.Close(); err != nil {
		return Blob{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.PinURL, &body)
	if err != nil {
		return Blob{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.JWT)

	resp, err := s.Client.Do(req)
	if err != nil {
		return Blob{}, fmt.Errorf("failed to call pinata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Blob{}, fmt.Errorf("pinata returned status %d: %s", resp.StatusCode, string(msg))
	}

	var out pinataPinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Blob{}, fmt.Errorf("failed to decode pinata response: %w", err)
	}
	if out.IpfsHash == "" {
		return Blob{}, fmt.Errorf("pinata response missing IpfsHash")
	}
	return Blob{Hash: out.IpfsHash, URL: s.GatewayURL + "/ipfs/" + out.IpfsHash}, nil
}

func (s *PinataStore) Get(ctx context.Context, hash string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.GatewayURL+"/ipfs/"+hash, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs fetch failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrBlobNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ipfs fetch failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
