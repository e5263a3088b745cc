package tasks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/trackvision/tv-epcis-validator/configs"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"
)

// StorageHandler stores and retrieves submitted EPCIS files. The location
// string returned by Store is opaque and round-trips through Retrieve.
type StorageHandler interface {
	Store(ctx context.Context, content []byte, fileName, supplierID string) (string, error)
	Retrieve(ctx context.Context, location string) ([]byte, error)
}

// NewStorageHandler builds the configured storage handler.
func NewStorageHandler(cfg *configs.Config) (StorageHandler, error) {
	switch cfg.StorageType {
	case "local":
		return NewLocalStorage(cfg.StorageBasePath)
	case "http":
		return NewHTTPStorage(cfg.AssetStoreURL, cfg.AssetStoreAPIKey), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.StorageType)
	}
}

// LocalStorage keeps submitted files on the local filesystem, one directory
// per supplier.
type LocalStorage struct {
	BasePath string
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolving storage path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	logger.Info("Local storage initialized", zap.String("base_path", absPath))
	return &LocalStorage{BasePath: absPath}, nil
}

// Store writes the file under the supplier's directory and returns the
// absolute path.
func (s *LocalStorage) Store(ctx context.Context, content []byte, fileName, supplierID string) (string, error) {
	supplierDir := filepath.Join(s.BasePath, supplierID)
	if err := os.MkdirAll(supplierDir, 0o755); err != nil {
		return "", fmt.Errorf("creating supplier directory: %w", err)
	}

	filePath := filepath.Join(supplierDir, fileName)
	if err := os.WriteFile(filePath, content, 0o644); err != nil {
		return "", fmt.Errorf("writing file %s: %w", filePath, err)
	}

	logger.Info("File stored",
		zap.String("path", filePath),
		zap.Int("size", len(content)))
	return filePath, nil
}

// Retrieve reads a previously stored file.
func (s *LocalStorage) Retrieve(ctx context.Context, location string) ([]byte, error) {
	content, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", location, err)
	}
	return content, nil
}

// HTTPStorage stores files in a bearer-authenticated asset store.
type HTTPStorage struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPStorage creates an HTTP storage client.
func NewHTTPStorage(baseURL, apiKey string) *HTTPStorage {
	return &HTTPStorage{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Store uploads the file and returns its URL.
func (s *HTTPStorage) Store(ctx context.Context, content []byte, fileName, supplierID string) (string, error) {
	fileURL := fmt.Sprintf("%s/files/%s/%s", s.BaseURL,
		url.PathEscape(supplierID), url.PathEscape(fileName))

	req, err := http.NewRequestWithContext(ctx, "PUT", fileURL, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("PUT request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("PUT failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	logger.Info("File uploaded to asset store", zap.String("url", fileURL))
	return fileURL, nil
}

// Retrieve downloads a previously stored file by URL.
func (s *HTTPStorage) Retrieve(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", location, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GET failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return io.ReadAll(resp.Body)
}
