package tasks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackvision/tv-epcis-validator/configs"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	content := []byte(`<EPCISDocument xmlns="urn:epcglobal:epcis:xsd:1"/>`)

	location, err := storage.Store(ctx, content, "sub-1.xml", "supplier-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(storage.BasePath, "supplier-1", "sub-1.xml"), location)

	retrieved, err := storage.Retrieve(ctx, location)
	require.NoError(t, err)
	assert.Equal(t, content, retrieved)
}

func TestLocalStorageRetrieveMissing(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = storage.Retrieve(context.Background(), filepath.Join(storage.BasePath, "missing.xml"))
	assert.Error(t, err)
}

func TestHTTPStorageRoundTrip(t *testing.T) {
	stored := map[string][]byte{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case "PUT":
			body, _ := io.ReadAll(r.Body)
			stored[r.URL.Path] = body
			w.WriteHeader(http.StatusCreated)
		case "GET":
			content, ok := stored[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(content)
		}
	}))
	defer server.Close()

	storage := NewHTTPStorage(server.URL, "test-key")
	ctx := context.Background()
	content := []byte(`{"@context": ["epcis"]}`)

	location, err := storage.Store(ctx, content, "sub-2.json", "supplier-1")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/files/supplier-1/sub-2.json", location)

	retrieved, err := storage.Retrieve(ctx, location)
	require.NoError(t, err)
	assert.Equal(t, content, retrieved)
}

func TestHTTPStorageStoreFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	storage := NewHTTPStorage(server.URL, "bad-key")
	_, err := storage.Store(context.Background(), []byte("x"), "f.xml", "supplier-1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestNewStorageHandler(t *testing.T) {
	local, err := NewStorageHandler(&configs.Config{StorageType: "local", StorageBasePath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, local)

	remote, err := NewStorageHandler(&configs.Config{StorageType: "http", AssetStoreURL: "http://assets.example.com"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPStorage{}, remote)

	_, err = NewStorageHandler(&configs.Config{StorageType: "ftp"})
	assert.Error(t, err)
}
