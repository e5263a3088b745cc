//go:build ignore

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Submits an EPCIS file to a running validator service. Usage:
//
//	API_URL=http://localhost:8080 API_KEY=... SUPPLIER_ID=... \
//	  go run scripts/submit_test_file.go path/to/file.xml
func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/submit_test_file.go <file.xml|file.json>")
	}
	path := os.Args[1]

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	supplierID := os.Getenv("SUPPLIER_ID")
	if supplierID == "" {
		log.Fatal("SUPPLIER_ID is required")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read file: %v", err)
	}

	sep := strings.Repeat("=", 70)
	fmt.Println(sep)
	fmt.Printf("  Submit Test File: %s (%d bytes)\n", path, len(content))
	fmt.Println(sep)
	fmt.Println()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		log.Fatalf("Failed to build form: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		log.Fatalf("Failed to write form file: %v", err)
	}
	_ = writer.WriteField("supplier_id", supplierID)
	_ = writer.WriteField("submitter_id", "submit_test_file")
	if err := writer.Close(); err != nil {
		log.Fatalf("Failed to close form: %v", err)
	}

	req, err := http.NewRequest("POST", apiURL+"/submissions", &body)
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Status: %s\n", resp.Status)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
		fmt.Println(string(respBody))
		return
	}
	fmt.Println(pretty.String())
}
