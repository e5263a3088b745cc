//go:build ignore

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/trackvision/tv-epcis-validator/epcis"
)

// Validates an EPCIS file from disk and prints the report. Usage:
//
//	go run scripts/validate_file.go path/to/file.xml
func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/validate_file.go <file.xml|file.json>")
	}
	path := os.Args[1]

	content, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read file: %v", err)
	}
	isXML := strings.EqualFold(filepath.Ext(path), ".xml")

	sep := strings.Repeat("=", 70)
	fmt.Println(sep)
	fmt.Printf("  Validate EPCIS File: %s (%d bytes)\n", path, len(content))
	fmt.Println(sep)
	fmt.Println()

	validator := epcis.NewDocumentValidator()
	report := validator.ValidateDocument(content, isXML)

	fmt.Printf("Valid: %v\n", report.Valid)
	fmt.Printf("Events: %d\n", report.EventCount)
	fmt.Printf("Companies: %v\n", report.Companies)
	fmt.Println()

	if len(report.Errors) == 0 {
		fmt.Println("No findings.")
		return
	}

	summary := epcis.SummarizeErrors(report)
	fmt.Printf("Findings: %d errors, %d warnings\n\n", summary.Errors, summary.Warnings)
	for _, finding := range report.Errors {
		line := ""
		if finding.LineNumber > 0 {
			line = fmt.Sprintf(" (line %d)", finding.LineNumber)
		}
		fmt.Printf("  [%s/%s]%s %s\n", finding.Type, finding.Severity, line, finding.Message)
	}
}
