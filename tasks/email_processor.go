package tasks

import (
	"regexp"
	"strings"

	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"github.com/trackvision/tv-epcis-validator/types"
)

// Patterns for pulling structured references out of failure notification
// emails. Vendors write PO and lot numbers in wildly inconsistent formats,
// so each field gets several alternatives tried in order.
var (
	poPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)PO[:#\s]*([A-Z0-9-]{5,15})`),
		regexp.MustCompile(`(?i)Purchase\s+Order[:#\s]*([A-Z0-9-]{5,15})`),
		regexp.MustCompile(`(?i)P\.O\.[:#\s]*([A-Z0-9-]{5,15})`),
		regexp.MustCompile(`(?i)Order\s+Number[:#\s]*([A-Z0-9-]{5,15})`),
		regexp.MustCompile(`urn:epcglobal:cbv:bt:[^:]*:([A-Z0-9-]+)`),
	}

	lotPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)LOT[:#\s]*([A-Z0-9-]{3,20})`),
		regexp.MustCompile(`(?i)Batch[:#\s]*([A-Z0-9-]{3,20})`),
		regexp.MustCompile(`<lotNumber>([^<]+)</lotNumber>`),
		regexp.MustCompile(`"lotNumber"[:\s]*"([^"]+)"`),
	}

	vendorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Vendor[:#\s]*([A-Za-z0-9 .,&-]{2,60})`),
		regexp.MustCompile(`(?i)Supplier[:#\s]*([A-Za-z0-9 .,&-]{2,60})`),
		regexp.MustCompile(`(?i)Company[:#\s]*([A-Za-z0-9 .,&-]{2,60})`),
	}

	errorDescriptionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)validation\s+(?:error|failure)s?[:\s]*(.{10,500})`),
		regexp.MustCompile(`(?is)(?:error|failed)[:\s]+(.{10,500})`),
	}

	submissionIDPattern = regexp.MustCompile(`([a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12})`)
	fileNamePattern     = regexp.MustCompile(`([A-Za-z0-9_.-]+\.(?:xml|json))`)

	nonReferenceChars = regexp.MustCompile(`[^A-Z0-9-]`)
)

// ExtractEmailData pulls PO numbers, lot numbers, vendor identity, and file
// references from a failure notification email.
func ExtractEmailData(email *types.EmailData) *types.ExtractedData {
	text := email.Subject + "\n" + email.Body

	data := &types.ExtractedData{
		PONumbers:  extractReferences(text, poPatterns, 5),
		LotNumbers: extractReferences(text, lotPatterns, 3),
		VendorName: extractVendorName(email.Sender, text),
	}

	if m := submissionIDPattern.FindStringSubmatch(text); m != nil {
		data.SubmissionID = m[1]
	}
	if m := fileNamePattern.FindStringSubmatch(text); m != nil {
		data.FileName = m[1]
	}
	for _, pattern := range errorDescriptionPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			data.ErrorDescription = strings.TrimSpace(m[1])
			break
		}
	}

	logger.Info("Email data extracted",
		zap.String("email_id", email.ID),
		zap.Strings("po_numbers", data.PONumbers),
		zap.String("submission_id", data.SubmissionID),
		zap.String("file_name", data.FileName))
	return data
}

// extractReferences runs each pattern over the text and collects cleaned,
// deduplicated matches in first-seen order.
func extractReferences(text string, patterns []*regexp.Regexp, minLen int) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, pattern := range patterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			ref := nonReferenceChars.ReplaceAllString(strings.ToUpper(m[1]), "")
			if len(ref) < minLen || seen[ref] {
				continue
			}
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// extractVendorName prefers an explicit vendor mention in the body and falls
// back to the sender's email domain.
func extractVendorName(sender, text string) string {
	for _, pattern := range vendorPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			name := strings.TrimSpace(m[1])
			if name != "" {
				return name
			}
		}
	}
	return vendorFromSender(sender)
}

// vendorFromSender turns "alerts@acme-pharma.com" into "Acme-Pharma".
func vendorFromSender(sender string) string {
	at := strings.LastIndex(sender, "@")
	if at < 0 {
		return ""
	}
	domain := strings.TrimSuffix(sender[at+1:], ">")
	if dot := strings.Index(domain, "."); dot > 0 {
		domain = domain[:dot]
	}
	if domain == "" {
		return ""
	}

	parts := strings.Split(domain, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return strings.Join(parts, "-")
}
